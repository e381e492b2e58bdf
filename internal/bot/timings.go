package bot

import (
	"context"
	"time"
)

// Timings holds every wait the bot performs. The target site is slow and
// hostile to automation, so the defaults are generous.
type Timings struct {
	HomeSettle      time.Duration
	LoginPageSettle time.Duration
	CheckSettle     time.Duration

	ConsentWait   time.Duration
	ConsentSettle time.Duration
	FieldWait     time.Duration
	KeyDelay      time.Duration
	FieldPause    time.Duration
	SubmitSettle  time.Duration
	PromptWait    time.Duration
	PromptSettle  time.Duration

	ManualPoll          time.Duration
	ManualAttempts      int
	ManualConfirmSettle time.Duration

	PostSettle     time.Duration
	OverlaySettle  time.Duration
	ScrollSettle   time.Duration
	CommentBoxWait time.Duration
	FocusPause     time.Duration
	SubmitPause    time.Duration
	PostButtonWait time.Duration
	VerifyInterval time.Duration
	VerifyAttempts int

	CooldownBase time.Duration
	CooldownStep time.Duration
	CooldownTick time.Duration

	CloseDelayRun   time.Duration
	CloseDelayLogin time.Duration
}

// DefaultTimings are the production waits
func DefaultTimings() Timings {
	return Timings{
		HomeSettle:      8 * time.Second,
		LoginPageSettle: 5 * time.Second,
		CheckSettle:     3 * time.Second,

		ConsentWait:   3 * time.Second,
		ConsentSettle: 2 * time.Second,
		FieldWait:     5 * time.Second,
		KeyDelay:      100 * time.Millisecond,
		FieldPause:    time.Second,
		SubmitSettle:  12 * time.Second,
		PromptWait:    5 * time.Second,
		PromptSettle:  3 * time.Second,

		ManualPoll:          2 * time.Second,
		ManualAttempts:      90,
		ManualConfirmSettle: 2 * time.Second,

		PostSettle:     5 * time.Second,
		OverlaySettle:  time.Second,
		ScrollSettle:   2 * time.Second,
		CommentBoxWait: 5 * time.Second,
		FocusPause:     time.Second,
		SubmitPause:    2 * time.Second,
		PostButtonWait: 3 * time.Second,
		VerifyInterval: 2 * time.Second,
		VerifyAttempts: 5,

		CooldownBase: 10 * time.Second,
		CooldownStep: 3 * time.Second,
		CooldownTick: 5 * time.Second,

		CloseDelayRun:   10 * time.Second,
		CloseDelayLogin: 5 * time.Second,
	}
}

// InstantTimings performs no waits, keeping the attempt bounds
func InstantTimings() Timings {
	return Timings{
		ManualAttempts: 3,
		VerifyAttempts: 2,
	}
}

// Cooldown is the pause after repetition i (zero-based)
func (t Timings) Cooldown(i int) time.Duration {
	return t.CooldownBase + time.Duration(i)*t.CooldownStep
}

// countdown returns the remaining time announced at each tick of a wait
func countdown(wait, tick time.Duration) []time.Duration {
	if wait <= 0 {
		return nil
	}
	if tick <= 0 {
		return []time.Duration{wait}
	}
	var out []time.Duration
	for remaining := wait; remaining > 0; remaining -= tick {
		out = append(out, remaining)
	}
	return out
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
