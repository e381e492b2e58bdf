package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/shehryarbajwa/commentbot/internal/automation"
)

// navigateToPost opens the post and checks the comment box is reachable.
// errPostBlocked means the page wants a fresh login.
func (b *Bot) navigateToPost(ctx context.Context, postURL string) error {
	s := b.current()

	b.log.Info("📍 Navigating to post: " + postURL)
	if err := s.Navigate(ctx, postURL); err != nil {
		return fmt.Errorf("failed to open post: %w", err)
	}
	if err := sleep(ctx, b.timings.PostSettle); err != nil {
		return err
	}

	overlay, err := s.Find(ctx, loginOverlayClose, 0)
	if err != nil && automation.IsSessionLost(err) {
		return err
	}
	if overlay {
		if err := s.Click(ctx, loginOverlayClose); err == nil {
			b.log.Info("🛡️ Closed login overlay.")
			if err := sleep(ctx, b.timings.OverlaySettle); err != nil {
				return err
			}
		} else if automation.IsSessionLost(err) {
			return err
		}
	}

	found, err := s.Find(ctx, commentBoxes[0], 0)
	if err != nil && automation.IsSessionLost(err) {
		return err
	}
	if found {
		b.log.Info("🗨️ Found the comment section.")
		b.setState(StateNavigated)
		return nil
	}

	blocked, err := s.Find(ctx, postLoginLink, 0)
	if err != nil && automation.IsSessionLost(err) {
		return err
	}
	if blocked {
		b.log.Warn("⚠️ Post page is asking for login again.")
		return errPostBlocked
	}

	b.log.Warn("🕵️ Comment section hidden, trying to reveal it...")
	if url, err := s.CurrentURL(ctx); err == nil && (strings.Contains(url, "/reels/") || strings.Contains(url, "/reel/")) {
		b.log.Info("Detected reel layout.")
	}
	if err := s.Evaluate(ctx, "window.scrollTo(0, 500);", nil); err != nil && automation.IsSessionLost(err) {
		return err
	}
	if err := sleep(ctx, b.timings.ScrollSettle); err != nil {
		return err
	}

	b.setState(StateNavigated)
	return nil
}

// postComments posts text count times and returns how many repetitions
// were submitted. A repetition that fails is logged and skipped; a lost
// session or a finished context stops the loop.
func (b *Bot) postComments(ctx context.Context, text string, count int) (int, error) {
	b.setState(StateCommenting)
	posted := 0

	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return posted, err
		}

		b.log.Info(fmt.Sprintf("Attempting to post comment %d/%d", i+1, count))
		if err := b.postOne(ctx, text, i+1); err != nil {
			if automation.IsSessionLost(err) || ctx.Err() != nil {
				return posted, err
			}
			b.log.Error(fmt.Sprintf("Error posting comment %d: %v", i+1, err))
			continue
		}
		posted++

		if i < count-1 {
			if err := b.cooldown(ctx, i); err != nil {
				return posted, err
			}
		}
	}

	b.log.Info(fmt.Sprintf("Posted %d/%d comments", posted, count))
	return posted, nil
}

// postOne types and submits a single comment. An unverified submission
// still counts as posted.
func (b *Bot) postOne(ctx context.Context, text string, n int) error {
	s := b.current()

	box, ok, err := b.firstPresent(ctx, commentBoxes, b.timings.CommentBoxWait)
	if err != nil {
		return err
	}
	if !ok {
		b.log.Warn("Standard comment box not found, trying any textarea...")
		found, err := s.Find(ctx, anyTextarea, 0)
		if err != nil {
			return err
		}
		if !found {
			return errNoCommentBox
		}
		box = anyTextarea
	}

	if err := s.Click(ctx, box); err != nil {
		return err
	}
	if err := sleep(ctx, b.timings.FocusPause); err != nil {
		return err
	}

	b.log.Info(fmt.Sprintf("✍️ Typing comment (%d chars)...", len([]rune(text))))
	if err := b.typeSlowly(ctx, box, text); err != nil {
		return err
	}
	b.log.Info("🆗 Comment entered. Submitting.")
	if err := sleep(ctx, b.timings.SubmitPause); err != nil {
		return err
	}

	if err := b.submit(ctx, postButtons, box, b.timings.PostButtonWait); err != nil {
		return err
	}

	b.log.Info("🧐 Verifying that the comment appeared...")
	verified, err := b.verify(ctx, box, text)
	if err != nil {
		return err
	}
	if verified {
		b.log.Info(fmt.Sprintf("✅ Comment %d verified.", n))
	} else {
		b.log.Warn(fmt.Sprintf("⚠️ Could not verify comment %d. It might be delayed.", n))
	}
	return nil
}

// verify polls until the comment box is empty or the text shows up on the page
func (b *Bot) verify(ctx context.Context, box automation.Locator, text string) (bool, error) {
	s := b.current()
	posted := textLocator(text)

	for attempt := 0; attempt < b.timings.VerifyAttempts; attempt++ {
		if err := sleep(ctx, b.timings.VerifyInterval); err != nil {
			return false, err
		}

		var value string
		err := s.CallOn(ctx, box, readValueScript, &value)
		if automation.IsSessionLost(err) {
			return false, err
		}
		if err == nil && value == "" {
			b.log.Info("✨ Comment box is clear.")
			return true, nil
		}

		found, err := s.Find(ctx, posted, 0)
		if automation.IsSessionLost(err) {
			return false, err
		}
		if found {
			b.log.Info("✨ Found the comment on the page!")
			return true, nil
		}
	}
	return false, nil
}

// cooldown waits between repetitions, announcing the time left
func (b *Bot) cooldown(ctx context.Context, i int) error {
	wait := b.timings.Cooldown(i)
	tick := b.timings.CooldownTick

	for _, remaining := range countdown(wait, tick) {
		b.log.Info(fmt.Sprintf("Cooling down... %d seconds remaining before next comment.", int(remaining.Seconds())))
		step := remaining
		if tick > 0 && tick < remaining {
			step = tick
		}
		if err := sleep(ctx, step); err != nil {
			return err
		}
	}
	return nil
}
