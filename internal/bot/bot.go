// Package bot drives one browser session through login, post navigation
// and comment posting.
package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/commentbot/internal/apperr"
	"github.com/shehryarbajwa/commentbot/internal/automation"
	"github.com/shehryarbajwa/commentbot/internal/logbus"
	"github.com/shehryarbajwa/commentbot/pkg/models"
)

var (
	errLoginFailed  = apperr.New(apperr.ErrAutomation, "login failed")
	errPostBlocked  = apperr.New(apperr.ErrAutomation, "post page still requires login")
	errNoCommentBox = apperr.New(apperr.ErrAutomation, "no comment box found")
)

// Config describes one bot session
type Config struct {
	Profile     string
	Credentials models.Credentials
	ProfileDir  string
	Headless    bool
	HomeURL     string
	LoginURL    string

	// DebugDir receives a screenshot when the login form cannot be found
	// in headless mode. Empty disables it.
	DebugDir string

	Timings Timings

	// ManualConfirm blocks until an operator says the manual login is done.
	// When nil the bot polls the page instead.
	ManualConfirm func(ctx context.Context) error

	// OnState observes every state transition
	OnState func(State)
}

// RunParams are the inputs of a comment run
type RunParams struct {
	PostURL string
	Comment string
	Count   int
}

// Bot owns one automation session for the duration of a job
type Bot struct {
	cfg      Config
	timings  Timings
	launcher automation.Launcher
	log      logbus.Logger
	logger   *zap.Logger

	mu      sync.Mutex
	surface automation.Surface
	state   State
}

// New creates a bot. Nothing is launched until Run or Login.
func New(cfg Config, launcher automation.Launcher, sink logbus.Sink, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timings.ManualAttempts < 1 {
		cfg.Timings.ManualAttempts = 1
	}
	if cfg.Timings.VerifyAttempts < 1 {
		cfg.Timings.VerifyAttempts = 1
	}

	return &Bot{
		cfg:      cfg,
		timings:  cfg.Timings,
		launcher: launcher,
		log:      logbus.For(sink, cfg.Profile),
		logger:   logger.With(zap.String("profile", cfg.Profile)),
		state:    StateNew,
	}
}

// State returns the current state
func (b *Bot) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bot) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()

	b.logger.Debug("Bot state", zap.Stringer("state", s))
	if b.cfg.OnState != nil {
		b.cfg.OnState(s)
	}
}

func (b *Bot) current() automation.Surface {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.surface
}

// Screenshot captures the live browser frame
func (b *Bot) Screenshot(ctx context.Context) ([]byte, error) {
	s := b.current()
	if s == nil {
		return nil, apperr.NotFound("no active browser for %s", b.cfg.Profile)
	}
	return s.Screenshot(ctx)
}

// Run logs in if needed, opens the post and posts the comment Count times.
// It reports success when at least one repetition was posted.
func (b *Bot) Run(ctx context.Context, p RunParams) bool {
	defer b.close(ctx, b.timings.CloseDelayRun)

	if err := b.run(ctx, p); err != nil {
		b.fail(err)
		return false
	}
	b.setState(StateDone)
	return true
}

func (b *Bot) run(ctx context.Context, p RunParams) error {
	if err := b.open(ctx); err != nil {
		return err
	}
	if err := b.login(ctx); err != nil {
		return err
	}

	err := b.navigateToPost(ctx, p.PostURL)
	if errors.Is(err, errPostBlocked) {
		b.log.Info("Post asked for login again. Retrying login flow...")
		if err := b.login(ctx); err != nil {
			return fmt.Errorf("login retry failed: %w", err)
		}
		if err := b.navigateToPost(ctx, p.PostURL); err != nil {
			return fmt.Errorf("unable to reach post after login retry: %w", err)
		}
	} else if err != nil {
		return err
	}

	posted, err := b.postComments(ctx, p.Comment, p.Count)
	if err != nil {
		return err
	}
	if posted == 0 {
		return apperr.New(apperr.ErrAutomation, "failed to post any comments")
	}

	b.log.Info(fmt.Sprintf("✓ Successfully posted %d comment(s)!", posted))
	return nil
}

// Login establishes an authenticated session without posting anything
func (b *Bot) Login(ctx context.Context) bool {
	defer b.close(ctx, b.timings.CloseDelayLogin)

	if err := b.open(ctx); err != nil {
		b.fail(err)
		return false
	}
	if err := b.login(ctx); err != nil {
		b.fail(err)
		return false
	}

	b.log.Info("✅ Session setup complete! Later runs can use headless mode.")
	b.setState(StateDone)
	return true
}

func (b *Bot) open(ctx context.Context) error {
	b.setState(StateNew)
	b.log.Info("🤖 Starting browser...")

	s, err := b.launcher.Acquire(ctx, automation.SessionOptions{
		Profile:    b.cfg.Profile,
		ProfileDir: b.cfg.ProfileDir,
		Headless:   b.cfg.Headless,
	})
	if err != nil {
		return apperr.Wrap(apperr.ErrInfrastructure, err, "failed to start browser")
	}

	b.mu.Lock()
	b.surface = s
	b.mu.Unlock()

	b.setState(StateBrowserReady)
	b.log.Info("📂 Loaded session for profile: " + b.cfg.Profile)
	return nil
}

func (b *Bot) fail(err error) {
	switch {
	case automation.IsSessionLost(err):
		b.log.Error("Browser session lost: " + err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		b.log.Error("Stopped: " + err.Error())
	default:
		b.log.Error(err.Error())
	}
	b.setState(StateFailed)
}

// close tears the session down on every exit path
func (b *Bot) close(ctx context.Context, delay time.Duration) {
	b.mu.Lock()
	s := b.surface
	b.surface = nil
	b.mu.Unlock()

	if s == nil {
		b.setState(StateClosed)
		return
	}

	if delay > 0 {
		b.log.Info(fmt.Sprintf("Closing browser in %d seconds...", int(delay.Seconds())))
		_ = sleep(ctx, delay)
	}
	if err := s.Close(); err != nil {
		b.logger.Warn("Failed to close browser", zap.Error(err))
	}
	b.log.Info("Browser closed")
	b.setState(StateClosed)
}

// saveDebugScreenshot writes the current frame to the debug directory
func (b *Bot) saveDebugScreenshot(ctx context.Context, name string) {
	if b.cfg.DebugDir == "" {
		return
	}
	s := b.current()
	if s == nil {
		return
	}

	png, err := s.Screenshot(ctx)
	if err != nil {
		b.logger.Warn("Failed to capture debug screenshot", zap.Error(err))
		return
	}
	if err := os.MkdirAll(b.cfg.DebugDir, 0755); err != nil {
		b.logger.Warn("Failed to create debug directory", zap.Error(err))
		return
	}

	path := filepath.Join(b.cfg.DebugDir, name)
	if err := os.WriteFile(path, png, 0644); err != nil {
		b.logger.Warn("Failed to write debug screenshot", zap.Error(err))
		return
	}
	b.log.Warn("📸 Saved failure screenshot to " + path)
}
