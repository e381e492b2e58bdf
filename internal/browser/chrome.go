// Package browser implements the automation surface with chromedp, either
// against a locally launched Chrome or a browserless container.
package browser

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/commentbot/internal/automation"
)

const (
	// DefaultUserAgent replaces the HeadlessChrome token in headless mode
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	defaultWindowW = 1920
	defaultWindowH = 1080
)

// hideWebdriverScript runs before any page script on every navigation
const hideWebdriverScript = `Object.defineProperty(navigator, 'webdriver', { get: () => undefined });`

// HasDisplay reports whether a visible browser window can be opened
func HasDisplay() bool {
	if runtime.GOOS != "linux" {
		return true
	}
	return os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""
}

// ResolveHeadless applies platform policy to a requested mode: without a
// display, headless is mandatory.
func ResolveHeadless(requested bool) bool {
	return requested || !HasDisplay()
}

// ChromeLauncher starts a local Chrome per session, using the profile's
// session directory as the user data dir.
type ChromeLauncher struct {
	ExecPath     string
	StartTimeout time.Duration
	Logger       *zap.Logger
}

var _ automation.Launcher = (*ChromeLauncher)(nil)

// Acquire launches Chrome and returns its first tab
func (l *ChromeLauncher) Acquire(ctx context.Context, opts automation.SessionOptions) (automation.Surface, error) {
	if opts.ProfileDir == "" {
		return nil, fmt.Errorf("profile directory is required")
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions(opts)...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	cancel := func() {
		cancelBrowser()
		cancelAlloc()
	}

	if err := start(ctx, browserCtx, l.startTimeout()); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	l.logger().Debug("Browser launched",
		zap.String("profile", opts.Profile),
		zap.String("dir", opts.ProfileDir),
		zap.Bool("headless", opts.Headless))

	return newSession(browserCtx, cancel, nil), nil
}

func (l *ChromeLauncher) allocatorOptions(opts automation.SessionOptions) []chromedp.ExecAllocatorOption {
	w, h := opts.WindowW, opts.WindowH
	if w == 0 || h == 0 {
		w, h = defaultWindowW, defaultWindowH
	}

	options := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(opts.ProfileDir),
		chromedp.Flag("profile-directory", "Default"),
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", opts.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.WindowSize(w, h),
	)

	if opts.Headless {
		ua := opts.UserAgent
		if ua == "" {
			ua = DefaultUserAgent
		}
		options = append(options, chromedp.UserAgent(ua))
	} else if opts.UserAgent != "" {
		options = append(options, chromedp.UserAgent(opts.UserAgent))
	}

	if l.ExecPath != "" {
		options = append(options, chromedp.ExecPath(l.ExecPath))
	}
	return options
}

func (l *ChromeLauncher) startTimeout() time.Duration {
	if l.StartTimeout <= 0 {
		return 60 * time.Second
	}
	return l.StartTimeout
}

func (l *ChromeLauncher) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

// start performs the first Run on browserCtx, which allocates the browser.
// That Run must not use a derived timeout context or the browser would die
// with it, so the bound is enforced by racing a timer instead.
func start(ctx, browserCtx context.Context, timeout time.Duration) error {
	errc := make(chan error, 1)
	go func() {
		errc <- chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriverScript).Do(ctx)
			return err
		}))
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-errc:
		return err
	case <-timer.C:
		return fmt.Errorf("browser did not start within %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
