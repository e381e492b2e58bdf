package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/shehryarbajwa/commentbot/internal/automation"
)

const (
	defaultActionTimeout = 15 * time.Second
	defaultNavTimeout    = 45 * time.Second
)

// lostPatterns are CDP/transport errors that mean the page or browser is gone
var lostPatterns = []string{
	"invalid context",
	"target closed",
	"no such window",
	"no target with given id",
	"session with given id not found",
	"inspected target navigated or closed",
	"websocket: close",
	"use of closed network connection",
	"connection reset by peer",
	"broken pipe",
}

// Session is one chromedp tab implementing automation.Surface
type Session struct {
	ctx           context.Context
	cancel        context.CancelFunc
	release       func() error
	closeOnce     sync.Once
	closeErr      error
	actionTimeout time.Duration
	navTimeout    time.Duration
}

var _ automation.Surface = (*Session)(nil)

func newSession(ctx context.Context, cancel context.CancelFunc, release func() error) *Session {
	return &Session{
		ctx:           ctx,
		cancel:        cancel,
		release:       release,
		actionTimeout: defaultActionTimeout,
		navTimeout:    defaultNavTimeout,
	}
}

// Navigate loads url and waits for the load event
func (s *Session) Navigate(ctx context.Context, url string) error {
	opCtx, done := s.opContext(ctx, s.navTimeout)
	defer done()

	return s.classify(ctx, "navigate", chromedp.Run(opCtx, chromedp.Navigate(url)))
}

// CurrentURL returns the page location
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	opCtx, done := s.opContext(ctx, s.actionTimeout)
	defer done()

	var url string
	if err := chromedp.Run(opCtx, chromedp.Location(&url)); err != nil {
		return "", s.classify(ctx, "location", err)
	}
	return url, nil
}

// Find checks for an element, waiting up to wait for it to appear
func (s *Session) Find(ctx context.Context, loc automation.Locator, wait time.Duration) (bool, error) {
	sel, by := selector(loc)

	if wait <= 0 {
		opCtx, done := s.opContext(ctx, s.actionTimeout)
		defer done()

		var nodes []*cdp.Node
		if err := chromedp.Run(opCtx, chromedp.Nodes(sel, &nodes, by, chromedp.AtLeast(0))); err != nil {
			return false, s.classify(ctx, "find "+loc.String(), err)
		}
		return len(nodes) > 0, nil
	}

	opCtx, done := s.opContext(ctx, wait)
	defer done()
	return s.waitFor(ctx, opCtx, loc, chromedp.WaitReady(sel, by))
}

// Clickable waits up to wait for an element to become visible
func (s *Session) Clickable(ctx context.Context, loc automation.Locator, wait time.Duration) (bool, error) {
	sel, by := selector(loc)
	if wait <= 0 {
		wait = time.Millisecond
	}

	opCtx, done := s.opContext(ctx, wait)
	defer done()
	return s.waitFor(ctx, opCtx, loc, chromedp.WaitVisible(sel, by))
}

// Click clicks the first visible match
func (s *Session) Click(ctx context.Context, loc automation.Locator) error {
	sel, by := selector(loc)
	opCtx, done := s.opContext(ctx, s.actionTimeout)
	defer done()

	return s.classify(ctx, "click "+loc.String(), chromedp.Run(opCtx, chromedp.Click(sel, by, chromedp.NodeVisible)))
}

// clearScript empties form fields and rich-text boxes alike. chromedp.Clear
// only handles inputs and textareas that already hold text.
const clearScript = `function() {
	if (this.tagName === 'INPUT' || this.tagName === 'TEXTAREA') {
		this.value = '';
	} else if (this.isContentEditable) {
		this.textContent = '';
	} else {
		return false;
	}
	this.dispatchEvent(new Event('input', { bubbles: true }));
	return true;
}`

// Clear empties an input, textarea or contenteditable element
func (s *Session) Clear(ctx context.Context, loc automation.Locator) error {
	var cleared bool
	if err := s.CallOn(ctx, loc, clearScript, &cleared); err != nil {
		return err
	}
	if !cleared {
		return fmt.Errorf("%s: %w", loc, automation.ErrNotEditable)
	}
	return nil
}

// SendKeys types text into the element as key events
func (s *Session) SendKeys(ctx context.Context, loc automation.Locator, text string) error {
	sel, by := selector(loc)
	opCtx, done := s.opContext(ctx, s.actionTimeout)
	defer done()

	return s.classify(ctx, "type into "+loc.String(), chromedp.Run(opCtx, chromedp.SendKeys(sel, text, by)))
}

// PressEnter sends the Enter key to the element
func (s *Session) PressEnter(ctx context.Context, loc automation.Locator) error {
	return s.SendKeys(ctx, loc, kb.Enter)
}

// CallOn runs fn with the first matching element as this
func (s *Session) CallOn(ctx context.Context, loc automation.Locator, fn string, res any) error {
	sel, by := selector(loc)
	opCtx, done := s.opContext(ctx, s.actionTimeout)
	defer done()

	var nodes []*cdp.Node
	if err := chromedp.Run(opCtx, chromedp.Nodes(sel, &nodes, by, chromedp.AtLeast(0))); err != nil {
		return s.classify(ctx, "find "+loc.String(), err)
	}
	if len(nodes) == 0 {
		return fmt.Errorf("%s: %w", loc, automation.ErrElementNotFound)
	}

	err := chromedp.Run(opCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithNodeID(nodes[0].NodeID).Do(ctx)
		if err != nil {
			return err
		}

		result, exception, err := runtime.CallFunctionOn(fn).
			WithObjectID(obj.ObjectID).
			WithReturnByValue(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exception != nil {
			return fmt.Errorf("script exception: %s", exception.Text)
		}
		if res == nil || result == nil || len(result.Value) == 0 {
			return nil
		}
		return json.Unmarshal([]byte(result.Value), res)
	}))
	return s.classify(ctx, "script on "+loc.String(), err)
}

// Evaluate runs a page-level script
func (s *Session) Evaluate(ctx context.Context, script string, res any) error {
	opCtx, done := s.opContext(ctx, s.actionTimeout)
	defer done()

	return s.classify(ctx, "evaluate", chromedp.Run(opCtx, chromedp.Evaluate(script, res)))
}

// Screenshot captures the visible viewport as PNG
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	opCtx, done := s.opContext(ctx, s.actionTimeout)
	defer done()

	var buf []byte
	if err := chromedp.Run(opCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, s.classify(ctx, "screenshot", err)
	}
	return buf, nil
}

// Close shuts the browser down and releases whatever backs it
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		// Graceful close lets Chrome flush cookies to the profile directory
		closeCtx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
		_ = chromedp.Cancel(closeCtx)
		cancel()

		s.cancel()
		if s.release != nil {
			s.closeErr = s.release()
		}
	})
	return s.closeErr
}

// opContext derives a chromedp context for one operation that also stops
// when the caller's context does
func (s *Session) opContext(ctx context.Context, timeout time.Duration) (context.Context, func()) {
	opCtx, cancel := context.WithTimeout(s.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

func (s *Session) waitFor(ctx, opCtx context.Context, loc automation.Locator, action chromedp.Action) (bool, error) {
	err := chromedp.Run(opCtx, action)
	if err == nil {
		return true, nil
	}
	if s.ctx.Err() == nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return false, nil
	}
	return false, s.classify(ctx, "wait for "+loc.String(), err)
}

func (s *Session) classify(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if s.ctx.Err() != nil || isLost(err) {
		return fmt.Errorf("%s: %w (%v)", op, automation.ErrSessionLost, err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%s failed: %w", op, err)
}

func isLost(err error) bool {
	if errors.Is(err, chromedp.ErrInvalidContext) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range lostPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// selector maps a locator onto a chromedp query
func selector(loc automation.Locator) (string, chromedp.QueryOption) {
	switch loc.By {
	case automation.ByXPath:
		return loc.Value, chromedp.BySearch
	case automation.ByName:
		return fmt.Sprintf(`[name=%q]`, loc.Value), chromedp.ByQuery
	default:
		return loc.Value, chromedp.ByQuery
	}
}
