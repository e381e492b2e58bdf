// Package automationtest provides a scripted in-memory automation surface.
package automationtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shehryarbajwa/commentbot/internal/automation"
)

// Call records one operation against the fake
type Call struct {
	Op    string
	Loc   automation.Locator
	Text  string
	Extra string
}

// Fake is a page model keyed by locator value. Elements are present when
// shown; SendKeys and Clear edit per-element values. Only elements marked
// Editable can be cleared, as in a real page. Hooks run without the fake's
// lock held, so they may call Show, Hide, SetValue and SetURL.
type Fake struct {
	mu       sync.Mutex
	url      string
	present  map[string]bool
	editable map[string]bool
	values   map[string]string
	calls    []Call
	lost     bool
	closed   int
	png      []byte

	// OnNavigate replaces the page model on navigation
	OnNavigate func(url string)
	// OnClick runs after a successful click, keyed by locator value
	OnClick map[string]func()
	// OnEnter runs after PressEnter, keyed by locator value
	OnEnter map[string]func()
	// Fail injects an error for an operation. Returning nil lets it proceed.
	Fail func(op string, loc automation.Locator) error
}

var _ automation.Surface = (*Fake)(nil)

// New returns an empty page
func New() *Fake {
	return &Fake{
		present:  make(map[string]bool),
		editable: make(map[string]bool),
		values:   make(map[string]string),
		OnClick:  make(map[string]func()),
		OnEnter:  make(map[string]func()),
		png:      []byte("\x89PNG\r\n\x1a\n"),
	}
}

// Show makes elements present
func (f *Fake) Show(values ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range values {
		f.present[v] = true
	}
}

// Hide removes elements
func (f *Fake) Hide(values ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range values {
		delete(f.present, v)
	}
}

// Editable marks elements as inputs, textareas or contenteditable boxes.
// The marks survive Reset and Hide.
func (f *Fake) Editable(values ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range values {
		f.editable[v] = true
	}
}

// Reset removes every element
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.present = make(map[string]bool)
}

// SetValue sets an element's value
func (f *Fake) SetValue(value, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[value] = text
}

// Value returns an element's value
func (f *Fake) Value(value string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[value]
}

// SetURL changes the location without firing OnNavigate
func (f *Fake) SetURL(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = url
}

// Lose makes every later operation fail with automation.ErrSessionLost
func (f *Fake) Lose() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lost = true
}

// Calls returns a copy of the recorded operations
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Count returns how many recorded calls match op and, when non-empty, the
// locator value
func (f *Fake) Count(op, value string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op && (value == "" || c.Loc.Value == value) {
			n++
		}
	}
	return n
}

// Closed returns how many times Close was called
func (f *Fake) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) begin(op string, loc automation.Locator, text, extra string) error {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Op: op, Loc: loc, Text: text, Extra: extra})
	lost := f.lost
	fail := f.Fail
	f.mu.Unlock()

	if lost {
		return fmt.Errorf("%s: %w", op, automation.ErrSessionLost)
	}
	if fail != nil {
		return fail(op, loc)
	}
	return nil
}

func (f *Fake) has(loc automation.Locator) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.present[loc.Value]
}

func (f *Fake) require(loc automation.Locator) error {
	if !f.has(loc) {
		return fmt.Errorf("%s: %w", loc, automation.ErrElementNotFound)
	}
	return nil
}

func (f *Fake) Navigate(ctx context.Context, url string) error {
	if err := f.begin("navigate", automation.Locator{}, url, ""); err != nil {
		return err
	}
	f.SetURL(url)
	if f.OnNavigate != nil {
		f.OnNavigate(url)
	}
	return ctx.Err()
}

func (f *Fake) CurrentURL(ctx context.Context) (string, error) {
	if err := f.begin("url", automation.Locator{}, "", ""); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, nil
}

func (f *Fake) Find(ctx context.Context, loc automation.Locator, wait time.Duration) (bool, error) {
	if err := f.begin("find", loc, "", ""); err != nil {
		return false, err
	}
	return f.has(loc), nil
}

func (f *Fake) Clickable(ctx context.Context, loc automation.Locator, wait time.Duration) (bool, error) {
	if err := f.begin("clickable", loc, "", ""); err != nil {
		return false, err
	}
	return f.has(loc), nil
}

func (f *Fake) Click(ctx context.Context, loc automation.Locator) error {
	if err := f.begin("click", loc, "", ""); err != nil {
		return err
	}
	if err := f.require(loc); err != nil {
		return err
	}
	if hook := f.OnClick[loc.Value]; hook != nil {
		hook()
	}
	return nil
}

func (f *Fake) Clear(ctx context.Context, loc automation.Locator) error {
	if err := f.begin("clear", loc, "", ""); err != nil {
		return err
	}
	if err := f.require(loc); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.editable[loc.Value] {
		return fmt.Errorf("%s: %w", loc, automation.ErrNotEditable)
	}
	f.values[loc.Value] = ""
	return nil
}

func (f *Fake) SendKeys(ctx context.Context, loc automation.Locator, text string) error {
	if err := f.begin("keys", loc, text, ""); err != nil {
		return err
	}
	if err := f.require(loc); err != nil {
		return err
	}
	f.mu.Lock()
	f.values[loc.Value] += text
	f.mu.Unlock()
	return nil
}

func (f *Fake) PressEnter(ctx context.Context, loc automation.Locator) error {
	if err := f.begin("enter", loc, "", ""); err != nil {
		return err
	}
	if err := f.require(loc); err != nil {
		return err
	}
	if hook := f.OnEnter[loc.Value]; hook != nil {
		hook()
	}
	return nil
}

// CallOn records the script. A *string result receives the element's value.
func (f *Fake) CallOn(ctx context.Context, loc automation.Locator, fn string, res any) error {
	if err := f.begin("call", loc, "", fn); err != nil {
		return err
	}
	if err := f.require(loc); err != nil {
		return err
	}
	if s, ok := res.(*string); ok {
		*s = f.Value(loc.Value)
	}
	return nil
}

func (f *Fake) Evaluate(ctx context.Context, script string, res any) error {
	return f.begin("evaluate", automation.Locator{}, "", script)
}

func (f *Fake) Screenshot(ctx context.Context) ([]byte, error) {
	if err := f.begin("screenshot", automation.Locator{}, "", ""); err != nil {
		return nil, err
	}
	return f.png, nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// Launcher hands out a fixed surface
type Launcher struct {
	mu       sync.Mutex
	Surface  automation.Surface
	Err      error
	acquired []automation.SessionOptions
}

var _ automation.Launcher = (*Launcher)(nil)

func (l *Launcher) Acquire(ctx context.Context, opts automation.SessionOptions) (automation.Surface, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquired = append(l.acquired, opts)
	if l.Err != nil {
		return nil, l.Err
	}
	return l.Surface, nil
}

// Acquired returns the options of every Acquire call
func (l *Launcher) Acquired() []automation.SessionOptions {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]automation.SessionOptions(nil), l.acquired...)
}
