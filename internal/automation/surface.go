// Package automation describes the browser capability the bot drives. The
// bot only sees these interfaces; internal/browser provides the real engine
// and automationtest a scripted fake.
package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shehryarbajwa/commentbot/internal/apperr"
)

var (
	// ErrElementNotFound is returned when no element matches a locator
	ErrElementNotFound = errors.New("element not found")

	// ErrNotEditable is returned when clearing an element that is not an
	// input, a textarea or contenteditable
	ErrNotEditable = errors.New("element is not editable")

	// ErrSessionLost marks a dead browser: the window was closed or the
	// target crashed. No further steps should be attempted on the surface.
	ErrSessionLost = fmt.Errorf("browser session lost: %w", apperr.ErrInfrastructure)
)

// By names a locator strategy
type By string

const (
	ByCSS   By = "css"
	ByXPath By = "xpath"
	ByName  By = "name"
	ByTag   By = "tag"
)

// Locator describes one way of finding an element
type Locator struct {
	Name  string
	By    By
	Value string
}

func (l Locator) String() string {
	if l.Name != "" {
		return l.Name
	}
	return fmt.Sprintf("%s=%s", l.By, l.Value)
}

// XPath builds an XPath locator
func XPath(name, expr string) Locator {
	return Locator{Name: name, By: ByXPath, Value: expr}
}

// CSS builds a CSS selector locator
func CSS(name, selector string) Locator {
	return Locator{Name: name, By: ByCSS, Value: selector}
}

// Name builds a locator matching the element's name attribute
func Name(name, attr string) Locator {
	return Locator{Name: name, By: ByName, Value: attr}
}

// Tag builds a locator matching any element with the tag
func Tag(name, tag string) Locator {
	return Locator{Name: name, By: ByTag, Value: tag}
}

// SessionOptions configures a browser session
type SessionOptions struct {
	Profile    string
	ProfileDir string
	Headless   bool
	UserAgent  string
	WindowW    int
	WindowH    int
}

// Launcher acquires browser sessions. Each call returns a fresh session that
// is owned by the caller until Close.
type Launcher interface {
	Acquire(ctx context.Context, opts SessionOptions) (Surface, error)
}

// Surface is one live browser page. Element operations resolve the locator
// each time they are called, so there are no stale handles.
type Surface interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)

	// Find waits up to wait for an element to be present. A zero wait
	// checks once. Absence is (false, nil), not an error.
	Find(ctx context.Context, loc Locator, wait time.Duration) (bool, error)

	// Clickable waits up to wait for an element to be visible.
	Clickable(ctx context.Context, loc Locator, wait time.Duration) (bool, error)

	Click(ctx context.Context, loc Locator) error

	// Clear empties an input, a textarea or a contenteditable element.
	// Other elements fail with ErrNotEditable.
	Clear(ctx context.Context, loc Locator) error
	SendKeys(ctx context.Context, loc Locator, text string) error
	PressEnter(ctx context.Context, loc Locator) error

	// CallOn runs a JavaScript function declaration with the first
	// matching element bound to this, decoding the result into res.
	CallOn(ctx context.Context, loc Locator, fn string, res any) error

	// Evaluate runs a script in the page, decoding the result into res.
	Evaluate(ctx context.Context, script string, res any) error

	Screenshot(ctx context.Context) ([]byte, error)

	// Close tears the session down. It is safe to call more than once.
	Close() error
}

// IsSessionLost reports whether err means the browser is gone
func IsSessionLost(err error) bool {
	return errors.Is(err, ErrSessionLost)
}
