package bot

import (
	"context"
	"strings"

	"github.com/shehryarbajwa/commentbot/internal/automation"
)

// LoginStatus is the outcome of a login check
type LoginStatus int

const (
	LoginUnclear LoginStatus = iota
	LoggedIn
	LoggedOut
	SessionLost
)

func (s LoginStatus) String() string {
	switch s {
	case LoggedIn:
		return "logged_in"
	case LoggedOut:
		return "logged_out"
	case SessionLost:
		return "session_lost"
	default:
		return "unclear"
	}
}

// PageSnapshot is what a login check observed on the page
type PageSnapshot struct {
	URL       string
	Landmark  string
	LoginForm bool
	Lost      bool
}

// Classify decides login status from a snapshot. Any landmark wins over a
// login form; a login form or login URL without a landmark means logged
// out; anything else is unclear.
func Classify(s PageSnapshot) LoginStatus {
	switch {
	case s.Lost:
		return SessionLost
	case s.Landmark != "":
		return LoggedIn
	case s.LoginForm, strings.Contains(s.URL, loginPathMarker):
		return LoggedOut
	default:
		return LoginUnclear
	}
}

// CheckLogin inspects the current page and classifies it
func (b *Bot) CheckLogin(ctx context.Context) LoginStatus {
	snap := b.snapshot(ctx)
	status := Classify(snap)

	switch status {
	case SessionLost:
		b.log.Warn("Browser session lost or closed.")
	case LoggedIn:
		b.log.Info("✅ Session verified: found " + snap.Landmark)
	case LoggedOut:
		if snap.LoginForm {
			b.log.Info("Not logged in: login form detected")
		} else {
			b.log.Info("Not logged in: on login URL")
		}
	default:
		b.log.Info("Login status unclear (no navigation landmarks yet)")
	}
	return status
}

func (b *Bot) snapshot(ctx context.Context) PageSnapshot {
	s := b.current()
	if s == nil {
		return PageSnapshot{Lost: true}
	}

	url, err := s.CurrentURL(ctx)
	if automation.IsSessionLost(err) {
		return PageSnapshot{Lost: true}
	}
	snap := PageSnapshot{URL: url}

	b.log.Info("🔍 Checking session status...")
	if err := sleep(ctx, b.timings.CheckSettle); err != nil {
		return snap
	}

	for _, loc := range landmarks {
		found, err := s.Find(ctx, loc, 0)
		if automation.IsSessionLost(err) {
			return PageSnapshot{Lost: true}
		}
		if found {
			snap.Landmark = loc.Name
			return snap
		}
	}

	found, err := s.Find(ctx, loginForm, 0)
	if automation.IsSessionLost(err) {
		return PageSnapshot{Lost: true}
	}
	snap.LoginForm = found
	return snap
}
