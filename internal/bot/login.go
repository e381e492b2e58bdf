package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shehryarbajwa/commentbot/internal/automation"
)

// notifyScript makes reactive UIs pick up a value set by key events
const notifyScript = `function() {
	this.dispatchEvent(new Event('input', { bubbles: true }));
	this.dispatchEvent(new Event('change', { bubbles: true }));
	this.dispatchEvent(new Event('blur', { bubbles: true }));
}`

// readValueScript returns an input's value, or the text of a contenteditable
const readValueScript = `function() {
	return this.value !== undefined ? this.value : (this.textContent || '');
}`

// login ends with an authenticated session or an error. It tries the
// existing session, then the login form, then waits for a human.
func (b *Bot) login(ctx context.Context) error {
	s := b.current()
	b.setState(StateLoginCheck)

	b.log.Info("🏠 Opening homepage...")
	if err := s.Navigate(ctx, b.cfg.HomeURL); err != nil {
		return fmt.Errorf("failed to open homepage: %w", err)
	}
	if err := sleep(ctx, b.timings.HomeSettle); err != nil {
		return err
	}

	switch b.CheckLogin(ctx) {
	case LoggedIn:
		b.log.Info("✨ Already logged in.")
		b.setState(StateLoggedIn)
		return nil
	case SessionLost:
		return automation.ErrSessionLost
	}

	b.log.Info("📍 Navigating to login page...")
	if err := s.Navigate(ctx, b.cfg.LoginURL); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}
	if err := sleep(ctx, b.timings.LoginPageSettle); err != nil {
		return err
	}

	b.setState(StateLoginAutomated)
	ok, err := b.automatedLogin(ctx)
	switch {
	case ok:
		b.log.Info("🎊 Automated login successful!")
		b.setState(StateLoggedIn)
		return nil
	case automation.IsSessionLost(err), ctx.Err() != nil:
		if err == nil {
			err = ctx.Err()
		}
		return err
	case err != nil:
		b.log.Warn(fmt.Sprintf("Automated login failed: %v", err))
	default:
		b.log.Warn("Automated login could not be verified.")
	}

	b.setState(StateLoginManualWait)
	return b.manualLogin(ctx)
}

// automatedLogin fills and submits the login form. (false, nil) means the
// form was submitted but the result is not a logged-in page.
func (b *Bot) automatedLogin(ctx context.Context) (bool, error) {
	s := b.current()
	b.log.Info("Attempting automated login for user: " + b.cfg.Credentials.Username)

	if loc, ok, err := b.firstClickable(ctx, consentButtons, b.timings.ConsentWait); err != nil {
		return false, err
	} else if ok {
		if err := s.Click(ctx, loc); err == nil {
			b.log.Info("Dismissed cookie consent banner: " + loc.String())
			if err := sleep(ctx, b.timings.ConsentSettle); err != nil {
				return false, err
			}
		} else if automation.IsSessionLost(err) {
			return false, err
		}
	}

	b.log.Info("🔍 Looking for username field...")
	user, ok, err := b.firstPresent(ctx, usernameFields, b.timings.FieldWait)
	if err != nil {
		return false, err
	}
	if !ok {
		if b.cfg.Headless {
			b.saveDebugScreenshot(ctx, fmt.Sprintf("login_failure_%s.png", b.cfg.Profile))
		}
		return false, fmt.Errorf("username field not found with any known locator: %w", automation.ErrElementNotFound)
	}
	b.log.Info("📍 Found username field: " + user.String())

	b.log.Info("🔍 Looking for password field...")
	found, err := s.Find(ctx, passwordField, b.timings.FieldWait)
	if err != nil {
		return false, err
	}
	if !found {
		return false, fmt.Errorf("password field not found: %w", automation.ErrElementNotFound)
	}

	b.log.Info("⌨️ Typing username: " + b.cfg.Credentials.Username)
	if err := b.typeSlowly(ctx, user, b.cfg.Credentials.Username); err != nil {
		return false, err
	}
	if err := sleep(ctx, b.timings.FieldPause); err != nil {
		return false, err
	}
	b.log.Info("⌨️ Typing password...")
	if err := b.typeSlowly(ctx, passwordField, b.cfg.Credentials.Password); err != nil {
		return false, err
	}
	if err := sleep(ctx, b.timings.FieldPause); err != nil {
		return false, err
	}

	if err := b.submit(ctx, loginSubmitButtons, passwordField, b.timings.FieldWait); err != nil {
		return false, err
	}

	b.log.Info(fmt.Sprintf("🔓 Login form submitted. Waiting for page transition (%s)...", b.timings.SubmitSettle))
	if err := sleep(ctx, b.timings.SubmitSettle); err != nil {
		return false, err
	}

	if err := b.dismissPrompt(ctx, saveInfoPrompt, "💾 Saved login info for future use."); err != nil {
		return false, err
	}
	if err := b.dismissPrompt(ctx, notificationsPrompt, "🔕 Dismissed notification prompt."); err != nil {
		return false, err
	}

	switch b.CheckLogin(ctx) {
	case LoggedIn:
		return true, nil
	case SessionLost:
		return false, automation.ErrSessionLost
	default:
		return false, nil
	}
}

// manualLogin waits for a human to finish logging in
func (b *Bot) manualLogin(ctx context.Context) error {
	b.log.Info(strings.Repeat("=", 60))
	b.log.Info("MANUAL LOGIN REQUIRED")
	b.log.Info(strings.Repeat("=", 60))
	b.log.Info("1. Log in using the browser window.")
	b.log.Info("2. Complete any CAPTCHA or two-factor challenge.")
	b.log.Info("3. Wait until the home feed is visible.")

	if b.cfg.ManualConfirm != nil {
		b.log.Info("4. Then press Enter in the terminal to continue.")
		if err := b.cfg.ManualConfirm(ctx); err != nil {
			return fmt.Errorf("manual confirmation aborted: %w", err)
		}
		if err := sleep(ctx, b.timings.ManualConfirmSettle); err != nil {
			return err
		}

		switch b.CheckLogin(ctx) {
		case LoggedIn:
			b.log.Info("Manual login verified. Proceeding...")
			b.setState(StateLoggedIn)
			return nil
		case SessionLost:
			return automation.ErrSessionLost
		default:
			return fmt.Errorf("still not logged in after manual confirmation: %w", errLoginFailed)
		}
	}

	b.log.Info("Waiting for manual login to complete (monitoring browser)...")
	for attempt := 0; attempt < b.timings.ManualAttempts; attempt++ {
		switch b.CheckLogin(ctx) {
		case LoggedIn:
			b.log.Info("Manual login detected! Proceeding...")
			b.setState(StateLoggedIn)
			return nil
		case SessionLost:
			return fmt.Errorf("login aborted, browser window closed: %w", automation.ErrSessionLost)
		}
		if err := sleep(ctx, b.timings.ManualPoll); err != nil {
			return err
		}
	}

	return fmt.Errorf("manual login timeout reached: %w", errLoginFailed)
}

// firstPresent returns the first locator that matches within wait
func (b *Bot) firstPresent(ctx context.Context, locs []automation.Locator, wait time.Duration) (automation.Locator, bool, error) {
	return b.first(ctx, locs, func(loc automation.Locator) (bool, error) {
		return b.current().Find(ctx, loc, wait)
	})
}

// firstClickable returns the first locator that becomes visible within wait
func (b *Bot) firstClickable(ctx context.Context, locs []automation.Locator, wait time.Duration) (automation.Locator, bool, error) {
	return b.first(ctx, locs, func(loc automation.Locator) (bool, error) {
		return b.current().Clickable(ctx, loc, wait)
	})
}

// first evaluates locators in order and stops at the first hit. Only a lost
// session or a finished context ends the search early.
func (b *Bot) first(ctx context.Context, locs []automation.Locator, probe func(automation.Locator) (bool, error)) (automation.Locator, bool, error) {
	for _, loc := range locs {
		ok, err := probe(loc)
		if err != nil {
			if automation.IsSessionLost(err) || ctx.Err() != nil {
				return automation.Locator{}, false, err
			}
			continue
		}
		if ok {
			return loc, true, nil
		}
	}
	return automation.Locator{}, false, ctx.Err()
}

// submit clicks the first available button, or presses Enter in field
func (b *Bot) submit(ctx context.Context, buttons []automation.Locator, field automation.Locator, wait time.Duration) error {
	s := b.current()

	btn, ok, err := b.firstClickable(ctx, buttons, wait)
	if err != nil {
		return err
	}
	if ok {
		err := s.Click(ctx, btn)
		if err == nil {
			b.log.Info("🚀 Clicked " + btn.String())
			return nil
		}
		if automation.IsSessionLost(err) {
			return err
		}
	}

	b.log.Warn("⚠️ No clickable button, falling back to the Enter key...")
	return s.PressEnter(ctx, field)
}

// dismissPrompt clicks an optional dialog button if it shows up
func (b *Bot) dismissPrompt(ctx context.Context, loc automation.Locator, done string) error {
	s := b.current()

	ok, err := s.Clickable(ctx, loc, b.timings.PromptWait)
	if err != nil || !ok {
		if automation.IsSessionLost(err) {
			return err
		}
		return nil
	}
	if err := s.Click(ctx, loc); err != nil {
		if automation.IsSessionLost(err) {
			return err
		}
		return nil
	}

	b.log.Info(done)
	return sleep(ctx, b.timings.PromptSettle)
}

// typeSlowly enters text one character at a time. Characters outside the
// BMP cannot be sent as key events and are appended by script.
func (b *Bot) typeSlowly(ctx context.Context, loc automation.Locator, text string) error {
	s := b.current()

	if err := s.Click(ctx, loc); err != nil {
		return err
	}
	if err := s.Clear(ctx, loc); err != nil {
		return err
	}

	for _, r := range text {
		var err error
		if r > 0xFFFF {
			err = s.CallOn(ctx, loc, appendScript(string(r)), nil)
		} else {
			err = s.SendKeys(ctx, loc, string(r))
		}
		if err != nil {
			return err
		}
		if err := sleep(ctx, b.timings.KeyDelay); err != nil {
			return err
		}
	}

	return s.CallOn(ctx, loc, notifyScript, nil)
}

// appendScript adds text at the end of a form field, or at the caret of a
// focused contenteditable box
func appendScript(text string) string {
	lit, _ := json.Marshal(text)
	return fmt.Sprintf(`function() {
	var text = %s;
	if (this.tagName === 'INPUT' || this.tagName === 'TEXTAREA') {
		this.value += text;
	} else if (!document.execCommand('insertText', false, text)) {
		this.textContent += text;
	}
}`, lit)
}
