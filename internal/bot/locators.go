package bot

import (
	"fmt"
	"strings"

	"github.com/shehryarbajwa/commentbot/internal/automation"
)

// loginPathMarker identifies the login page by URL
const loginPathMarker = "accounts/login"

// Page landmarks and controls, each list tried in order
var (
	landmarks = []automation.Locator{
		automation.XPath("navigation icons", "//svg[@aria-label='Home' or @aria-label='New post' or @aria-label='Direct message' or @aria-label='Explore' or @aria-label='Reels' or @aria-label='Messenger']"),
		automation.XPath("search bar", "//input[@placeholder='Search']"),
		automation.XPath("navigation sidebar", "//div[@role='navigation']"),
		automation.XPath("profile picture", `//img[contains(@alt, "profile picture")]`),
	}

	loginForm = automation.Name("login form", "username")

	consentButtons = []automation.Locator{
		automation.XPath("allow all cookies", "//button[contains(text(), 'Allow all cookies')]"),
		automation.XPath("allow essential and optional", "//button[contains(text(), 'Allow Essential and Optional')]"),
		automation.XPath("allow all", "//button[contains(text(), 'Allow all')]"),
		automation.XPath("allow button", "//button[contains(., 'Allow')]"),
		automation.XPath("allow div", "//div[contains(text(), 'Allow')]"),
	}

	usernameFields = []automation.Locator{
		automation.Name("username name", "username"),
		automation.XPath("username attribute", "//*[@name='username']"),
		automation.XPath("username aria label", "//input[@aria-label='Phone number, username, or email']"),
		automation.XPath("first text input", "//input[@type='text']"),
		automation.XPath("legacy username class", "//input[contains(@class, '_2hvTZ')]"),
	}

	passwordField = automation.Name("password", "password")

	loginSubmitButtons = []automation.Locator{
		automation.XPath("submit button", "//button[@type='submit']"),
		automation.XPath("log in text", "//div[text()='Log in']"),
		automation.XPath("log in button", "//button[contains(., 'Log In')]"),
	}

	saveInfoPrompt      = automation.XPath("save info", "//button[text()='Save info' or text()='Save Info']")
	notificationsPrompt = automation.XPath("not now", "//button[text()='Not Now' or text()='Not now']")

	loginOverlayClose = automation.XPath("login overlay close", "//div[@role='dialog']//svg[@aria-label='Close']")
	postLoginLink     = automation.XPath("post login link", "//a[text()='Log in' or text()='Log In']")

	commentBoxes = []automation.Locator{
		automation.XPath("comment textarea", "//textarea[@placeholder='Add a comment…' or @placeholder='Add a comment...' or contains(@aria-label, 'Add a comment')]"),
		automation.XPath("reel comment textarea", "//textarea[contains(@class, 'x78zum5')]"),
		automation.XPath("comment textbox", "//div[@role='textbox']"),
	}

	anyTextarea = automation.Tag("any textarea", "textarea")

	postButtons = []automation.Locator{
		automation.XPath("post text", "//div[text()='Post']"),
		automation.XPath("post button", "//button[contains(., 'Post')]"),
		automation.XPath("post role button", "//div[@role='button' and text()='Post']"),
		automation.XPath("post submit", "//button[@type='submit' and contains(., 'Post')]"),
	}
)

// textLocator matches any element whose text is exactly text
func textLocator(text string) automation.Locator {
	return automation.XPath("comment text", fmt.Sprintf("//*[text()=%s]", xpathLiteral(text)))
}

// xpathLiteral quotes s as an XPath 1.0 string literal. XPath has no escape
// sequences, so strings holding both quote kinds are built with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}

	parts := strings.Split(s, "'")
	args := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			args = append(args, `"'"`)
		}
		if p != "" {
			args = append(args, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(args, ", ") + ")"
}
