package bot

// State is a step of the bot's state machine
type State int

const (
	StateNew State = iota
	StateBrowserReady
	StateLoginCheck
	StateLoggedIn
	StateLoginAutomated
	StateLoginManualWait
	StateNavigated
	StateCommenting
	StateDone
	StateFailed
	StateClosed
)

var stateNames = map[State]string{
	StateNew:             "NEW",
	StateBrowserReady:    "BROWSER_READY",
	StateLoginCheck:      "LOGIN_CHECK",
	StateLoggedIn:        "LOGGED_IN",
	StateLoginAutomated:  "LOGIN_AUTOMATED",
	StateLoginManualWait: "LOGIN_MANUAL_WAIT",
	StateNavigated:       "NAVIGATED",
	StateCommenting:      "COMMENTING",
	StateDone:            "DONE",
	StateFailed:          "FAILED",
	StateClosed:          "CLOSED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Task is the human-readable label shown as a job's current task
func (s State) Task() string {
	switch s {
	case StateNew:
		return "Starting browser"
	case StateBrowserReady:
		return "Browser ready"
	case StateLoginCheck:
		return "Checking login"
	case StateLoggedIn:
		return "Logged in"
	case StateLoginAutomated:
		return "Logging in"
	case StateLoginManualWait:
		return "Waiting for manual login"
	case StateNavigated:
		return "On post"
	case StateCommenting:
		return "Posting comments"
	case StateDone:
		return "Finished"
	case StateFailed:
		return "Failed"
	case StateClosed:
		return "Closing browser"
	default:
		return s.String()
	}
}
