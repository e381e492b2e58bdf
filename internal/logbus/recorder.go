package logbus

import (
	"strings"
	"sync"
)

// Recorder is a Sink and Subscriber that keeps every event it sees
type Recorder struct {
	mu     sync.Mutex
	id     string
	events []Event
	notify chan struct{}
}

// NewRecorder creates a recorder with the given subscriber ID
func NewRecorder(id string) *Recorder {
	return &Recorder{id: id, notify: make(chan struct{}, 1)}
}

func (r *Recorder) ID() string { return r.id }

func (r *Recorder) Deliver(e Event) { r.Publish(e) }

func (r *Recorder) Publish(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Events returns a copy of everything recorded
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Messages returns the bot_log messages in order
func (r *Recorder) Messages() []string {
	var out []string
	for _, e := range r.Events() {
		if e.Type == TypeLog {
			out = append(out, e.Message)
		}
	}
	return out
}

// Contains reports whether any bot_log message contains substr
func (r *Recorder) Contains(substr string) bool {
	for _, m := range r.Messages() {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

// Finished returns the terminal events
func (r *Recorder) Finished() []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == TypeFinished {
			out = append(out, e)
		}
	}
	return out
}
