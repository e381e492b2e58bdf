// Package logbus fans bot events out to subscribers, partitioned by profile.
package logbus

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventType distinguishes progress lines from the terminal event
type EventType string

const (
	TypeLog      EventType = "bot_log"
	TypeFinished EventType = "bot_finished"
)

// Level is the severity of a bot_log event
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

// Event is one message on a profile's channel
type Event struct {
	Type      EventType
	Profile   string
	Message   string
	Level     Level
	Timestamp time.Time
	Success   bool
}

// Payload is the wire form pushed to dashboard clients
func (e Event) Payload() map[string]any {
	if e.Type == TypeFinished {
		return map[string]any{
			"success": e.Success,
			"profile": e.Profile,
		}
	}
	return map[string]any{
		"message":   e.Message,
		"level":     string(e.Level),
		"timestamp": e.Timestamp.Format("15:04:05"),
		"profile":   e.Profile,
	}
}

// MarshalJSON renders the event as {"event": type, "data": payload}
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Event EventType      `json:"event"`
		Data  map[string]any `json:"data"`
	}{e.Type, e.Payload()})
}

// Sink accepts events. The bot and the job registry publish through it.
type Sink interface {
	Publish(Event)
}

// NopSink discards everything
type NopSink struct{}

func (NopSink) Publish(Event) {}

// Subscriber receives events for the profiles it joined. Deliver must not
// block; a subscriber that cannot keep up drops events.
type Subscriber interface {
	ID() string
	Deliver(Event)
}

// Bus is a profile-partitioned publish/subscribe channel. Events are not
// retained: a subscriber only sees what is published while it is joined.
type Bus struct {
	mu       sync.RWMutex
	channels map[string]map[string]Subscriber
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a bus that mirrors every event to logger
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		channels: make(map[string]map[string]Subscriber),
		logger:   logger,
		now:      time.Now,
	}
}

// Join subscribes sub to profile. Joining twice is a no-op.
func (b *Bus) Join(profile string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.channels[profile]
	if !ok {
		subs = make(map[string]Subscriber)
		b.channels[profile] = subs
	}
	subs[sub.ID()] = sub
}

// Leave unsubscribes sub from profile. Leaving a channel not joined is a no-op.
func (b *Bus) Leave(profile string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leave(profile, sub.ID())
}

// LeaveAll removes sub from every channel
func (b *Bus) LeaveAll(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for profile := range b.channels {
		b.leave(profile, sub.ID())
	}
}

func (b *Bus) leave(profile, id string) {
	subs, ok := b.channels[profile]
	if !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(b.channels, profile)
	}
}

// Subscribers returns how many subscribers profile's channel has
func (b *Bus) Subscribers(profile string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels[profile])
}

// Publish delivers e to the subscribers currently joined to e.Profile
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = b.now()
	}
	b.mirror(e)

	b.mu.RLock()
	targets := make([]Subscriber, 0, len(b.channels[e.Profile]))
	for _, sub := range b.channels[e.Profile] {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		sub.Deliver(e)
	}
}

func (b *Bus) mirror(e Event) {
	fields := []zap.Field{zap.String("profile", e.Profile)}
	if e.Type == TypeFinished {
		b.logger.Info("Bot finished", append(fields, zap.Bool("success", e.Success))...)
		return
	}

	switch e.Level {
	case LevelError:
		b.logger.Error(e.Message, fields...)
	case LevelWarning:
		b.logger.Warn(e.Message, fields...)
	default:
		b.logger.Info(e.Message, fields...)
	}
}

// Logger is a profile-bound helper for emitting bot_log events
type Logger struct {
	sink    Sink
	profile string
}

// For binds a sink to a profile
func For(sink Sink, profile string) Logger {
	if sink == nil {
		sink = NopSink{}
	}
	return Logger{sink: sink, profile: profile}
}

func (l Logger) Info(msg string)  { l.log(LevelInfo, msg) }
func (l Logger) Warn(msg string)  { l.log(LevelWarning, msg) }
func (l Logger) Error(msg string) { l.log(LevelError, msg) }

func (l Logger) log(level Level, msg string) {
	l.sink.Publish(Event{
		Type:      TypeLog,
		Profile:   l.profile,
		Message:   msg,
		Level:     level,
		Timestamp: time.Now(),
	})
}

// Finished publishes the terminal event
func (l Logger) Finished(success bool) {
	l.sink.Publish(Event{
		Type:      TypeFinished,
		Profile:   l.profile,
		Success:   success,
		Timestamp: time.Now(),
	})
}
