package logbus

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPublishOnlyReachesJoinedProfile(t *testing.T) {
	bus := New(nil)
	alice := NewRecorder("a")
	bob := NewRecorder("b")

	bus.Join("alice", alice)
	bus.Join("bob", bob)

	For(bus, "alice").Info("hello alice")

	require.Len(t, alice.Events(), 1)
	assert.Equal(t, "hello alice", alice.Events()[0].Message)
	assert.Empty(t, bob.Events())
}

func TestJoinAndLeaveAreIdempotent(t *testing.T) {
	bus := New(nil)
	sub := NewRecorder("s")

	bus.Join("alice", sub)
	bus.Join("alice", sub)
	assert.Equal(t, 1, bus.Subscribers("alice"))

	For(bus, "alice").Info("once")
	assert.Len(t, sub.Events(), 1)

	bus.Leave("alice", sub)
	bus.Leave("alice", sub)
	bus.Leave("nobody", sub)
	assert.Equal(t, 0, bus.Subscribers("alice"))

	For(bus, "alice").Info("unheard")
	assert.Len(t, sub.Events(), 1)
}

func TestNoReplayForLateSubscribers(t *testing.T) {
	bus := New(nil)
	For(bus, "alice").Info("before")

	late := NewRecorder("late")
	bus.Join("alice", late)
	assert.Empty(t, late.Events())

	For(bus, "alice").Finished(true)
	require.Len(t, late.Finished(), 1)
	assert.True(t, late.Finished()[0].Success)
}

func TestLeaveAll(t *testing.T) {
	bus := New(nil)
	sub := NewRecorder("s")
	bus.Join("alice", sub)
	bus.Join("bob", sub)

	bus.LeaveAll(sub)

	For(bus, "alice").Info("x")
	For(bus, "bob").Info("y")
	assert.Empty(t, sub.Events())
}

func TestConcurrentPublishAndJoin(t *testing.T) {
	bus := New(nil)
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		sub := NewRecorder(string(rune('a' + i)))
		go func() {
			defer wg.Done()
			bus.Join("alice", sub)
			bus.Leave("alice", sub)
		}()
		go func() {
			defer wg.Done()
			For(bus, "alice").Warn("tick")
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, bus.Subscribers("alice"))
}

func TestEventsMirrorToLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	bus := New(zap.New(core))

	For(bus, "alice").Error("boom")
	For(bus, "alice").Finished(false)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "boom", entries[0].Message)
	assert.Equal(t, zap.ErrorLevel, entries[0].Level)
	assert.Equal(t, "alice", entries[0].ContextMap()["profile"])
	assert.Equal(t, false, entries[1].ContextMap()["success"])
}

func TestEventWireFormat(t *testing.T) {
	ts := time.Date(2024, 5, 1, 14, 3, 9, 0, time.UTC)

	raw, err := json.Marshal(Event{Type: TypeLog, Profile: "alice", Message: "hi", Level: LevelWarning, Timestamp: ts})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"bot_log","data":{"message":"hi","level":"WARNING","timestamp":"14:03:09","profile":"alice"}}`, string(raw))

	raw, err = json.Marshal(Event{Type: TypeFinished, Profile: "alice", Success: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"bot_finished","data":{"success":true,"profile":"alice"}}`, string(raw))
}

func TestForNilSink(t *testing.T) {
	assert.NotPanics(t, func() {
		For(nil, "alice").Info("dropped")
	})
}
