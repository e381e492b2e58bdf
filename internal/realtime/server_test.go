package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/commentbot/internal/logbus"
)

type wireEvent struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

func dial(t *testing.T, bus *logbus.Bus) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(NewServer(bus, nil).HandleWebSocket))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frameType, profile string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(Frame{Type: frameType, Profile: profile}))
}

func read(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev wireEvent
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(msg, &ev))
	return ev
}

func TestJoinReceivesProfileEvents(t *testing.T) {
	bus := logbus.New(nil)
	conn := dial(t, bus)

	send(t, conn, "join", "alice")
	require.Eventually(t, func() bool { return bus.Subscribers("alice") == 1 }, 2*time.Second, 10*time.Millisecond)

	logbus.For(bus, "bob").Info("not for you")
	logbus.For(bus, "alice").Warn("careful")
	logbus.For(bus, "alice").Finished(true)

	ev := read(t, conn)
	assert.Equal(t, "bot_log", ev.Event)
	assert.Equal(t, "careful", ev.Data["message"])
	assert.Equal(t, "WARNING", ev.Data["level"])
	assert.Equal(t, "alice", ev.Data["profile"])

	ev = read(t, conn)
	assert.Equal(t, "bot_finished", ev.Event)
	assert.Equal(t, true, ev.Data["success"])
}

func TestLeaveAndDisconnectUnsubscribe(t *testing.T) {
	bus := logbus.New(nil)
	conn := dial(t, bus)

	send(t, conn, "join", "alice")
	send(t, conn, "join", "bob")
	require.Eventually(t, func() bool {
		return bus.Subscribers("alice") == 1 && bus.Subscribers("bob") == 1
	}, 2*time.Second, 10*time.Millisecond)

	send(t, conn, "leave", "alice")
	require.Eventually(t, func() bool { return bus.Subscribers("alice") == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, bus.Subscribers("bob"))

	conn.Close()
	require.Eventually(t, func() bool { return bus.Subscribers("bob") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestMalformedFramesAreIgnored(t *testing.T) {
	bus := logbus.New(nil)
	conn := dial(t, bus)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	send(t, conn, "join", "")
	send(t, conn, "dance", "alice")
	send(t, conn, "join", "alice")

	require.Eventually(t, func() bool { return bus.Subscribers("alice") == 1 }, 2*time.Second, 10*time.Millisecond)
}
