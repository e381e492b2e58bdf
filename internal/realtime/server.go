// Package realtime streams bot events to dashboard clients over WebSocket.
package realtime

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/commentbot/internal/logbus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server upgrades dashboard connections and attaches them to the bus
type Server struct {
	bus    *logbus.Bus
	logger *zap.Logger
}

func NewServer(bus *logbus.Bus, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{bus: bus, logger: logger}
}

// HandleWebSocket serves one client until it disconnects
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}

	c := newClient(conn, s.bus, uuid.New().String(), s.logger)
	s.logger.Info("✅ Dashboard client connected", zap.String("client", c.id))

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()

	c.readPump()
	<-done

	s.logger.Info("Dashboard client disconnected", zap.String("client", c.id))
}
