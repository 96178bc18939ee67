package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grovetools/devdash/internal/dashboard/project"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API is served to a local UI on another port, same as the CORS policy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamUpdate is one message of /api/stream.
type StreamUpdate struct {
	Type      string              `json:"type"`
	Projects  []*project.Metadata `json:"projects"`
	Timestamp time.Time           `json:"timestamp"`
}

// handleStream pushes a metadata snapshot of every project over a websocket
// right after connecting and then once per stream interval.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	s.logger.Debug("Stream client connected")
	defer s.logger.Debug("Stream client disconnected")

	// The read loop only consumes control frames and notices the close.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	send := func(kind string) bool {
		projects, err := s.opts.Projects.Snapshot(r.Context())
		if err != nil {
			s.logger.WithError(err).Warn("Snapshot failed")
			return true
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		update := StreamUpdate{Type: kind, Projects: projects, Timestamp: time.Now().UTC()}
		if err := conn.WriteJSON(update); err != nil {
			s.logger.WithError(err).Debug("Stream write failed")
			return false
		}
		return true
	}

	if !send("initial") {
		return
	}

	ticker := time.NewTicker(s.opts.StreamInterval)
	defer ticker.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case <-ticker.C:
			if !send("snapshot") {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
