package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/drishti/internal/app"
	"github.com/ayusman/drishti/internal/log"
)

const writeWait = 2 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// estimateSource is the part of the app the stream needs.
type estimateSource interface {
	Subscribe() (<-chan app.Estimate, func())
}

// EstimateStream pushes every pipeline estimate to WebSocket clients as JSON.
type EstimateStream struct {
	source estimateSource
}

// NewEstimateStream creates an EstimateStream reading from source.
func NewEstimateStream(source estimateSource) *EstimateStream {
	return &EstimateStream{source: source}
}

// ServeHTTP upgrades the request and streams until the client goes away.
func (h *EstimateStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	estimates, cancel := h.source.Subscribe()
	defer cancel()

	// Reads only detect the close; client messages are ignored.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Debug("stream client connected", "remote", r.RemoteAddr)
	for {
		select {
		case <-closed:
			log.Debug("stream client disconnected", "remote", r.RemoteAddr)
			return
		case est, ok := <-estimates:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(est); err != nil {
				return
			}
		}
	}
}
