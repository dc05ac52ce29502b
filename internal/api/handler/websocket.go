package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/idan5353/video-threat-detection/internal/realtime"
)

// SocketHub takes ownership of upgraded websocket connections.
type SocketHub interface {
	Attach(ctx context.Context, conn *websocket.Conn) (string, error)
}

var _ SocketHub = (*realtime.Hub)(nil)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards are served from another origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewWebsocketHandler returns an http.HandlerFunc for GET /ws.
func NewWebsocketHandler(hub SocketHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the HTTP error.
			slog.Debug("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
			return
		}

		if _, err := hub.Attach(r.Context(), conn); err != nil {
			slog.Error("attach websocket", "remote_addr", r.RemoteAddr, "error", err)
		}
	}
}
