package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
)

// Serve upgrades the request to a WebSocket and runs it as a client of the
// given list's room. Membership must be checked by the caller before upgrading.
func Serve(hub *Hub, listID int64, w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{
		InsecureSkipVerify: true, // SPA origin differs from the API origin
	})
	if err != nil {
		slog.Warn("websocket accept", "error", err)
		return
	}

	client := NewClient(hub, conn, listID)
	client.Run(r.Context())
}
