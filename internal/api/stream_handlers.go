package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/tmajkow/coursepulse/internal/middleware"
	"github.com/tmajkow/coursepulse/internal/stream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the dashboard origin once it is pinned in config
		return true
	},
}

// StreamHandlers holds dependencies for the dashboard refresh WebSocket.
type StreamHandlers struct {
	hub *stream.Hub
}

// NewStreamHandlers creates a new StreamHandlers instance.
func NewStreamHandlers(hub *stream.Hub) *StreamHandlers {
	return &StreamHandlers{hub: hub}
}

// SubscribeToDashboard handles WebSocket connections for report refresh
// notifications. GET /ws/dashboard
//
// The tenant comes from the authenticated context; each connection receives
// a refresh notice whenever that tenant's report is recomputed.
func (h *StreamHandlers) SubscribeToDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	companyID := middleware.GetCompanyID(ctx)
	if companyID == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.ErrorContext(ctx, "failed to upgrade websocket connection",
			"error", err,
			"company_id", companyID,
		)
		return
	}

	h.hub.Subscribe(companyID, conn)

	requestID := middleware.GetRequestID(ctx)
	slog.InfoContext(ctx, "websocket client subscribed to dashboard refreshes",
		"company_id", companyID,
		"request_id", requestID,
	)

	defer func() {
		h.hub.Unsubscribe(conn)
		conn.Close()
		slog.InfoContext(ctx, "websocket client unsubscribed",
			"company_id", companyID,
			"request_id", requestID,
		)
	}()

	// Clients never send messages; read to detect disconnection.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.WarnContext(ctx, "websocket connection closed unexpectedly",
					"error", err,
					"company_id", companyID,
				)
			}
			break
		}
	}
}
