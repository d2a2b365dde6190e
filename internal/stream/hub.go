// Package stream provides WebSocket broadcasting of dashboard refresh
// notices so connected dashboards can re-fetch without polling.
package stream

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// RefreshEvent tells a connected dashboard that its company's reports
// were recomputed and the cache holds fresh data.
type RefreshEvent struct {
	Type         string    `json:"type"` // always "reports_refreshed"
	CompanyID    string    `json:"company_id"`
	GeneratedAt  time.Time `json:"generated_at"`
	StudentCount int       `json:"student_count"`
	EventCount   int       `json:"event_count"`
}

// NewRefreshEvent builds a RefreshEvent for a company.
func NewRefreshEvent(companyID string, generatedAt time.Time, studentCount, eventCount int) *RefreshEvent {
	return &RefreshEvent{
		Type:         "reports_refreshed",
		CompanyID:    companyID,
		GeneratedAt:  generatedAt,
		StudentCount: studentCount,
		EventCount:   eventCount,
	}
}

// Hub manages WebSocket connections grouped by company and broadcasts
// refresh notices to them.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]map[*websocket.Conn]bool // companyID -> connections
	metrics     *Metrics
}

// NewHub creates a new refresh hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]map[*websocket.Conn]bool),
	}
}

// NewHubWithMetrics creates a refresh hub that reports connection and
// delivery counts to the given metrics.
func NewHubWithMetrics(metrics *Metrics) *Hub {
	h := NewHub()
	h.metrics = metrics
	return h
}

// Subscribe registers a WebSocket connection for a company's notices.
func (h *Hub) Subscribe(companyID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connections[companyID] == nil {
		h.connections[companyID] = make(map[*websocket.Conn]bool)
	}
	h.connections[companyID][conn] = true
	if h.metrics != nil {
		h.metrics.IncSubscribe()
	}
}

// Unsubscribe removes a WebSocket connection from all companies.
func (h *Hub) Unsubscribe(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for companyID, conns := range h.connections {
		if _, ok := conns[conn]; !ok {
			continue
		}
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.connections, companyID)
		}
		if h.metrics != nil {
			h.metrics.IncUnsubscribe()
		}
	}
}

// NotifyRefresh sends a refresh notice to every connection watching a
// company. Write failures are logged and left for the read loop to
// clean up on disconnect.
func (h *Hub) NotifyRefresh(event *RefreshEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns, exists := h.connections[event.CompanyID]
	if !exists || len(conns) == 0 {
		return
	}

	// Serialize once for all subscribers
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal refresh event", "error", err)
		return
	}

	delivered := 0
	for conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			slog.Warn("failed to send refresh notice to websocket client",
				"error", err,
				"company_id", event.CompanyID,
			)
			continue
		}
		delivered++
	}
	if h.metrics != nil && delivered > 0 {
		h.metrics.IncRefreshNotices(delivered)
	}
}

// ConnectionCount returns the number of active connections for a company.
func (h *Hub) ConnectionCount(companyID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if conns, exists := h.connections[companyID]; exists {
		return len(conns)
	}
	return 0
}
