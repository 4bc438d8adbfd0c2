// Package dashboard pushes already-decided alerts to connected operator
// dashboards over an outbound websocket; it never ingests market data.
package dashboard

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vvriasc-boop/MarketDataCollector/internal/logging"
	"github.com/vvriasc-boop/MarketDataCollector/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type alertMessage struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Kind        string    `json:"kind"`
	Severity    string    `json:"severity"`
	Value       float64   `json:"value"`
	Description string    `json:"description"`
	DetectedAt  time.Time `json:"detected_at"`
}

// Hub fans out alert broadcasts to every connected websocket client.
type Hub struct {
	log *logging.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]chan alertMessage
}

// NewHub builds an empty hub.
func NewHub() *Hub {
	return &Hub{
		log:     logging.Global(),
		clients: make(map[*websocket.Conn]chan alertMessage),
	}
}

// ServeHTTP upgrades the connection and registers it as a broadcast target
// until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("dashboard websocket upgrade failed", logging.Fields{"error": err.Error()})
		return
	}

	out := make(chan alertMessage, 32)
	h.mu.Lock()
	h.clients[conn] = out
	h.mu.Unlock()

	go h.writePump(conn, out)
	h.readPump(conn, out)
}

func (h *Hub) readPump(conn *websocket.Conn, out chan alertMessage) {
	defer h.unregister(conn, out)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, out chan alertMessage) {
	for msg := range out {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func (h *Hub) unregister(conn *websocket.Conn, out chan alertMessage) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	close(out)
	conn.Close()
}

// BroadcastAlert pushes one alert to every connected client, best-effort: a
// slow or full client is skipped rather than blocking the notifier.
func (h *Hub) BroadcastAlert(a model.Anomaly, id string) {
	msg := alertMessage{
		ID:          id,
		Symbol:      a.Symbol,
		Kind:        string(a.Kind),
		Severity:    string(a.Severity),
		Value:       a.Value,
		Description: a.Description,
		DetectedAt:  a.DetectedAt,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

// MarshalForTest renders msg as JSON, used only to keep the unexported type
// reachable from package tests without exporting it.
func MarshalForTest(a model.Anomaly, id string) ([]byte, error) {
	return json.Marshal(alertMessage{
		ID:          id,
		Symbol:      a.Symbol,
		Kind:        string(a.Kind),
		Severity:    string(a.Severity),
		Value:       a.Value,
		Description: a.Description,
		DetectedAt:  a.DetectedAt,
	})
}
