package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Deathbringer98/Firemap-WebApp/internal/notify"
)

const (
	pingEvery    = 20 * time.Second
	readDeadline = 60 * time.Second
	writeWait    = 10 * time.Second
)

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Hub tracks live map pages and pushes newly stored reports to them.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *log.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		logger:   logger,
		clients:  make(map[*websocket.Conn]bool),
	}
}

// Broadcast sends m to every client and returns how many received it.
// Clients that fail a write are dropped.
func (h *Hub) Broadcast(m Message) int {
	b, err := json.Marshal(m)
	if err != nil {
		h.logger.Printf("ws marshal %q: %v", m.Type, err)
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for c := range h.clients {
		_ = c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			h.logger.Println("ws write error:", err)
			_ = c.Close()
			delete(h.clients, c)
			continue
		}
		n++
	}
	h.logger.Printf("broadcast %q to %d client(s)", m.Type, n)
	return n
}

// Publish makes the hub a notification sink.
func (h *Hub) Publish(_ context.Context, ev notify.Event) error {
	h.Broadcast(Message{Type: ev.Type, Data: ev})
	return nil
}

func (h *Hub) ClientsCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = c.Close()
		delete(h.clients, c)
	}
	return nil
}

func (h *Hub) Handler(w http.ResponseWriter, r *http.Request) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Println("ws upgrade:", err)
		return
	}
	h.mu.Lock()
	h.clients[c] = true
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Printf("ws connected (%d total)", total)

	// keepalive pings
	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(pingEvery)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if err := c.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	// the map page never sends; reads only service pongs and closes
	c.SetReadLimit(1024)
	_ = c.SetReadDeadline(time.Now().Add(readDeadline))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(readDeadline))
	})
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, c)
	total = len(h.clients)
	h.mu.Unlock()
	_ = c.Close()
	h.logger.Printf("ws disconnected (%d total)", total)
}

var _ notify.Publisher = (*Hub)(nil)
