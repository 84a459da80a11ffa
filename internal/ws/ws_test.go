package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Deathbringer98/Firemap-WebApp/internal/notify"
	"github.com/Deathbringer98/Firemap-WebApp/internal/reports"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return c
}

func TestHubPublishReachesClients(t *testing.T) {
	t.Parallel()

	hub := NewHub(log.New(io.Discard, "", 0))
	srv := httptest.NewServer(http.HandlerFunc(hub.Handler))
	defer srv.Close()

	c := dial(t, srv)
	defer c.Close()
	waitFor(t, func() bool { return hub.ClientsCount() == 1 })

	var r reports.Report
	r.Set("type", json.RawMessage(`"smoke"`))
	ev := notify.NewReportAdded(r, time.Now())
	if err := hub.Publish(context.Background(), ev); err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got struct {
		Type string       `json:"type"`
		Data notify.Event `json:"data"`
	}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if got.Type != notify.TypeReportAdded || got.Data.ID != ev.ID {
		t.Fatalf("unexpected message %s", b)
	}
	if typ, _ := got.Data.Report.Get("type"); string(typ) != `"smoke"` {
		t.Fatalf("report not carried in message: %s", b)
	}
}

func TestHubDropsDisconnectedClients(t *testing.T) {
	t.Parallel()

	hub := NewHub(log.New(io.Discard, "", 0))
	srv := httptest.NewServer(http.HandlerFunc(hub.Handler))
	defer srv.Close()

	c := dial(t, srv)
	waitFor(t, func() bool { return hub.ClientsCount() == 1 })
	c.Close()
	waitFor(t, func() bool { return hub.ClientsCount() == 0 })

	if n := hub.Broadcast(Message{Type: "PING"}); n != 0 {
		t.Fatalf("expected no recipients, got %d", n)
	}
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	t.Parallel()

	hub := NewHub(log.New(io.Discard, "", 0))
	srv := httptest.NewServer(http.HandlerFunc(hub.Handler))
	defer srv.Close()

	c := dial(t, srv)
	defer c.Close()
	waitFor(t, func() bool { return hub.ClientsCount() == 1 })

	if err := hub.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if hub.ClientsCount() != 0 {
		t.Fatalf("expected no clients after Close")
	}
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := c.ReadMessage(); err == nil {
		t.Fatalf("expected client read to fail after server close")
	}
}
