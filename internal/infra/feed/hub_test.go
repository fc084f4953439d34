package feed

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"custody_go/internal/domain"
	"custody_go/internal/event"
	"custody_go/internal/infra"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_Broadcast(t *testing.T) {
	m := &infra.Metrics{}
	hub := NewHub(m)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	waitFor(t, func() bool { return hub.Len() == 2 })
	if got := m.Snapshot().Subscribers; got != 2 {
		t.Errorf("subscribers gauge = %d, want 2", got)
	}

	hub.Publish(&event.SaleEvent{
		BaseEvent: event.BaseEvent{Seq: 7},
		Sale:      domain.Sale{AssetID: 1, Seller: "A", Buyer: "B", Price: 100},
	})

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		var env event.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			t.Fatalf("bad envelope: %v", err)
		}
		if env.Type != event.TypeSale || env.Seq != 7 {
			t.Errorf("envelope = %s/%d, want sale/7", env.Type, env.Seq)
		}
	}
}

func TestHub_Disconnect(t *testing.T) {
	m := &infra.Metrics{}
	hub := NewHub(m)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	waitFor(t, func() bool { return hub.Len() == 1 })

	conn.Close()
	waitFor(t, func() bool { return hub.Len() == 0 })
	if got := m.Snapshot().Subscribers; got != 0 {
		t.Errorf("subscribers gauge = %d, want 0", got)
	}

	// publishing with nobody listening is a no-op
	hub.Publish(&event.ListingEvent{Listing: domain.Listing{AssetID: 1}})
}
