package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/radieske/friendsbet/pkg/contracts/events"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubRoutesUpdatesBySubscription(t *testing.T) {
	hub := NewHub(nil, func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	eventClient := dial(t, srv)
	allClient := dial(t, srv)

	if err := eventClient.WriteJSON(ClientMsg{Type: "subscribe", EventID: "ev-1"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := allClient.WriteJSON(ClientMsg{Type: "subscribe", EventID: AllEvents}); err != nil {
		t.Fatalf("subscribe all: %v", err)
	}
	waitFor(t, func() bool { return hub.Subscribers("ev-1") == 2 })

	hub.Broadcast(events.ActivityUpdate{Kind: "wager_bet_placed", EventID: "ev-1", Message: "bet"})

	for name, conn := range map[string]*websocket.Conn{"event": eventClient, "all": allClient} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("%s client read: %v", name, err)
		}
		var got events.ActivityUpdate
		if err := json.Unmarshal(b, &got); err != nil {
			t.Fatalf("%s client decode: %v", name, err)
		}
		if got.EventID != "ev-1" || got.Message != "bet" {
			t.Fatalf("%s client got %+v", name, got)
		}
	}

	if n := hub.Subscribers("ev-2"); n != 1 {
		t.Fatalf("subscribers of ev-2 = %d, want 1 (the wildcard client)", n)
	}
}

func TestHubDropsClosedConnections(t *testing.T) {
	hub := NewHub(nil, func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv)
	if err := conn.WriteJSON(ClientMsg{Type: "subscribe", EventID: "ev-1"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	waitFor(t, func() bool { return hub.Subscribers("ev-1") == 1 })

	_ = conn.Close()
	waitFor(t, func() bool { return hub.Subscribers("ev-1") == 0 })
}

func TestHubAnswersPing(t *testing.T) {
	hub := NewHub(nil, func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv)
	if err := conn.WriteJSON(ClientMsg{Type: "ping"}); err != nil {
		t.Fatalf("ping: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]string
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got["type"] != "pong" {
		t.Fatalf("got %v, want pong", got)
	}
}
