package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestNewRealtimeClient_URL(t *testing.T) {
	rc, err := NewRealtimeClient("https://abc.supabase.co/", "anon")
	if err != nil {
		t.Fatalf("NewRealtimeClient() error = %v", err)
	}
	want := "wss://abc.supabase.co/realtime/v1/websocket?apikey=anon&vsn=1.0.0"
	if rc.URL() != want {
		t.Errorf("URL() = %q, want %q", rc.URL(), want)
	}

	if _, err := NewRealtimeClient("ftp://abc", "anon"); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}

func TestWatchTable_DeliversChanges(t *testing.T) {
	joined := make(chan realtimeMessage, 1)
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var join realtimeMessage
		if err := conn.ReadJSON(&join); err != nil {
			return
		}
		joined <- join

		payload, _ := json.Marshal(map[string]any{
			"data": map[string]any{
				"schema": "public",
				"table":  "products",
				"type":   "UPDATE",
				"record": map[string]any{"id": "p1"},
			},
		})
		conn.WriteJSON(realtimeMessage{Topic: join.Topic, Event: "postgres_changes", Payload: payload})

		// Drain until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	rc, err := NewRealtimeClient(server.URL, "anon")
	if err != nil {
		t.Fatalf("NewRealtimeClient() error = %v", err)
	}
	ctx := context.Background()
	if err := rc.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer rc.Close()

	events := make(chan ChangeEvent, 1)
	if err := rc.WatchTable(ctx, "", "products", func(e ChangeEvent) { events <- e }); err != nil {
		t.Fatalf("WatchTable() error = %v", err)
	}

	select {
	case join := <-joined:
		if join.Topic != "realtime:public:products" || join.Event != "phx_join" {
			t.Errorf("join = %+v", join)
		}
		if !strings.Contains(string(join.Payload), "postgres_changes") {
			t.Errorf("join payload = %s", join.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received join")
	}

	select {
	case e := <-events:
		if e.Table != "products" || e.Type != "UPDATE" {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler never called")
	}
}

func TestWatchTable_NotConnected(t *testing.T) {
	rc, _ := NewRealtimeClient("http://localhost", "anon")
	if err := rc.WatchTable(context.Background(), "public", "tribes", func(ChangeEvent) {}); err == nil {
		t.Error("WatchTable() without Connect should fail")
	}
}
