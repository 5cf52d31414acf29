package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ChangeEvent is one row change delivered by Supabase Realtime.
type ChangeEvent struct {
	Schema    string         `json:"schema"`
	Table     string         `json:"table"`
	Type      string         `json:"type"`
	Record    map[string]any `json:"record,omitempty"`
	OldRecord map[string]any `json:"old_record,omitempty"`
}

// ChangeHandler receives row changes for a watched table.
type ChangeHandler func(ChangeEvent)

type realtimeMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
	JoinRef string          `json:"join_ref,omitempty"`
}

// RealtimeClient subscribes to postgres changes over the Realtime websocket.
type RealtimeClient struct {
	mu       sync.Mutex
	url      string
	conn     *websocket.Conn
	handlers map[string][]ChangeHandler
	done     chan struct{}
	ref      int

	// HeartbeatInterval defaults to 30s.
	HeartbeatInterval time.Duration
}

// NewRealtimeClient builds the websocket URL from the project URL.
func NewRealtimeClient(supabaseURL, apiKey string) (*RealtimeClient, error) {
	u, err := url.Parse(strings.TrimSuffix(supabaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse supabase url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/realtime/v1/websocket"
	u.RawQuery = url.Values{"apikey": {apiKey}, "vsn": {"1.0.0"}}.Encode()

	return &RealtimeClient{
		url:               u.String(),
		handlers:          make(map[string][]ChangeHandler),
		HeartbeatInterval: 30 * time.Second,
	}, nil
}

// NewRealtimeClientFor reuses a REST client's URL and key.
func NewRealtimeClientFor(c *Client) (*RealtimeClient, error) {
	return NewRealtimeClient(c.BaseURL(), c.APIKey())
}

// URL returns the websocket endpoint.
func (r *RealtimeClient) URL() string {
	return r.url
}

// Connect dials the websocket and starts the read and heartbeat loops.
func (r *RealtimeClient) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	r.conn = conn
	r.done = make(chan struct{})

	go r.readLoop(conn, r.done)
	go r.heartbeat(r.done)
	return nil
}

// Close sends a close frame and tears the connection down.
func (r *RealtimeClient) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return nil
	}
	close(r.done)

	err := r.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	r.conn.Close()
	r.conn = nil
	if err != nil {
		return fmt.Errorf("close message: %w", err)
	}
	return nil
}

// WatchTable joins the postgres_changes channel of schema.table and calls
// handler for every INSERT, UPDATE and DELETE.
func (r *RealtimeClient) WatchTable(ctx context.Context, schema, table string, handler ChangeHandler) error {
	if schema == "" {
		schema = "public"
	}
	topic := fmt.Sprintf("realtime:%s:%s", schema, table)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return fmt.Errorf("realtime: not connected")
	}

	r.handlers[topic] = append(r.handlers[topic], handler)
	if len(r.handlers[topic]) > 1 {
		return nil
	}

	payload, _ := json.Marshal(map[string]any{
		"config": map[string]any{
			"postgres_changes": []map[string]string{
				{"event": "*", "schema": schema, "table": table},
			},
		},
	})
	ref := r.nextRef()
	msg := realtimeMessage{Topic: topic, Event: "phx_join", Payload: payload, Ref: ref, JoinRef: ref}
	if err := r.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send join %s: %w", topic, err)
	}
	return nil
}

func (r *RealtimeClient) nextRef() string {
	r.ref++
	return strconv.Itoa(r.ref)
}

func (r *RealtimeClient) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg realtimeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Event != "postgres_changes" && msg.Event != "INSERT" && msg.Event != "UPDATE" && msg.Event != "DELETE" {
			continue
		}

		event, ok := decodeChange(msg)
		if !ok {
			continue
		}
		r.dispatch(msg.Topic, event)
	}
}

// decodeChange accepts both the nested {"data": {...}} payload and the flat
// legacy payload.
func decodeChange(msg realtimeMessage) (ChangeEvent, bool) {
	var nested struct {
		Data *ChangeEvent `json:"data"`
	}
	if err := json.Unmarshal(msg.Payload, &nested); err == nil && nested.Data != nil && nested.Data.Type != "" {
		return *nested.Data, true
	}

	var flat ChangeEvent
	if err := json.Unmarshal(msg.Payload, &flat); err != nil {
		return ChangeEvent{}, false
	}
	if flat.Type == "" {
		flat.Type = msg.Event
	}
	return flat, flat.Type != ""
}

func (r *RealtimeClient) dispatch(topic string, event ChangeEvent) {
	r.mu.Lock()
	handlers := append([]ChangeHandler(nil), r.handlers[topic]...)
	r.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

func (r *RealtimeClient) heartbeat(done chan struct{}) {
	interval := r.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.conn != nil {
				_ = r.conn.WriteJSON(realtimeMessage{
					Topic:   "phoenix",
					Event:   "heartbeat",
					Payload: json.RawMessage(`{}`),
					Ref:     r.nextRef(),
				})
			}
			r.mu.Unlock()
		}
	}
}
