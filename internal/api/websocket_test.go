package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/paulaanasilva/mazephases/internal/events"
)

// waitFor polls a condition until it returns true or timeout expires.
func waitFor(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("timeout waiting for: %s", msg)
}

func dialEvents(t *testing.T) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(newTestServer(t, &fakeLoader{}).Handler())

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("failed to connect: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var e events.Event
	if err := json.Unmarshal(msg, &e); err != nil {
		t.Fatalf("failed to unmarshal event: %v", err)
	}
	return e
}

func TestWebSocketReceivesRecentEvents(t *testing.T) {
	events.Clear()
	for i := 0; i < 3; i++ {
		events.Emit("info", "phase.served", "", map[string]interface{}{"index": i})
	}

	conn, done := dialEvents(t)
	defer done()

	for i := 0; i < 3; i++ {
		e := readEvent(t, conn)
		if e.Name != "phase.served" {
			t.Errorf("expected phase.served, got %q", e.Name)
		}
		// JSON numbers decode as float64.
		if e.Fields["index"] != float64(i) {
			t.Errorf("event %d out of order: %v", i, e.Fields["index"])
		}
	}
}

func TestWebSocketReceivesNewEvents(t *testing.T) {
	events.Clear()

	conn, done := dialEvents(t)
	defer done()

	go func() {
		time.Sleep(50 * time.Millisecond)
		events.Emit("warn", "phases.fallback", "", map[string]interface{}{"strategy": "playground"})
	}()

	e := readEvent(t, conn)
	if e.Name != "phases.fallback" {
		t.Errorf("expected phases.fallback, got %q", e.Name)
	}
	if e.Fields["strategy"] != "playground" {
		t.Errorf("unexpected fields: %v", e.Fields)
	}
}

func TestWebSocketDisconnectCleansUp(t *testing.T) {
	events.Clear()
	events.CloseAllSubscribers()

	conn, done := dialEvents(t)

	go func() {
		time.Sleep(20 * time.Millisecond)
		events.Emit("info", "client.registered", "", nil)
	}()
	if e := readEvent(t, conn); e.Name != "client.registered" {
		t.Errorf("expected client.registered, got %q", e.Name)
	}

	done()

	for i := 0; i < 5; i++ {
		events.Emit("info", "phase.served", "", nil)
		time.Sleep(50 * time.Millisecond)
	}

	waitFor(t, 5*time.Second, func() bool {
		return events.SubscriberCount() == 0
	}, "subscriber count to return to 0 after close")
}

func TestWebSocketRequiresCredentials(t *testing.T) {
	s := newTestServer(t, &fakeLoader{})
	enableTestAuth()
	defer resetAuth()

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected the handshake to fail")
	}
	if resp == nil || resp.StatusCode != 401 {
		t.Errorf("expected 401, got %+v", resp)
	}
}
