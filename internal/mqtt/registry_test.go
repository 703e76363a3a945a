package mqtt

import (
	"testing"
	"time"
)

// fixedClock pins the registry clock to a time the test moves by hand.
func fixedClock(r *ClientRegistry, start time.Time) *time.Time {
	now := start
	r.now = func() time.Time { return now }
	return &now
}

func TestClientRegistry_RegisterAndGet(t *testing.T) {
	r := NewClientRegistry()

	if existed := r.Register(&GameClient{ID: "a", CommandTopic: "a/cmd"}); existed {
		t.Error("first registration must not report an existing client")
	}
	if existed := r.Register(&GameClient{ID: "a", CommandTopic: "a/cmd2"}); !existed {
		t.Error("second registration must report an existing client")
	}

	c := r.Get("a")
	if c == nil || c.CommandTopic != "a/cmd2" {
		t.Fatalf("unexpected client: %+v", c)
	}
	if c.RegisteredAt.IsZero() || c.LastSeen.IsZero() {
		t.Error("expected timestamps to be set")
	}
	if r.Get("missing") != nil {
		t.Error("expected nil for unknown client")
	}
}

func TestClientRegistry_GetReturnsCopy(t *testing.T) {
	r := NewClientRegistry()
	r.Register(&GameClient{ID: "a", CommandTopic: "a/cmd"})

	c := r.Get("a")
	c.CommandTopic = "mutated"

	if r.Get("a").CommandTopic != "a/cmd" {
		t.Error("mutating a returned client changed the registry")
	}
}

func TestClientRegistry_Active(t *testing.T) {
	r := NewClientRegistry()
	now := fixedClock(r, time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))

	if r.Active() != nil {
		t.Error("expected no active client in empty registry")
	}

	r.Register(&GameClient{ID: "old", CommandTopic: "old/cmd"})
	*now = now.Add(time.Minute)
	r.Register(&GameClient{ID: "new", CommandTopic: "new/cmd"})

	if a := r.Active(); a == nil || a.ID != "new" {
		t.Errorf("expected newest client, got %+v", a)
	}

	r.Unregister("new")
	if a := r.Active(); a == nil || a.ID != "old" {
		t.Errorf("expected old client after unregister, got %+v", a)
	}
}

func TestClientRegistry_TouchAndUnregister(t *testing.T) {
	r := NewClientRegistry()
	now := fixedClock(r, time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	r.Register(&GameClient{ID: "a"})

	*now = now.Add(10 * time.Second)
	if !r.Touch("a") {
		t.Error("expected touch to find client")
	}
	if got := r.Get("a").LastSeen; !got.Equal(*now) {
		t.Errorf("expected LastSeen %v, got %v", *now, got)
	}
	if r.Touch("missing") {
		t.Error("touching unknown client must report false")
	}

	if c := r.Unregister("a"); c == nil || c.ID != "a" {
		t.Errorf("expected removed client, got %+v", c)
	}
	if r.Unregister("a") != nil {
		t.Error("second unregister must return nil")
	}
}

func TestClientRegistry_RegisterFromPayload(t *testing.T) {
	payload, err := ParseRegistration([]byte(registerJSON))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	r := NewClientRegistry()
	r.RegisterFromPayload(payload)

	c := r.Get("page-1")
	if c == nil {
		t.Fatal("expected client")
	}
	if c.EventTopic != "mazephases/clients/page-1/events" || c.HeartbeatSec != 5 {
		t.Errorf("unexpected client: %+v", c)
	}
}

func TestClientRegistry_AllAndClear(t *testing.T) {
	r := NewClientRegistry()
	r.Register(&GameClient{ID: "a"})
	r.Register(&GameClient{ID: "b"})

	if got := len(r.All()); got != 2 {
		t.Errorf("expected 2 clients, got %d", got)
	}

	r.Clear()
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}
}
