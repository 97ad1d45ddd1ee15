package escalate

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogNotifierWarnsWithFields(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	n := NewLogNotifier(zap.New(core))

	ev := Event{
		Gate:                "understanding->knowledge",
		Details:             "preconditions failed",
		FailedPreconditions: []string{"coherent_entry"},
		Timestamp:           time.Now().UTC(),
	}
	if err := n.Notify(context.Background(), ev); err != nil {
		t.Fatalf("notify: %v", err)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["gate"] != "understanding->knowledge" {
		t.Errorf("gate field = %v", fields["gate"])
	}
}

func TestLogNotifierNilLogger(t *testing.T) {
	n := NewLogNotifier(nil)
	if err := n.Notify(context.Background(), Event{Gate: "x->y"}); err != nil {
		t.Fatalf("notify with nil logger: %v", err)
	}
}

func TestEventWireShape(t *testing.T) {
	raw, err := json.Marshal(Event{
		Gate:      "intention->execution",
		Details:   "2 preconditions failed",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["gate"] != "intention->execution" {
		t.Errorf("gate = %v", decoded["gate"])
	}
	if _, ok := decoded["failed_preconditions"]; ok {
		t.Error("empty failed_preconditions should be omitted")
	}
}
