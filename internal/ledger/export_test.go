package ledger

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"
)

func exportFixture() []DecisionEntry {
	score := 0.9
	return []DecisionEntry{
		{
			ID:        "b",
			Timestamp: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
			Actor:     "planner",
			Decision:  "schedule rollout",
			Rationale: "capacity confirmed",
			Outcome:   OutcomeSuccess,
			GateState: "execution",
		},
		{
			ID:             "a",
			Timestamp:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
			Actor:          "reviewer",
			Decision:       "approve design",
			Rationale:      "meets requirements",
			Outcome:        OutcomeSuccess,
			CoherenceScore: &score,
			Context:        map[string]string{"b": "2", "a": "1"},
		},
	}
}

func TestExportCSVShape(t *testing.T) {
	var buf bytes.Buffer
	if err := Export(&buf, exportFixture(), FormatCSV); err != nil {
		t.Fatalf("export csv: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d records", len(records))
	}
	if records[0][0] != "id" || records[0][6] != "coherence_score" {
		t.Errorf("unexpected header: %v", records[0])
	}
	// Context flattens to sorted k=v pairs.
	if got := records[2][7]; got != "a=1;b=2" {
		t.Errorf("context = %q, want a=1;b=2", got)
	}
}

func TestExportTimelineOrdersOldestFirst(t *testing.T) {
	var buf bytes.Buffer
	if err := Export(&buf, exportFixture(), FormatTimeline); err != nil {
		t.Fatalf("export timeline: %v", err)
	}

	out := buf.String()
	first := strings.Index(out, "reviewer: approve design")
	second := strings.Index(out, "planner: schedule rollout")
	if first < 0 || second < 0 {
		t.Fatalf("missing lines in timeline:\n%s", out)
	}
	if first > second {
		t.Error("timeline is not oldest-first")
	}
	if !strings.Contains(out, "(coherence: 0.90)") {
		t.Errorf("missing coherence annotation:\n%s", out)
	}
	if !strings.Contains(out, "(phase: execution)") {
		t.Errorf("missing phase annotation:\n%s", out)
	}
}

func TestExportUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := Export(&buf, exportFixture(), ExportFormat("xml")); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
