package driver

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/regenloop/coherence-engine/internal/ledger"
)

func tempTrail(t *testing.T) *ledger.Ledger {
	t.Helper()
	backend, err := ledger.NewSQLiteBackend(filepath.Join(t.TempDir(), "trail.db"))
	if err != nil {
		t.Fatalf("NewSQLiteBackend: %v", err)
	}
	l, err := ledger.New(context.Background(), backend)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func appendTransition(t *testing.T, trail *ledger.Ledger, gate, phase, outcome string) {
	t.Helper()
	_, err := trail.Append(context.Background(), ledger.DecisionEntry{
		Actor:     "gate-machine",
		Decision:  "gate " + gate,
		Rationale: "test transition",
		Outcome:   outcome,
		GateState: phase,
		Context:   map[string]string{"gate": gate},
	})
	if err != nil {
		t.Fatalf("append transition: %v", err)
	}
}

func TestRunReportsShortfallAtBudget(t *testing.T) {
	trail := tempTrail(t)
	ctx := context.Background()

	// Half the transitions fail: rolling coherence 0.50, with both the
	// repeated-gate and failure-rate patterns present.
	for i := 0; i < 3; i++ {
		appendTransition(t, trail, "understanding->knowledge", "knowledge", ledger.OutcomeSuccess)
		appendTransition(t, trail, "knowledge->intention", "intention", ledger.OutcomeFailure)
	}

	d := New(trail, Config{Target: 0.85, MaxIterations: 1, Window: 50}, nil)
	report, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Achieved {
		t.Fatal("expected shortfall")
	}
	if report.Iterations != 1 {
		t.Fatalf("expected 1 iteration, got %d", report.Iterations)
	}
	if report.FinalCoherence != 0.5 {
		t.Fatalf("expected coherence 0.5, got %f", report.FinalCoherence)
	}
	if len(report.Recommendations) == 0 {
		t.Fatal("expected recommendations for matched blockers")
	}

	var sawRepeated, sawRate bool
	for _, r := range report.Recommendations {
		switch r.Blocker {
		case BlockerRepeatedGateFailure:
			sawRepeated = true
			if r.Gate != "knowledge->intention" {
				t.Fatalf("expected the repeatedly failing gate, got %q", r.Gate)
			}
		case BlockerHighFailureRate:
			sawRate = true
		}
		if r.Action == "" {
			t.Fatalf("missing action for %s", r.Blocker)
		}
	}
	if !sawRepeated || !sawRate {
		t.Fatalf("expected repeated-gate and failure-rate blockers, got %+v", report.Recommendations)
	}
}

func TestRunAchievedStopsImmediately(t *testing.T) {
	trail := tempTrail(t)

	for i := 0; i < 5; i++ {
		appendTransition(t, trail, "understanding->knowledge", "knowledge", ledger.OutcomeSuccess)
	}

	d := New(trail, Config{Target: 0.85, MaxIterations: 10, Window: 50}, nil)
	report, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Achieved {
		t.Fatal("expected target achieved")
	}
	if report.Iterations != 0 {
		t.Fatalf("expected 0 remediation iterations, got %d", report.Iterations)
	}
	if report.FinalCoherence != 1.0 {
		t.Fatalf("expected coherence 1.0, got %f", report.FinalCoherence)
	}
}

func TestRunIsIdempotentOverUnchangedTrail(t *testing.T) {
	trail := tempTrail(t)

	appendTransition(t, trail, "understanding->knowledge", "knowledge", ledger.OutcomeFailure)
	appendTransition(t, trail, "understanding->knowledge", "knowledge", ledger.OutcomeFailure)
	appendTransition(t, trail, "knowledge->intention", "intention", ledger.OutcomeSuccess)

	cfg := Config{Target: 0.85, MaxIterations: 3, Window: 50}
	d := New(trail, cfg, nil)

	first, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if len(first.Recommendations) != len(second.Recommendations) {
		t.Fatalf("recommendation count changed: %d vs %d",
			len(first.Recommendations), len(second.Recommendations))
	}
	for i := range first.Recommendations {
		if first.Recommendations[i] != second.Recommendations[i] {
			t.Fatalf("recommendation %d changed: %+v vs %+v",
				i, first.Recommendations[i], second.Recommendations[i])
		}
	}
	if first.FinalCoherence != second.FinalCoherence {
		t.Fatalf("coherence changed: %f vs %f", first.FinalCoherence, second.FinalCoherence)
	}
}

func TestRunRecordsSummaryEntry(t *testing.T) {
	trail := tempTrail(t)
	ctx := context.Background()

	appendTransition(t, trail, "understanding->knowledge", "knowledge", ledger.OutcomeFailure)

	cfg := DefaultConfig()
	cfg.MaxIterations = 1
	d := New(trail, cfg, nil)
	if _, err := d.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	entries, err := trail.Query(ctx, ledger.Filter{Actor: "coherence-driver"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 summary entry, got %d", len(entries))
	}
	if entries[0].Outcome != ledger.OutcomePending {
		t.Fatalf("shortfall should record pending, got %s", entries[0].Outcome)
	}
	if entries[0].Context["iterations"] != "1" {
		t.Fatalf("expected iterations=1 in context, got %v", entries[0].Context)
	}
}

func TestRunHonorsCancellationBetweenIterations(t *testing.T) {
	trail := tempTrail(t)
	appendTransition(t, trail, "understanding->knowledge", "knowledge", ledger.OutcomeFailure)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := New(trail, Config{Target: 0.85, MaxIterations: 10, Window: 50}, nil)
	report, err := d.Run(ctx)
	if err == nil {
		t.Fatal("expected context error")
	}
	if report.Iterations != 0 {
		t.Fatalf("cancelled before first iteration, got %d", report.Iterations)
	}
}

func TestSynthesizedExamplesComeFromPassingEntries(t *testing.T) {
	trail := tempTrail(t)

	appendTransition(t, trail, "understanding->knowledge", "knowledge", ledger.OutcomeSuccess)
	appendTransition(t, trail, "knowledge->intention", "intention", ledger.OutcomeFailure)
	appendTransition(t, trail, "knowledge->intention", "intention", ledger.OutcomeFailure)

	cfg := Config{Target: 0.85, MaxIterations: 1, Window: 50}
	d := New(trail, cfg, nil)
	report, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(report.Examples) != 1 {
		t.Fatalf("expected 1 example, got %d", len(report.Examples))
	}
	if report.Examples[0].Gate != "understanding->knowledge" {
		t.Fatalf("example should come from the passing gate, got %q", report.Examples[0].Gate)
	}
}
