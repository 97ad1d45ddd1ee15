package driver

import "github.com/regenloop/coherence-engine/internal/ledger"

// #region config

// Config bounds the recursion and sets its goal.
type Config struct {
	// Target is the rolling coherence score the loop works toward.
	Target float64
	// MaxIterations caps the loop; hitting the cap is a reportable outcome,
	// not an error.
	MaxIterations int
	// Window is how many scored entries feed the rolling score and the
	// blocker scan.
	Window int
	// RecordRuns appends a summary entry for each completed run.
	RecordRuns bool
}

// DefaultConfig targets 85% self-reinforcement over the last 50 scored
// entries, capped at 10 iterations.
func DefaultConfig() Config {
	return Config{
		Target:        0.85,
		MaxIterations: 10,
		Window:        50,
		RecordRuns:    true,
	}
}

// #endregion config

// #region blockers

// BlockerType enumerates the failure patterns the scan recognizes.
type BlockerType string

const (
	BlockerRepeatedGateFailure BlockerType = "repeated_gate_failure"
	BlockerHighFailureRate     BlockerType = "high_failure_rate"
	BlockerLowCoherence        BlockerType = "low_coherence_entries"
	BlockerStalledPhase        BlockerType = "stalled_phase"
)

// Blocker is one detected failure pattern in the recent trail.
type Blocker struct {
	Type   BlockerType `json:"type"`
	Gate   string      `json:"gate,omitempty"`
	Detail string      `json:"detail"`
}

// Recommendation pairs a detected blocker with its fixed remediation. The
// mapping is a static lookup table, not a learning system.
type Recommendation struct {
	Blocker BlockerType `json:"blocker"`
	Gate    string      `json:"gate,omitempty"`
	Action  string      `json:"action"`
}

// remediations is the complete blocker -> action table.
var remediations = map[BlockerType]string{
	BlockerRepeatedGateFailure: "relax the failing gate's strictest precondition or split it into smaller checks",
	BlockerHighFailureRate:     "reduce threshold strictness across gates",
	BlockerLowCoherence:        "add a fallback path for documents scoring below target",
	BlockerStalledPhase:        "add a fallback path so the current phase can progress",
}

// #endregion blockers

// #region examples

// Example is a known-good transition synthesized from a passing entry, for
// downstream consumers that want a corpus of what passing looks like.
type Example struct {
	Gate           string   `json:"gate,omitempty"`
	Decision       string   `json:"decision"`
	Rationale      string   `json:"rationale"`
	CoherenceScore *float64 `json:"coherenceScore,omitempty"`
}

// maxExamples caps how many known-good examples one run synthesizes.
const maxExamples = 5

// #endregion examples

// #region report

// Report is the outcome of one Run. Achieved is false both when the loop
// hit its iteration cap and when cancellation stopped it early.
type Report struct {
	Achieved        bool             `json:"achieved"`
	Iterations      int              `json:"iterations"`
	FinalCoherence  float64          `json:"finalCoherence"`
	EntriesInWindow int              `json:"entriesInWindow"`
	Recommendations []Recommendation `json:"recommendations"`
	Examples        []Example        `json:"examples,omitempty"`
}

// #endregion report

// #region window-view

// windowView is the driver's snapshot of the recent trail.
type windowView struct {
	transitions []ledger.DecisionEntry // entries with a gateState, newest first
	scored      []ledger.DecisionEntry // entries with a coherence score, newest first
}

// #endregion window-view
