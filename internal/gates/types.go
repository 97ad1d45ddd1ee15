package gates

import (
	"context"
	"fmt"
	"time"
)

// #region phase

// Phase is one of the six cyclic workflow phases.
type Phase string

const (
	PhaseUnderstanding Phase = "understanding"
	PhaseKnowledge     Phase = "knowledge"
	PhaseIntention     Phase = "intention"
	PhaseExecution     Phase = "execution"
	PhaseLearning      Phase = "learning"
	PhaseRegeneration  Phase = "regeneration"
)

var phaseOrder = []Phase{
	PhaseUnderstanding,
	PhaseKnowledge,
	PhaseIntention,
	PhaseExecution,
	PhaseLearning,
	PhaseRegeneration,
}

// Valid reports whether p names a known phase.
func (p Phase) Valid() bool {
	for _, q := range phaseOrder {
		if p == q {
			return true
		}
	}
	return false
}

// Next returns the phase that follows p. The cycle has no terminal state:
// regeneration wraps back to understanding.
func (p Phase) Next() Phase {
	for i, q := range phaseOrder {
		if p == q {
			return phaseOrder[(i+1)%len(phaseOrder)]
		}
	}
	return PhaseUnderstanding
}

// GateName returns the canonical name of the gate between two adjacent
// phases, e.g. "understanding->knowledge".
func GateName(from, to Phase) string {
	return fmt.Sprintf("%s->%s", from, to)
}

// #endregion phase

// #region precondition

// Precondition is one named domain check guarding a gate. Check returns
// whether the condition holds; a non-nil error (or a panic) is treated as a
// failed precondition, never as a pass.
type Precondition struct {
	Name  string
	Check func(ctx context.Context) (bool, error)
}

// #endregion precondition

// #region transition

// Transition records one attempted phase change, pass or fail. Appended to
// the ledger on every attempt and never mutated.
type Transition struct {
	Gate                string    `json:"gate"`
	From                Phase     `json:"from"`
	To                  Phase     `json:"to"`
	Passed              bool      `json:"passed"`
	FailedPreconditions []string  `json:"failedPreconditions,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
	// EntryID is the id of the ledger entry recording this attempt.
	EntryID string `json:"entryId,omitempty"`
}

// #endregion transition
