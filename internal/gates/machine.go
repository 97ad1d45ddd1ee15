// Package gates runs the phase-gated state machine. Each transition between
// adjacent phases is guarded by a named gate whose preconditions are supplied
// by the embedding application; the machine orchestrates evaluation, records
// every attempt in the provenance ledger, and escalates failures.
package gates

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/regenloop/coherence-engine/internal/escalate"
	"github.com/regenloop/coherence-engine/internal/ledger"
)

// #region machine

// Machine holds the current phase and the registered gate preconditions.
// Gates never roll a phase back; a failed attempt leaves the machine where
// it was.
type Machine struct {
	trail    *ledger.Ledger
	notifier escalate.Notifier
	logger   *zap.Logger
	actor    string

	mu       sync.Mutex
	current  Phase
	preconds map[Phase][]Precondition
}

// NewMachine creates a machine starting in the understanding phase.
func NewMachine(trail *ledger.Ledger, notifier escalate.Notifier, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = escalate.NewLogNotifier(logger)
	}
	return &Machine{
		trail:    trail,
		notifier: notifier,
		logger:   logger,
		actor:    "gate-machine",
		current:  PhaseUnderstanding,
		preconds: make(map[Phase][]Precondition),
	}
}

// Register adds preconditions to the gate leaving the given phase.
func (m *Machine) Register(from Phase, checks ...Precondition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preconds[from] = append(m.preconds[from], checks...)
}

// Current returns the machine's current phase.
func (m *Machine) Current() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// #endregion machine

// #region attempt

// Attempt evaluates the named gate from -> to. Every attempt, pass or fail,
// is appended to the ledger; failures are escalated. The machine does not
// retry — that is the caller's call.
//
// Fail-closed ordering: a gate whose source phase is not the machine's
// current phase fails with an out-of-phase precondition, regardless of the
// registered checks.
func (m *Machine) Attempt(ctx context.Context, from, to Phase) (Transition, error) {
	if !from.Valid() || !to.Valid() {
		return Transition{}, fmt.Errorf("unknown phase in gate %s", GateName(from, to))
	}
	if from.Next() != to {
		return Transition{}, fmt.Errorf("no gate between %s and %s", from, to)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tr := Transition{
		Gate:      GateName(from, to),
		From:      from,
		To:        to,
		Timestamp: time.Now().UTC(),
	}

	if m.current != from {
		tr.FailedPreconditions = []string{
			fmt.Sprintf("machine_in_phase:%s", m.current),
		}
	} else {
		for _, pc := range m.preconds[from] {
			if !m.runCheck(ctx, pc, tr.Gate) {
				tr.FailedPreconditions = append(tr.FailedPreconditions, pc.Name)
			}
		}
	}
	tr.Passed = len(tr.FailedPreconditions) == 0

	entry, err := m.record(ctx, tr)
	if err != nil {
		return Transition{}, err
	}
	tr.EntryID = entry.ID

	if tr.Passed {
		m.current = to
		m.logger.Info("gate passed",
			zap.String("gate", tr.Gate),
			zap.String("phase", string(to)))
		return tr, nil
	}

	m.logger.Warn("gate failed",
		zap.String("gate", tr.Gate),
		zap.Strings("failed_preconditions", tr.FailedPreconditions))

	ev := escalate.Event{
		Gate:                tr.Gate,
		Details:             fmt.Sprintf("transition %s blocked", tr.Gate),
		FailedPreconditions: tr.FailedPreconditions,
		Timestamp:           tr.Timestamp,
	}
	if nerr := m.notifier.Notify(ctx, ev); nerr != nil {
		// Escalation is best-effort; the recorded transition is the source
		// of truth.
		m.logger.Error("escalation failed", zap.Error(nerr))
	}
	return tr, nil
}

// Advance attempts the gate leaving the current phase.
func (m *Machine) Advance(ctx context.Context) (Transition, error) {
	cur := m.Current()
	return m.Attempt(ctx, cur, cur.Next())
}

// #endregion attempt

// #region check

// runCheck evaluates one precondition, converting checker errors and panics
// into failures.
func (m *Machine) runCheck(ctx context.Context, pc Precondition, gate string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("precondition panicked",
				zap.String("gate", gate),
				zap.String("precondition", pc.Name),
				zap.Any("panic", r))
			ok = false
		}
	}()

	pass, err := pc.Check(ctx)
	if err != nil {
		m.logger.Warn("precondition errored",
			zap.String("gate", gate),
			zap.String("precondition", pc.Name),
			zap.Error(err))
		return false
	}
	return pass
}

// #endregion check

// #region record

// record appends the transition to the ledger with gateState set to the
// target phase.
func (m *Machine) record(ctx context.Context, tr Transition) (ledger.DecisionEntry, error) {
	outcome := ledger.OutcomeSuccess
	rationale := "all preconditions held"
	if !tr.Passed {
		outcome = ledger.OutcomeFailure
		rationale = "failed preconditions: " + strings.Join(tr.FailedPreconditions, ", ")
	}

	entry := ledger.DecisionEntry{
		Timestamp: tr.Timestamp,
		Actor:     m.actor,
		Decision:  "gate " + tr.Gate,
		Rationale: rationale,
		Outcome:   outcome,
		GateState: string(tr.To),
		Context: map[string]string{
			"gate": tr.Gate,
			"from": string(tr.From),
			"to":   string(tr.To),
		},
	}
	appended, err := m.trail.Append(ctx, entry)
	if err != nil {
		return ledger.DecisionEntry{}, fmt.Errorf("record transition %s: %w", tr.Gate, err)
	}
	return appended, nil
}

// #endregion record
