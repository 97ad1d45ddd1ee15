// Package driver runs the metric-gated recursion: a bounded loop that reads
// the trail's rolling coherence and, while it sits under target, maps
// detected failure patterns to a fixed set of remediation recommendations
// and synthesizes known-good examples from passing entries.
package driver

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/regenloop/coherence-engine/internal/ledger"
)

// #region driver

// Driver orchestrates the recursion over one ledger.
type Driver struct {
	trail  *ledger.Ledger
	config Config
	logger *zap.Logger
}

// New creates a driver. Zero config fields fall back to defaults.
func New(trail *ledger.Ledger, config Config, logger *zap.Logger) *Driver {
	def := DefaultConfig()
	if config.Target <= 0 {
		config.Target = def.Target
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = def.MaxIterations
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{trail: trail, config: config, logger: logger}
}

// #endregion driver

// #region run

// Run executes the bounded loop. Each pass re-measures the rolling
// coherence; when it is under target the pass scans for blockers, maps them
// through the static remediation table, and synthesizes examples. The
// blocker-to-recommendation mapping is pure, so two runs over an unchanged
// trail report identical recommendations.
//
// Cancellation is honored between iterations, never mid-iteration.
func (d *Driver) Run(ctx context.Context) (Report, error) {
	report := Report{Recommendations: []Recommendation{}}

	for i := 0; i < d.config.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		coherence, considered, err := d.trail.CoherenceWindow(ctx, d.config.Window)
		if err != nil {
			return report, err
		}
		report.FinalCoherence = coherence
		report.EntriesInWindow = considered

		if coherence >= d.config.Target {
			report.Achieved = true
			break
		}

		view, err := d.loadWindow(ctx)
		if err != nil {
			return report, err
		}

		blockers := d.scanBlockers(view)
		report.Recommendations = recommend(blockers)
		report.Examples = synthesizeExamples(view)
		report.Iterations = i + 1

		d.logger.Info("recursion iteration",
			zap.Int("iteration", i+1),
			zap.Float64("coherence", coherence),
			zap.Float64("target", d.config.Target),
			zap.Int("blockers", len(blockers)))
	}

	if !report.Achieved {
		d.logger.Warn("recursion budget exhausted below target",
			zap.Int("iterations", report.Iterations),
			zap.Float64("coherence", report.FinalCoherence),
			zap.Float64("target", d.config.Target))
	}

	if d.config.RecordRuns {
		if err := d.recordRun(ctx, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// #endregion run

// #region window

// loadWindow snapshots the newest transitions and scored entries.
func (d *Driver) loadWindow(ctx context.Context) (windowView, error) {
	entries, err := d.trail.Query(ctx, ledger.Filter{})
	if err != nil {
		return windowView{}, err
	}

	var view windowView
	for _, e := range entries {
		if e.GateState != "" && len(view.transitions) < d.config.Window {
			view.transitions = append(view.transitions, e)
		}
		if e.CoherenceScore != nil && len(view.scored) < d.config.Window {
			view.scored = append(view.scored, e)
		}
		if len(view.transitions) >= d.config.Window && len(view.scored) >= d.config.Window {
			break
		}
	}
	return view, nil
}

// #endregion window

// #region blocker-scan

// scanBlockers detects the known failure patterns in the window. Pure over
// the snapshot; output order is fixed by pattern, so results are stable.
func (d *Driver) scanBlockers(view windowView) []Blocker {
	var blockers []Blocker

	// Repeated failure of one specific gate.
	failsByGate := map[string]int{}
	for _, e := range view.transitions {
		if e.Outcome != ledger.OutcomeFailure {
			continue
		}
		failsByGate[e.Context["gate"]]++
	}
	gateNames := make([]string, 0, len(failsByGate))
	for g := range failsByGate {
		gateNames = append(gateNames, g)
	}
	sort.Strings(gateNames)
	for _, g := range gateNames {
		if failsByGate[g] >= 2 {
			blockers = append(blockers, Blocker{
				Type:   BlockerRepeatedGateFailure,
				Gate:   g,
				Detail: fmt.Sprintf("gate %s failed %d times in window", g, failsByGate[g]),
			})
		}
	}

	// Overall failure rate above 30%.
	if len(view.transitions) > 0 {
		failed := 0
		for _, e := range view.transitions {
			if e.Outcome == ledger.OutcomeFailure {
				failed++
			}
		}
		rate := float64(failed) / float64(len(view.transitions))
		if rate > 0.3 {
			blockers = append(blockers, Blocker{
				Type:   BlockerHighFailureRate,
				Detail: fmt.Sprintf("%.0f%% of %d transitions failed", rate*100, len(view.transitions)),
			})
		}
	}

	// Recorded analyzer scores trailing the target.
	if len(view.scored) > 0 {
		var sum float64
		for _, e := range view.scored {
			sum += *e.CoherenceScore
		}
		mean := sum / float64(len(view.scored))
		if mean < d.config.Target-0.2 {
			blockers = append(blockers, Blocker{
				Type:   BlockerLowCoherence,
				Detail: fmt.Sprintf("mean recorded coherence %.2f against target %.2f", mean, d.config.Target),
			})
		}
	}

	// No passing transition in the newest half of the window.
	if n := len(view.transitions); n >= 2 {
		stalled := true
		for _, e := range view.transitions[:n/2] {
			if e.Outcome == ledger.OutcomeSuccess {
				stalled = false
				break
			}
		}
		if stalled {
			blockers = append(blockers, Blocker{
				Type:   BlockerStalledPhase,
				Detail: "no passing transition in the newest half of the window",
			})
		}
	}

	return blockers
}

// recommend maps blockers through the static remediation table.
func recommend(blockers []Blocker) []Recommendation {
	recs := make([]Recommendation, 0, len(blockers))
	for _, b := range blockers {
		recs = append(recs, Recommendation{
			Blocker: b.Type,
			Gate:    b.Gate,
			Action:  remediations[b.Type],
		})
	}
	return recs
}

// #endregion blocker-scan

// #region examples

// synthesizeExamples collects up to maxExamples known-good transitions from
// entries that passed.
func synthesizeExamples(view windowView) []Example {
	var examples []Example
	for _, e := range view.transitions {
		if e.Outcome != ledger.OutcomeSuccess {
			continue
		}
		examples = append(examples, Example{
			Gate:           e.Context["gate"],
			Decision:       e.Decision,
			Rationale:      e.Rationale,
			CoherenceScore: e.CoherenceScore,
		})
		if len(examples) >= maxExamples {
			break
		}
	}
	return examples
}

// #endregion examples

// #region record-run

// recordRun appends a summary of the run to the trail. The entry carries no
// gateState and no coherence score, so it never feeds back into the window
// it reports on.
func (d *Driver) recordRun(ctx context.Context, report Report) error {
	outcome := ledger.OutcomeSuccess
	if !report.Achieved {
		outcome = ledger.OutcomePending
	}
	entry := ledger.DecisionEntry{
		Actor:     "coherence-driver",
		Decision:  "coherence recursion",
		Rationale: fmt.Sprintf("rolling coherence %.2f against target %.2f", report.FinalCoherence, d.config.Target),
		Outcome:   outcome,
		Context: map[string]string{
			"iterations":      strconv.Itoa(report.Iterations),
			"final_coherence": strconv.FormatFloat(report.FinalCoherence, 'f', 4, 64),
			"target":          strconv.FormatFloat(d.config.Target, 'f', 2, 64),
			"recommendations": strconv.Itoa(len(report.Recommendations)),
		},
	}
	if _, err := d.trail.Append(ctx, entry); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// #endregion record-run
