package ledger

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// #region format

// ExportFormat selects a trail serialization.
type ExportFormat string

const (
	FormatJSON     ExportFormat = "json"
	FormatCSV      ExportFormat = "csv"
	FormatTimeline ExportFormat = "timeline"
)

// #endregion format

// #region export

// Export writes the entries to w in the requested format. Formatting only;
// nothing here participates in the hash contract.
func Export(w io.Writer, entries []DecisionEntry, format ExportFormat) error {
	switch format {
	case FormatJSON:
		return exportJSON(w, entries)
	case FormatCSV:
		return exportCSV(w, entries)
	case FormatTimeline:
		return exportTimeline(w, entries)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// #endregion export

// #region json

func exportJSON(w io.Writer, entries []DecisionEntry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

// #endregion json

// #region csv

var csvHeader = []string{
	"id", "timestamp", "actor", "decision", "rationale", "outcome",
	"coherence_score", "context", "parent_entry", "gate_state",
	"hash", "previous_hash",
}

func exportCSV(w io.Writer, entries []DecisionEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, e := range entries {
		score := ""
		if e.CoherenceScore != nil {
			score = strconv.FormatFloat(*e.CoherenceScore, 'f', -1, 64)
		}
		rec := []string{
			e.ID,
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			e.Actor,
			e.Decision,
			e.Rationale,
			e.Outcome,
			score,
			flattenContext(e.Context),
			e.ParentEntry,
			e.GateState,
			e.Hash,
			e.PreviousHash,
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %s: %w", e.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func flattenContext(ctx map[string]string) string {
	pairs := make([]string, 0, len(ctx))
	for k, v := range ctx {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ";")
}

// #endregion csv

// #region timeline

// exportTimeline renders a human-readable audit narrative, oldest first.
func exportTimeline(w io.Writer, entries []DecisionEntry) error {
	ordered := make([]DecisionEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	for _, e := range ordered {
		line := fmt.Sprintf("[%s] %s: %s → %s",
			e.Timestamp.UTC().Format(time.RFC3339), e.Actor, e.Decision, e.Outcome)
		if e.GateState != "" {
			line += fmt.Sprintf(" (phase: %s)", e.GateState)
		}
		if e.CoherenceScore != nil {
			line += fmt.Sprintf(" (coherence: %.2f)", *e.CoherenceScore)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
		if e.Rationale != "" {
			if _, err := fmt.Fprintf(w, "    %s\n", e.Rationale); err != nil {
				return err
			}
		}
	}
	return nil
}

// #endregion timeline
