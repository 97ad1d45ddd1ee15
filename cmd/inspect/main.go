package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/regenloop/coherence-engine/internal/ledger"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to coherence_trail.db (sqlite)")
	trailPath := flag.String("trail", "", "path to trail.jsonl (append-only file)")
	last := flag.Int("last", 20, "show N most recent entries")
	entryID := flag.String("entry", "", "show single entry detail with its chain")
	actor := flag.String("actor", "", "filter to one actor")
	gate := flag.String("gate", "", "filter to one gate state")
	verify := flag.Bool("verify", false, "verify hash integrity of the whole trail")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" && *trailPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/coherence_trail.db [--last N] [--entry id] [--actor name] [--gate phase] [--verify] [--json]")
		os.Exit(2)
	}

	trail, closeFn, err := openTrail(*dbPath, *trailPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open trail: %v\n", err)
		os.Exit(1)
	}
	defer closeFn()

	ctx := context.Background()

	switch {
	case *verify:
		err = runVerifyMode(ctx, trail, *jsonOut)
	case *entryID != "":
		err = runDetailMode(ctx, trail, *entryID, *jsonOut)
	default:
		err = runListMode(ctx, trail, *last, *actor, *gate, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func openTrail(dbPath, trailPath string) (*ledger.Ledger, func(), error) {
	var backend ledger.Backend
	var err error
	if trailPath != "" {
		backend, err = ledger.NewJSONLBackend(trailPath)
	} else {
		backend, err = ledger.NewSQLiteBackend(dbPath)
	}
	if err != nil {
		return nil, nil, err
	}
	trail, err := ledger.New(context.Background(), backend)
	if err != nil {
		backend.Close()
		return nil, nil, err
	}
	return trail, func() { trail.Close() }, nil
}

// #endregion main

// #region list-mode

func runListMode(ctx context.Context, trail *ledger.Ledger, last int, actor, gate string, jsonOut bool) error {
	entries, err := trail.Query(ctx, ledger.Filter{
		Actor:     actor,
		GateState: gate,
		Limit:     last,
	})
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no entries found")
		return nil
	}

	// Query returns newest-first, reverse for chronological display.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}

	if jsonOut {
		return printJSON(entries)
	}
	return printListTable(entries)
}

func printListTable(entries []ledger.DecisionEntry) error {
	fmt.Printf("%-10s  %-14s  %-30s  %-10s  %-9s  %-13s  %s\n",
		"Entry", "Actor", "Decision", "Outcome", "Coherence", "Gate", "Time")
	fmt.Printf("%-10s+-%-14s+-%-30s+-%-10s+-%-9s+-%-13s+-%s\n",
		"----------", "--------------", "------------------------------",
		"----------", "---------", "-------------", "--------------------")

	for _, e := range entries {
		coherence := "—"
		if e.CoherenceScore != nil {
			coherence = fmt.Sprintf("%.4f", *e.CoherenceScore)
		}
		gate := e.GateState
		if gate == "" {
			gate = "—"
		}
		fmt.Printf("%-10s  %-14s  %-30s  %-10s  %-9s  %-13s  %s\n",
			shortID(e.ID), truncate(e.Actor, 14), truncate(e.Decision, 30),
			e.Outcome, coherence, gate,
			e.Timestamp.Format("2006-01-02T15:04:05Z"))
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

func runDetailMode(ctx context.Context, trail *ledger.Ledger, entryID string, jsonOut bool) error {
	entry, found, err := trail.Get(ctx, entryID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("entry %s not found", entryID)
	}

	chain, err := trail.WalkChain(ctx, entryID)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(map[string]interface{}{
			"entry": entry,
			"chain": chain,
		})
	}

	fmt.Printf("Entry:      %s\n", entry.ID)
	fmt.Printf("Timestamp:  %s\n", entry.Timestamp.Format("2006-01-02T15:04:05Z"))
	fmt.Printf("Actor:      %s\n", entry.Actor)
	fmt.Printf("Decision:   %s\n", entry.Decision)
	fmt.Printf("Rationale:  %s\n", entry.Rationale)
	fmt.Printf("Outcome:    %s\n", entry.Outcome)
	if entry.CoherenceScore != nil {
		fmt.Printf("Coherence:  %.4f\n", *entry.CoherenceScore)
	}
	if entry.GateState != "" {
		fmt.Printf("Gate State: %s\n", entry.GateState)
	}
	if entry.ParentEntry != "" {
		fmt.Printf("Parent:     %s\n", entry.ParentEntry)
	}
	fmt.Printf("Hash:       %s\n", entry.Hash)
	if len(entry.Context) > 0 {
		fmt.Printf("\nContext:\n")
		for k, v := range entry.Context {
			fmt.Printf("  %-16s %s\n", k, v)
		}
	}

	fmt.Printf("\nParent chain (%d entries, integrity %s):\n",
		len(chain.Entries), integrityWord(chain.HashIntegrityValid))
	for _, e := range chain.Entries {
		marker := "  "
		if e.ID == entry.ID {
			marker = "* "
		}
		fmt.Printf("%s%s  %s: %s (%s)\n", marker, shortID(e.ID), e.Actor, truncate(e.Decision, 50), e.Outcome)
	}
	return nil
}

// #endregion detail-mode

// #region verify-mode

func runVerifyMode(ctx context.Context, trail *ledger.Ledger, jsonOut bool) error {
	report, err := trail.VerifyTrail(ctx)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(report)
	}

	fmt.Printf("Entries checked: %d\n", report.EntriesChecked)
	fmt.Printf("Integrity:       %s\n", integrityWord(report.Valid))
	if len(report.TamperedEntries) > 0 {
		fmt.Printf("\nTampered entries:\n")
		for _, id := range report.TamperedEntries {
			fmt.Printf("  %s\n", id)
		}
	}
	if report.BrokenChains > 0 {
		fmt.Printf("Broken chains:   %d\n", report.BrokenChains)
	}
	if !report.Valid {
		os.Exit(1)
	}
	return nil
}

// #endregion verify-mode

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n-1]) + "…"
}

func integrityWord(ok bool) string {
	if ok {
		return "valid"
	}
	return "BROKEN"
}

// #endregion output
