package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/regenloop/coherence-engine/internal/ledger"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to coherence_trail.db (sqlite)")
	trailPath := flag.String("trail", "", "path to trail.jsonl (append-only file)")
	outPath := flag.String("out", "", "output path (default stdout)")
	format := flag.String("format", "json", "export format: json, csv, or timeline")
	actor := flag.String("actor", "", "filter to one actor")
	gate := flag.String("gate", "", "filter to one gate state")
	since := flag.String("since", "", "only entries at or after this RFC3339 time")
	until := flag.String("until", "", "only entries at or before this RFC3339 time")
	last := flag.Int("last", 0, "export only the N most recent matching entries")
	flag.Parse()

	if *dbPath == "" && *trailPath == "" {
		fmt.Fprintln(os.Stderr, "usage: trail-export --db path/to/coherence_trail.db [--out file] [--format json|csv|timeline] [--actor name] [--gate phase] [--since t] [--until t] [--last N]")
		os.Exit(2)
	}

	if err := run(*dbPath, *trailPath, *outPath, *format, *actor, *gate, *since, *until, *last); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region export

func run(dbPath, trailPath, outPath, format, actor, gate, since, until string, last int) error {
	var backend ledger.Backend
	var err error
	if trailPath != "" {
		backend, err = ledger.NewJSONLBackend(trailPath)
	} else {
		backend, err = ledger.NewSQLiteBackend(dbPath)
	}
	if err != nil {
		return fmt.Errorf("open trail: %w", err)
	}

	trail, err := ledger.New(context.Background(), backend)
	if err != nil {
		backend.Close()
		return fmt.Errorf("open trail: %w", err)
	}
	defer trail.Close()

	filter := ledger.Filter{
		Actor:     actor,
		GateState: gate,
		Limit:     last,
	}
	if since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return fmt.Errorf("parse --since: %w", err)
		}
		filter.Since = &t
	}
	if until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return fmt.Errorf("parse --until: %w", err)
		}
		filter.Until = &t
	}

	entries, err := trail.Query(context.Background(), filter)
	if err != nil {
		return fmt.Errorf("query trail: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("no entries matched")
	}

	out := os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", outPath, err)
		}
		defer f.Close()
		out = f
	}

	if err := ledger.Export(out, entries, ledger.ExportFormat(format)); err != nil {
		return err
	}

	if outPath != "" {
		fmt.Printf("Exported %d entries to %s (%s)\n", len(entries), outPath, format)
	}
	return nil
}

// #endregion export
