package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// #region jsonl-backend

// JSONLBackend stores the trail as an append-only newline-delimited JSON
// file, one entry per line. Suited to small embedded deployments and audit
// dumps; queries scan the whole file.
type JSONLBackend struct {
	mu   sync.RWMutex
	path string
	f    *os.File
}

// NewJSONLBackend opens (or creates) the trail file in append mode.
func NewJSONLBackend(path string) (*JSONLBackend, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trail file: %w", err)
	}
	return &JSONLBackend{path: path, f: f}, nil
}

// Close closes the trail file.
func (b *JSONLBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.f.Close()
}

// #endregion jsonl-backend

// #region insert

// Insert appends one entry as a single JSON line.
func (b *JSONLBackend) Insert(ctx context.Context, e DecisionEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.f.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("append entry: %w", err)
	}
	if err := b.f.Sync(); err != nil {
		return fmt.Errorf("sync trail file: %w", err)
	}
	return nil
}

// #endregion insert

// #region reads

// Get returns the entry with the given id.
func (b *JSONLBackend) Get(ctx context.Context, id string) (DecisionEntry, bool, error) {
	entries, err := b.All(ctx)
	if err != nil {
		return DecisionEntry{}, false, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, true, nil
		}
	}
	return DecisionEntry{}, false, nil
}

// Query filters the full trail in memory, newest first.
func (b *JSONLBackend) Query(ctx context.Context, f Filter) ([]DecisionEntry, error) {
	entries, err := b.All(ctx)
	if err != nil {
		return nil, err
	}

	type indexed struct {
		e   DecisionEntry
		pos int
	}
	var hits []indexed
	for i, e := range entries {
		if f.Matches(e) {
			hits = append(hits, indexed{e: e, pos: i})
		}
	}
	// Newest first; ties fall back to reverse append order.
	sort.SliceStable(hits, func(i, j int) bool {
		if !hits[i].e.Timestamp.Equal(hits[j].e.Timestamp) {
			return hits[i].e.Timestamp.After(hits[j].e.Timestamp)
		}
		return hits[i].pos > hits[j].pos
	})
	matched := make([]DecisionEntry, 0, len(hits))
	for _, h := range hits {
		matched = append(matched, h.e)
	}

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

// All reads every line of the trail file in append order.
func (b *JSONLBackend) All(ctx context.Context) ([]DecisionEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	f, err := os.Open(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open trail file: %w", err)
	}
	defer f.Close()

	var entries []DecisionEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var e DecisionEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("trail line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read trail file: %w", err)
	}
	return entries, nil
}

// #endregion reads
