// Package ledger implements the append-only, hash-linked provenance trail.
// Every decision the engine or its embedder makes becomes an immutable
// DecisionEntry whose sha256 digest covers all semantic fields and whose
// previousHash links it to the entry appended before it.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxChainDepth bounds WalkChain against parent cycles in a corrupted trail.
const maxChainDepth = 10_000

// #region ledger

// Ledger is the single append choke point over a storage backend. One Ledger
// owns one chain cursor; Append calls are serialized by an internal mutex so
// concurrent writers cannot corrupt the hash chain. Reads run concurrently.
type Ledger struct {
	backend Backend

	mu       sync.Mutex
	lastHash string
}

// New creates a Ledger over the given backend and recovers the chain cursor
// from the newest stored entry, so appends resume the existing chain after a
// restart.
func New(ctx context.Context, backend Backend) (*Ledger, error) {
	newest, err := backend.Query(ctx, Filter{Limit: 1})
	if err != nil {
		return nil, &StorageError{Op: "recover cursor", Err: err}
	}
	l := &Ledger{backend: backend}
	if len(newest) > 0 {
		l.lastHash = newest[0].Hash
	}
	return l, nil
}

// Close closes the underlying backend.
func (l *Ledger) Close() error {
	return l.backend.Close()
}

// #endregion ledger

// #region append

// Append validates the entry, links it to the chain, persists it, and
// returns it with ID, Hash, and PreviousHash populated. The chain cursor
// only advances after the backend write succeeds, so a failed append never
// leaves the cursor pointing at an unpersisted hash.
func (l *Ledger) Append(ctx context.Context, e DecisionEntry) (DecisionEntry, error) {
	if err := validate(e); err != nil {
		return DecisionEntry{}, err
	}

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	} else {
		e.Timestamp = e.Timestamp.UTC()
	}

	// No forward references: a parent must already exist.
	if e.ParentEntry != "" {
		_, found, err := l.backend.Get(ctx, e.ParentEntry)
		if err != nil {
			return DecisionEntry{}, &StorageError{Op: "check parent", Err: err}
		}
		if !found {
			return DecisionEntry{}, &ValidationError{Field: "parentEntry", Reason: fmt.Sprintf("entry %q does not exist", e.ParentEntry)}
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e.PreviousHash = l.lastHash
	e.Hash = ComputeHash(e)

	if err := l.backend.Insert(ctx, e); err != nil {
		return DecisionEntry{}, &StorageError{Op: "append", Err: err}
	}
	l.lastHash = e.Hash
	return e, nil
}

// #endregion append

// #region reads

// Get returns a single entry by id.
func (l *Ledger) Get(ctx context.Context, id string) (DecisionEntry, bool, error) {
	e, found, err := l.backend.Get(ctx, id)
	if err != nil {
		return DecisionEntry{}, false, &StorageError{Op: "get", Err: err}
	}
	return e, found, nil
}

// Query returns entries matching the filter, newest first.
func (l *Ledger) Query(ctx context.Context, f Filter) ([]DecisionEntry, error) {
	entries, err := l.backend.Query(ctx, f)
	if err != nil {
		return nil, &StorageError{Op: "query", Err: err}
	}
	return entries, nil
}

// #endregion reads

// #region walk-chain

// WalkChain follows parentEntry links backward from id to the root and
// returns the chain oldest first. HashIntegrityValid is false when any
// visited entry fails digest recomputation or a parent link points at a
// missing entry.
func (l *Ledger) WalkChain(ctx context.Context, id string) (Chain, error) {
	var reversed []DecisionEntry
	valid := true

	cur := id
	for depth := 0; cur != "" && depth < maxChainDepth; depth++ {
		e, found, err := l.backend.Get(ctx, cur)
		if err != nil {
			return Chain{}, &StorageError{Op: "walk chain", Err: err}
		}
		if !found {
			if depth == 0 {
				return Chain{}, &ValidationError{Field: "id", Reason: fmt.Sprintf("entry %q does not exist", id)}
			}
			// Dangling parent link: report, don't fail.
			valid = false
			break
		}
		if ComputeHash(e) != e.Hash {
			valid = false
		}
		reversed = append(reversed, e)
		cur = e.ParentEntry
	}

	// Oldest first.
	entries := make([]DecisionEntry, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		entries = append(entries, reversed[i])
	}
	return Chain{Entries: entries, HashIntegrityValid: valid}, nil
}

// #endregion walk-chain

// #region verify-trail

// VerifyTrail scans every entry, recomputes digests, and confirms each
// previousHash resolves to a stored entry. Tampering is reported, never
// raised.
//
// Known transient: a verification pass overlapping an in-flight append can
// see the new entry's predecessor hash before the entry itself is visible
// and report one broken chain. Re-run after writes quiesce before treating
// a single broken link as corruption.
func (l *Ledger) VerifyTrail(ctx context.Context) (VerificationReport, error) {
	entries, err := l.backend.All(ctx)
	if err != nil {
		return VerificationReport{}, &StorageError{Op: "verify", Err: err}
	}

	byHash := make(map[string]bool, len(entries))
	for _, e := range entries {
		byHash[e.Hash] = true
	}

	report := VerificationReport{
		EntriesChecked:  len(entries),
		TamperedEntries: []string{},
	}
	for _, e := range entries {
		if ComputeHash(e) != e.Hash {
			report.TamperedEntries = append(report.TamperedEntries, e.ID)
		}
		if e.PreviousHash != "" && !byHash[e.PreviousHash] {
			report.BrokenChains++
		}
	}
	report.Valid = len(report.TamperedEntries) == 0 && report.BrokenChains == 0
	return report, nil
}

// #endregion verify-trail

// #region coherence-window

// CoherenceWindow computes the rolling coherence score over the newest
// `window` scored entries. Gate transitions and analyzer-backed entries
// count toward the window; unscored narrative entries are skipped rather
// than diluting it. An entry counts as coherent when its outcome is
// success. Returns score and entries considered.
func (l *Ledger) CoherenceWindow(ctx context.Context, window int) (float64, int, error) {
	entries, err := l.Query(ctx, Filter{})
	if err != nil {
		return 0, 0, err
	}

	considered := 0
	passed := 0
	for _, e := range entries {
		if e.GateState == "" && e.CoherenceScore == nil {
			continue
		}
		considered++
		if e.Outcome == OutcomeSuccess {
			passed++
		}
		if window > 0 && considered >= window {
			break
		}
	}
	if considered == 0 {
		return 0, 0, nil
	}
	return float64(passed) / float64(considered), considered, nil
}

// #endregion coherence-window
