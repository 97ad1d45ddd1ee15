package ledger

import (
	"strings"
	"time"
)

// #region outcomes

// Allowed values for DecisionEntry.Outcome.
const (
	OutcomeSuccess    = "success"
	OutcomeFailure    = "failure"
	OutcomePending    = "pending"
	OutcomeSuperseded = "superseded"
)

var allowedOutcomes = map[string]bool{
	OutcomeSuccess:    true,
	OutcomeFailure:    true,
	OutcomePending:    true,
	OutcomeSuperseded: true,
}

// #endregion outcomes

// #region decision-entry

// DecisionEntry is one immutable ledger record. Hash covers every semantic
// field (everything except Hash and Signature); PreviousHash links the entry
// to the one appended immediately before it, forming the tamper-evident
// chain.
type DecisionEntry struct {
	ID             string            `json:"id"`
	Timestamp      time.Time         `json:"timestamp"`
	Actor          string            `json:"actor"`
	Decision       string            `json:"decision"`
	Rationale      string            `json:"rationale"`
	Outcome        string            `json:"outcome"`
	CoherenceScore *float64          `json:"coherenceScore,omitempty"`
	Context        map[string]string `json:"context,omitempty"`
	ParentEntry    string            `json:"parentEntry,omitempty"`
	GateState      string            `json:"gateState,omitempty"`
	Hash           string            `json:"hash"`
	PreviousHash   string            `json:"previousHash,omitempty"`
	// Signature is reserved for an external signer; never produced here.
	Signature string `json:"signature,omitempty"`
}

// #endregion decision-entry

// #region filter

// Filter selects entries for Query. Zero-valued fields are ignored; time
// bounds are inclusive.
type Filter struct {
	Actor        string
	Since        *time.Time
	Until        *time.Time
	Contains     string // substring match on decision or outcome
	MinCoherence *float64
	MaxCoherence *float64
	GateState    string
	ParentEntry  string
	Limit        int // <= 0 means no limit
	Offset       int
}

// Matches reports whether e satisfies every set criterion. Limit and Offset
// are pagination, not criteria, and are not evaluated here.
func (f Filter) Matches(e DecisionEntry) bool {
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.Since != nil && e.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && e.Timestamp.After(*f.Until) {
		return false
	}
	if f.Contains != "" &&
		!strings.Contains(e.Decision, f.Contains) &&
		!strings.Contains(e.Outcome, f.Contains) {
		return false
	}
	if f.MinCoherence != nil && (e.CoherenceScore == nil || *e.CoherenceScore < *f.MinCoherence) {
		return false
	}
	if f.MaxCoherence != nil && (e.CoherenceScore == nil || *e.CoherenceScore > *f.MaxCoherence) {
		return false
	}
	if f.GateState != "" && e.GateState != f.GateState {
		return false
	}
	if f.ParentEntry != "" && e.ParentEntry != f.ParentEntry {
		return false
	}
	return true
}

// #endregion filter

// #region chain

// Chain is the result of walking parentEntry links back to a root.
type Chain struct {
	// Entries are ordered oldest first.
	Entries []DecisionEntry `json:"entries"`
	// HashIntegrityValid is false if any entry's recomputed digest differs
	// from its recorded hash, or a parent link is broken.
	HashIntegrityValid bool `json:"hashIntegrityValid"`
}

// #endregion chain

// #region verification-report

// VerificationReport is the outcome of a full-trail integrity scan. Finding
// tampering is a report, never an error.
type VerificationReport struct {
	Valid          bool     `json:"valid"`
	EntriesChecked int      `json:"entriesChecked"`
	// TamperedEntries lists ids whose recomputed digest no longer matches
	// the recorded hash.
	TamperedEntries []string `json:"tamperedEntries"`
	// BrokenChains counts previousHash values with no matching entry
	// anywhere in the trail.
	BrokenChains int `json:"brokenChains"`
}

// #endregion verification-report
