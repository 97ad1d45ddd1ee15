package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// #region canonical-payload

// canonicalPayload fixes the field order for hashing. All fields are structs,
// strings, or slices (no maps) so json.Marshal output is deterministic; the
// context map is flattened to a sorted k=v list first.
type canonicalPayload struct {
	ID             string   `json:"id"`
	Timestamp      string   `json:"timestamp"`
	Actor          string   `json:"actor"`
	Decision       string   `json:"decision"`
	Rationale      string   `json:"rationale"`
	Outcome        string   `json:"outcome"`
	CoherenceScore *float64 `json:"coherenceScore"`
	Context        []string `json:"context"`
	ParentEntry    string   `json:"parentEntry"`
	GateState      string   `json:"gateState"`
	PreviousHash   string   `json:"previousHash"`
}

// #endregion canonical-payload

// #region compute-hash

// ComputeHash returns the hex sha256 digest of the entry's semantic fields.
// Hash and Signature are excluded; everything else participates, so any
// post-write mutation is detectable by recomputing.
func ComputeHash(e DecisionEntry) string {
	ctx := make([]string, 0, len(e.Context))
	for k, v := range e.Context {
		ctx = append(ctx, k+"="+v)
	}
	sort.Strings(ctx)

	payload := canonicalPayload{
		ID:             e.ID,
		Timestamp:      e.Timestamp.UTC().Format(time.RFC3339Nano),
		Actor:          e.Actor,
		Decision:       e.Decision,
		Rationale:      e.Rationale,
		Outcome:        e.Outcome,
		CoherenceScore: e.CoherenceScore,
		Context:        ctx,
		ParentEntry:    e.ParentEntry,
		GateState:      e.GateState,
		PreviousHash:   e.PreviousHash,
	}

	// Marshal of a map-free struct cannot fail.
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// #endregion compute-hash
