package gates

import (
	"context"

	"github.com/regenloop/coherence-engine/internal/ledger"
)

// #region require-prior-pass

// RequirePriorPass is a ready-made precondition asserting that the gate
// between from and to has already passed at least once. Registering it on a
// later gate enforces phase ordering across machine restarts, since the
// evidence lives in the trail rather than in memory.
func RequirePriorPass(trail *ledger.Ledger, from, to Phase) Precondition {
	gate := GateName(from, to)
	return Precondition{
		Name: "prior_pass:" + gate,
		Check: func(ctx context.Context) (bool, error) {
			entries, err := trail.Query(ctx, ledger.Filter{
				GateState: string(to),
			})
			if err != nil {
				return false, err
			}
			for _, e := range entries {
				if e.Outcome == ledger.OutcomeSuccess {
					return true, nil
				}
			}
			return false, nil
		},
	}
}

// #endregion require-prior-pass

// #region require-coherent-entry

// RequireCoherentEntry is a precondition asserting that the most recent
// analyzer-backed entry met the given coherence floor.
func RequireCoherentEntry(trail *ledger.Ledger, floor float64) Precondition {
	return Precondition{
		Name: "coherent_entry",
		Check: func(ctx context.Context) (bool, error) {
			entries, err := trail.Query(ctx, ledger.Filter{
				MinCoherence: &floor,
				Limit:        1,
			})
			if err != nil {
				return false, err
			}
			return len(entries) > 0, nil
		},
	}
}

// #endregion require-coherent-entry
