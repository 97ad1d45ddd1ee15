package ledger

import "fmt"

// #region validation-error

// ValidationError rejects a malformed entry at the Append boundary before
// anything is persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid entry: %s: %s", e.Field, e.Reason)
}

// #endregion validation-error

// #region storage-error

// StorageError wraps a backend I/O failure. The underlying error is never
// swallowed; callers can unwrap it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// #endregion storage-error

// #region validate

// validate enforces the required-field contract from the Append boundary.
func validate(e DecisionEntry) error {
	if e.Actor == "" {
		return &ValidationError{Field: "actor", Reason: "required"}
	}
	if e.Decision == "" {
		return &ValidationError{Field: "decision", Reason: "required"}
	}
	if e.Rationale == "" {
		return &ValidationError{Field: "rationale", Reason: "required"}
	}
	if !allowedOutcomes[e.Outcome] {
		return &ValidationError{Field: "outcome", Reason: fmt.Sprintf("%q is not an allowed outcome", e.Outcome)}
	}
	if e.CoherenceScore != nil && (*e.CoherenceScore < 0 || *e.CoherenceScore > 1) {
		return &ValidationError{Field: "coherenceScore", Reason: "must be in [0,1]"}
	}
	return nil
}

// #endregion validate
