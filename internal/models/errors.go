package models

import "errors"

// Error taxonomy shared by every engine package. Callers match with errors.Is.
var (
	// ErrInvalidInput rejects a record or argument before anything is applied.
	ErrInvalidInput = errors.New("invalid input")
	// ErrArtifactUnavailable means a file vanished or was unreadable during inspection.
	ErrArtifactUnavailable = errors.New("artifact unavailable")
	// ErrMergeConflict marks a single rule that could not be merged.
	ErrMergeConflict = errors.New("merge conflict")
	// ErrConfiguration means a caller passed a value outside a closed whitelist.
	ErrConfiguration = errors.New("configuration error")
)
