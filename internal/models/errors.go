package models

import "errors"

// Catalog errors. Callers match them with errors.Is; lower layers wrap them with context.
var (
	// ErrAlreadyExists 重复的 accession
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidTransition status change outside the forward lifecycle, or a CAS miss.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotFound unknown accession on a direct lookup.
	ErrNotFound = errors.New("not found")

	// ErrNotReady no quick-read available yet. Expected state, not a fault.
	ErrNotReady = errors.New("not ready")

	// ErrInvalidRequest malformed filter or missing identifying field.
	ErrInvalidRequest = errors.New("invalid request")
)
