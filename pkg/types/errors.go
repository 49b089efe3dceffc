package types

import "errors"

// Retrieval outcomes callers are expected to handle
var (
	// ErrNoWorkspace is returned when there are no workspace roots to search
	ErrNoWorkspace = errors.New("no workspace directories found")
	// ErrNoResults is returned when neither backend produced a chunk
	ErrNoResults = errors.New("no results found for codebase context")
)
