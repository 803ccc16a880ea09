package domain

import "errors"

// Pipeline error kinds. Callers classify failures with errors.Is; the
// concrete cause is carried by wrapping.
var (
	// ErrInvalidSource marks a malformed ingress event. The event is
	// dropped; the pipeline keeps running.
	ErrInvalidSource = errors.New("invalid source")

	// ErrNoMatch means no rule script matched and the AI fallback
	// produced no usable candidate. Reported to the caller, not retried.
	ErrNoMatch = errors.New("no classifier matched")

	// ErrScriptTimeout marks a rule or category script that exceeded its
	// wall-clock budget. Treated as a non-match, never as a crash.
	ErrScriptTimeout = errors.New("script timed out")

	// ErrPersistence marks a storage failure. Fatal to the single
	// ingestion; the submission is reported lost to the caller.
	ErrPersistence = errors.New("persistence failure")

	// ErrMappingLookup marks a mapping-table failure. Non-fatal: the
	// resolver falls back to unmapped passthrough.
	ErrMappingLookup = errors.New("mapping lookup failed")

	// ErrNotFound is returned by stores for unknown bill ids.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition marks a lifecycle move that would go backward
	// or skip a state. The record is left untouched.
	ErrInvalidTransition = errors.New("invalid state transition")
)
