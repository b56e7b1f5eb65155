// Package sentinel holds the errors stores use to report infrastructure
// facts. Services translate these into coded domain errors; handlers never
// see them.
package sentinel

import "errors"

var (
	// ErrNotFound: the record does not exist in the store.
	ErrNotFound = errors.New("not found")
	// ErrConflict: a storage-level uniqueness constraint rejected the
	// write (duplicate party, duplicate contact, duplicate national id).
	ErrConflict = errors.New("conflict")
	// ErrStale: a conditional update matched no row because the guarded
	// field already changed (a hasVoted flip that lost the race).
	ErrStale = errors.New("stale")
	// ErrUnavailable: the store or a collaborator is temporarily down.
	ErrUnavailable = errors.New("unavailable")
)
