// Package common defines sentinel errors shared by the repositories, the
// reconciliation services and the sync orchestrator. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound     = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrNothingClaimed = errors.New("no job available")

	// Service-level errors.
	ErrorInternal        = errors.New("internal error")
	ErrInvalidTransition = errors.New("invalid sync state transition")
	ErrInvalidRecord     = errors.New("invalid record")

	// Credential errors are fatal to a run and are surfaced on the connection.
	ErrCredentials        = errors.New("credential error")
	ErrNoRefreshToken     = errors.New("no refresh token")
	ErrConnectionInactive = errors.New("connection inactive")

	// Provider errors are recoverable per source.
	ErrProvider            = errors.New("provider error")
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrNotCalendarProvider = errors.New("provider has no calendar capability")

	// ErrNoUsableData is returned when every source of a run failed.
	ErrNoUsableData = errors.New("no source produced usable data")
)
