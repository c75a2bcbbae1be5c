package domain

import (
	"errors"
	"fmt"
)

// ErrNotJoined is returned when an operation requires a joined session.
var ErrNotJoined = errors.New("not joined")

// ErrNoChannel is returned when no channel is selected.
var ErrNoChannel = errors.New("no channel selected")

// ErrUnknownChannel is returned when selecting a channel id that is not
// in the loaded directory.
var ErrUnknownChannel = errors.New("unknown channel")

// ValidationError rejects bad input before any network call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PersistenceError reports a write rejected by the store. The record was
// not created; the caller may retry with the same input.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// LoadError reports a failed backlog or roster fetch. Prior in-memory
// state is preserved; the caller may retry.
type LoadError struct {
	Op  string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load failure during %s: %v", e.Op, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SubscriptionError reports a dropped or failed change-feed subscription.
// Local state is stale until a resubscribe succeeds.
type SubscriptionError struct {
	Table string
	Err   error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription failure on %s: %v", e.Table, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }
