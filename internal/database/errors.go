package database

import "errors"

var (
	// ErrNotFound is returned when the requested row does not exist
	ErrNotFound = errors.New("not found")

	// ErrDuplicateIntent is returned when an active payment intent already
	// exists for the owner
	ErrDuplicateIntent = errors.New("active payment intent already exists for owner")

	// ErrInsufficientStock is returned when a reservation would take stock
	// below zero
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrNotCancellable is returned when a cancellation loses the race
	// against a match or expiry; the caller must not apply its side effects
	ErrNotCancellable = errors.New("intent is not in a cancellable state")
)
