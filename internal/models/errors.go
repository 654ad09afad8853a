package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for admission control and job lookups
var (
	ErrConcurrencyLimit  = errors.New("too many jobs in flight for this user")
	ErrRateLimited       = errors.New("request rate limit exceeded")
	ErrJobNotFound       = errors.New("job not found")
	ErrJobNotCancellable = errors.New("job can only be cancelled while queued")
	ErrUnknownModel      = errors.New("unknown model")
)

// InsufficientCreditsError is returned when a deduction would drive the
// balance below zero. Both numbers are surfaced to the caller.
type InsufficientCreditsError struct {
	Required  int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}

// InvalidAmountError indicates a programmer error: a zero or wrongly
// signed amount where a positive one is required.
type InvalidAmountError struct {
	Amount int
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid credit amount: %d", e.Amount)
}

// UserNotFoundError is returned on write paths for unknown users.
// Read paths (GetBalance) degrade to 0 instead.
type UserNotFoundError struct {
	UserID string
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("user %s not found", e.UserID)
}
