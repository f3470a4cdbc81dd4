package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrRateLimited      = errors.New("rate limited")
	ErrInvalidOrder     = errors.New("invalid order parameters")
	ErrInvalidState     = errors.New("invalid state transition")
	ErrPositionClosed   = errors.New("position already closed")
	ErrPriceUnavailable = errors.New("price unavailable")
	ErrVenue            = errors.New("venue error")
	ErrSigningFailed    = errors.New("signing failed")
	ErrWSDisconnect     = errors.New("websocket disconnected")
	ErrLockHeld         = errors.New("lock already held")
)
