package session

import "errors"

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionEnded         = errors.New("session has ended")
	ErrSessionNotLive       = errors.New("session is not live")
	ErrNotAcceptingRequests = errors.New("session is not accepting requests")
	ErrInvalidTransition    = errors.New("invalid session status transition")
	ErrInvalidStatus        = errors.New("invalid session status")
	ErrNotOwner             = errors.New("session belongs to another performer")
)

var (
	ErrBelowMinimum   = errors.New("amount is below the session minimum")
	ErrInvalidMinimum = errors.New("min tip amount must not be negative")
)
