package domain

import "errors"

var (
	ErrUnknownStatus       = errors.New("unknown application status")
	ErrUnknownPlatform     = errors.New("unknown job platform")
	ErrInvalidDetail       = errors.New("status detail does not match status")
	ErrNotAwaitingInput    = errors.New("application is not awaiting input")
	ErrApplicationNotFound = errors.New("application not found")
)
