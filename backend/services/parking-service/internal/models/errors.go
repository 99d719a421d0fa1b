package models

import "errors"

// Error taxonomy shared by the orchestrator, stores and transport.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrDevice            = errors.New("device error")
	ErrLock              = errors.New("lock error")
	ErrInvalidTransition = errors.New("invalid status transition")
)
