package provision

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("provision: no store configured")
	ErrStoreClosed = errors.New("provision: store closed")

	// Not found errors.
	ErrJobNotFound = errors.New("provision: job not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("provision: job already exists")

	// State errors.
	ErrInvalidState = errors.New("provision: invalid stage transition")

	// Input errors.
	ErrInvalidInput = errors.New("provision: invalid input")

	// Handler errors.
	ErrNoHandler = errors.New("provision: no handler registered for stage")
)
