package steady

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("steady: no store configured")
	ErrStoreClosed = errors.New("steady: store closed")

	// Not found errors.
	ErrJobNotFound       = errors.New("steady: job not found")
	ErrExecutionNotFound = errors.New("steady: execution not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("steady: job already exists")
	ErrLockHeld         = errors.New("steady: advisory lock held elsewhere")

	// Definition errors (fatal at definition time, never at dispatch time).
	ErrDefinitionNotFound = errors.New("steady: no definition registered for job")
	ErrInvalidHandlers    = errors.New("steady: invalid handler registry")
)
