package domain

import "errors"

// Failure kinds surfaced by the repository. Call sites wrap these with
// context; the HTTP boundary maps them to status codes with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrConfigurationFatal = errors.New("configuration error")
)
