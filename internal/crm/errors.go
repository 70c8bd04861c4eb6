package crm

import "errors"

// Sentinel errors for CRM operations.
var (
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
)
