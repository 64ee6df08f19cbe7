package types

import "errors"

// Domain errors for type validation
var (
	ErrEmptySlug         = errors.New("slug cannot be empty")
	ErrEmptySourceKey    = errors.New("source key cannot be empty")
	ErrInvalidProgress   = errors.New("progress must be between 0 and 100")
	ErrInvalidWeight     = errors.New("weight must be between 0 and 1")
	ErrInvalidTransition = errors.New("invalid status transition")
)
