package repository

import "errors"

// Sentinel kinds for report store errors.
var (
	ErrNotFound     = errors.New("evaluation not found")
	ErrInvalidLimit = errors.New("invalid report limit")
	ErrMissingID    = errors.New("evaluation has no id")
)
