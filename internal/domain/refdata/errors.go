package refdata

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for reference data lookups and loading.
var (
	ErrOutOfRange    = errors.New("out of range")
	ErrInvalidData   = errors.New("invalid reference data")
	ErrUnknownLocale = errors.New("unknown name locale")
)

// LookupError reports a species id or level the tables do not cover.
type LookupError struct {
	What  string // "species" or "level"
	Value string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.What, e.Value, ErrOutOfRange)
}

// Unwrap lets callers match with errors.Is(err, ErrOutOfRange).
func (e *LookupError) Unwrap() error { return ErrOutOfRange }

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidData, fmt.Sprintf(format, args...))
}
