package transcript

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for transcript parsing.
var (
	// ErrNoMatch means the line is not an observation at all. Callers skip it.
	ErrNoMatch = errors.New("line does not match observation grammar")
	// ErrMalformedField means the line is an observation but a field could not be read.
	ErrMalformedField = errors.New("malformed field")
)

// ParseError describes why a line could not be turned into an observation.
type ParseError struct {
	Kind  error  // ErrNoMatch or ErrMalformedField
	Field string // empty for ErrNoMatch
	Value string
	Err   error // underlying conversion error, if any
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return e.Kind.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s %q: %v", e.Kind, e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("%s %s %q", e.Kind, e.Field, e.Value)
}

// Unwrap returns the kind so errors.Is(err, ErrMalformedField) works.
func (e *ParseError) Unwrap() error { return e.Kind }

func malformed(field, value string, err error) error {
	return &ParseError{Kind: ErrMalformedField, Field: field, Value: value, Err: err}
}
