// Package selfcheck generates synthetic observation lines from known hidden
// IVs and checks that the evaluator recovers them.
package selfcheck

import (
	"errors"
	"time"

	"github.com/okian/ivscan/internal/domain/model"
)

// ErrMissed means at least one sample's hidden triple was not among its candidates.
var ErrMissed = errors.New("hidden IVs not recovered")

// ErrInvalidCount means a negative number of samples was requested.
var ErrInvalidCount = errors.New("sample count must not be negative")

// Config holds configuration for a self-check run.
type Config struct {
	Count   int    // number of samples to generate
	Seed    uint64 // generator seed; equal seeds give equal samples
	Workers int    // concurrent evaluations
	Locale  string // locale of the names written into the lines
}

// Sample is one generated line and the values it was built from.
type Sample struct {
	Seq     int
	Line    string
	Species model.Species
	Level   float64
	Hidden  model.Candidate
}

// Miss records a sample the evaluator got wrong.
type Miss struct {
	Sample  Sample
	Outcome model.Outcome
	Err     error
}

// Stats holds self-check statistics.
type Stats struct {
	Generated  int
	Evaluated  int
	Recovered  int
	Candidates int // total candidates across samples
	Misses     []Miss
	Duration   time.Duration
}
