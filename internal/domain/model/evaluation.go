package model

// Outcome classifies how an evaluation ended.
type Outcome string

// Evaluation outcomes.
const (
	OutcomeOK              Outcome = "ok"
	OutcomeNoConsistentIVs Outcome = "no_consistent_ivs"
	OutcomeUndetected      Outcome = "undetected"
)

// Summary bounds the overall IV percentage across a candidate set.
type Summary struct {
	MinIV float64
	MaxIV float64
}

// Evaluation is the full result of running one observation through the pipeline.
// It is computed once and never updated; a corrected observation gets a new Evaluation.
type Evaluation struct {
	ID          string
	Observation Observation
	Species     Species
	Multiplier  float64
	Candidates  []Candidate
	Summary     Summary // zero unless Outcome is OutcomeOK
	Outcome     Outcome
}
