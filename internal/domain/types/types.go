// Package types contains common types used across the application
package types

// Entry represents a row of the ranked IV report
type Entry struct {
	Rank         int     `json:"rank"`
	Seq          int     `json:"seq"`
	EvaluationID string  `json:"evaluation_id"`
	SpeciesID    int     `json:"species_id"`
	Species      string  `json:"species"`
	CP           int     `json:"cp"`
	HP           int     `json:"hp"`
	Level        float64 `json:"level"`
	Candidates   int     `json:"candidates"`
	MinIV        float64 `json:"min_iv"`
	MaxIV        float64 `json:"max_iv"`
}
