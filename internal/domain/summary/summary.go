// Package summary reduces candidate sets to the figures shown to users.
package summary

import (
	"errors"

	"github.com/okian/ivscan/internal/domain/model"
)

// ErrEmptyResult means no hidden attributes are consistent with the
// observation. It is a business outcome, not a computation failure.
var ErrEmptyResult = errors.New("no consistent hidden attributes")

// Summarize returns the lowest and highest overall IV percentage.
func Summarize(candidates []model.Candidate) (model.Summary, error) {
	if len(candidates) == 0 {
		return model.Summary{}, ErrEmptyResult
	}
	s := model.Summary{MinIV: candidates[0].Percent(), MaxIV: candidates[0].Percent()}
	for _, c := range candidates[1:] {
		p := c.Percent()
		if p < s.MinIV {
			s.MinIV = p
		}
		if p > s.MaxIV {
			s.MaxIV = p
		}
	}
	return s, nil
}

// BodyMassIndex returns weight / size², a descriptive ratio only.
// ok is false when the observation has no measurements or a zero size.
func BodyMassIndex(obs model.Observation) (float64, bool) {
	m := obs.Measurements
	if m == nil || m.Size == 0 {
		return 0, false
	}
	return m.Weight / (m.Size * m.Size), true
}
