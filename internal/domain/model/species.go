package model

// Species is one immutable row of the reference table.
type Species struct {
	ID          int    // 1-based, stable
	Name        string // canonical name
	BaseAttack  int
	BaseDefense int
	BaseHealth  int
}

// Candidate is one hidden attribute triple consistent with an observation.
// Each component lies in [0,15].
type Candidate struct {
	Attack  int
	Defense int
	Stamina int
}

// MaxIV is the upper bound of each candidate component.
const MaxIV = 15

// maxTotal is the sum of the three components at their maximum.
const maxTotal = 3 * MaxIV

// Percent returns the overall IV percentage of the candidate.
func (c Candidate) Percent() float64 {
	return float64(c.Attack+c.Defense+c.Stamina) / maxTotal * 100
}
