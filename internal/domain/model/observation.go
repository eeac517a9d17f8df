// Package model contains domain models passed between layers.
package model

// Unknown is the value the upstream reader logs for a field it could not detect.
const Unknown = -1

// Measurements holds the optional body measurements read from a detail screen.
type Measurements struct {
	Weight float64 // kilograms
	Size   float64 // meters
}

// Observation is one parsed transcript line.
// Fields mirror the upstream "Received values" log grammar.
type Observation struct {
	SpeciesIndex    int     // 0-based index as logged upstream
	SpeciesNameRaw  string  // name as logged or read by OCR
	CombatPower     int     // displayed CP
	HealthPoints    int     // displayed max HP
	DustCost        int     // stardust cost of the next power-up
	Level           float64 // level in half steps
	FastMoveName    string
	SpecialMoveName string
	GenderCode      int

	// Measurements is nil unless a detail-screen transcript provided them.
	Measurements *Measurements
}

// SpeciesID returns the 1-based species id matching the reference table.
func (o *Observation) SpeciesID() int {
	return o.SpeciesIndex + 1
}

// Detected reports whether every field required for inference was read.
func (o *Observation) Detected() bool {
	return o.SpeciesIndex != Unknown &&
		o.CombatPower != Unknown &&
		o.HealthPoints != Unknown &&
		o.DustCost != Unknown &&
		o.Level != Unknown
}
