// Package inference recovers hidden IV triples from observed CP and HP.
package inference

import (
	"math"

	"github.com/okian/ivscan/internal/domain/model"
)

// Floors the game applies to displayed values.
const (
	minHP = 10
	minCP = 10
)

// Infer enumerates every (attack, defense, stamina) triple in [0,15]^3 whose
// forward CP and HP match the observation. Order is stamina, then attack,
// then defense, each ascending. An empty result means the observation is
// inconsistent with the formula.
//
// Each value is floored and clamped on its own; folding the two formulas
// together before flooring gives different results.
func Infer(obs model.Observation, sp model.Species, multiplier float64) []model.Candidate {
	var out []model.Candidate
	for stamina := 0; stamina <= model.MaxIV; stamina++ {
		if HP(sp, stamina, multiplier) != obs.HealthPoints {
			continue
		}
		// Several staminas can floor to the same HP, so the outer loop runs to the end.
		for attack := 0; attack <= model.MaxIV; attack++ {
			for defense := 0; defense <= model.MaxIV; defense++ {
				c := model.Candidate{Attack: attack, Defense: defense, Stamina: stamina}
				if CP(sp, c, multiplier) == obs.CombatPower {
					out = append(out, c)
				}
			}
		}
	}
	return out
}

// HP is the displayed health for a stamina IV at the given multiplier.
func HP(sp model.Species, stamina int, multiplier float64) int {
	hp := int(math.Floor(multiplier * float64(sp.BaseHealth+stamina)))
	if hp < minHP {
		hp = minHP
	}
	return hp
}

// CP is the displayed combat power for an IV triple at the given multiplier.
func CP(sp model.Species, c model.Candidate, multiplier float64) int {
	raw := float64(sp.BaseAttack+c.Attack) *
		math.Sqrt(float64(sp.BaseDefense+c.Defense)) *
		math.Sqrt(float64(sp.BaseHealth+c.Stamina)) *
		(multiplier * multiplier) / 10
	cp := int(math.Floor(raw))
	if cp < minCP {
		cp = minCP
	}
	return cp
}
