package selfcheck

import (
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/okian/ivscan/internal/domain/inference"
	"github.com/okian/ivscan/internal/domain/model"
	"github.com/okian/ivscan/internal/domain/refdata"
)

// Stardust cost of the next power-up, indexed by whole level bands of four.
// The evaluator does not use it; it only has to be a readable value.
var dustCosts = []int{200, 400, 600, 800, 1000, 1300, 1600, 1900, 2200, 2500, 3000, 3500, 4000, 4500, 5000, 6000, 7000, 8000, 9000, 10000}

// Gender codes as logged upstream.
const genderCodes = 3

// Generate builds count samples drawn from the reference tables. Names are
// written in locale. The same seed always yields the same samples.
func Generate(refs *refdata.Store, locale string, count int, seed uint64) ([]Sample, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}
	species, err := refs.Species(locale)
	if err != nil {
		return nil, fmt.Errorf("species names: %w", err)
	}
	levels := refs.Levels()

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // reproducible test data
	samples := make([]Sample, count)
	for i := range samples {
		sp := species[rng.IntN(len(species))]
		level := levels[rng.IntN(len(levels))]
		hidden := model.Candidate{
			Attack:  rng.IntN(model.MaxIV + 1),
			Defense: rng.IntN(model.MaxIV + 1),
			Stamina: rng.IntN(model.MaxIV + 1),
		}

		mult, err := refs.LevelMultiplier(level)
		if err != nil {
			return nil, err
		}

		samples[i] = Sample{
			Seq:     i + 1,
			Species: sp,
			Level:   level,
			Hidden:  hidden,
			Line: FormatLine(model.Observation{
				SpeciesIndex:    sp.ID - 1,
				SpeciesNameRaw:  sp.Name,
				CombatPower:     inference.CP(sp, hidden, mult),
				HealthPoints:    inference.HP(sp, hidden.Stamina, mult),
				DustCost:        dustCosts[min(int(level)/4, len(dustCosts)-1)],
				Level:           level,
				FastMoveName:    "Tackle",
				SpecialMoveName: "Body Slam",
				GenderCode:      rng.IntN(genderCodes),
			}),
		}
	}
	return samples, nil
}

// FormatLine writes an observation the way the upstream reader logs it.
func FormatLine(obs model.Observation) string { //nolint:gocritic // hugeParam
	return fmt.Sprintf("Received values: Id: %d (%s), CP: %d, Max HP: %d, Dust cost: %d, Level: %s, FastMove %s, SpecialMove %s, Gender %d",
		obs.SpeciesIndex, obs.SpeciesNameRaw, obs.CombatPower, obs.HealthPoints, obs.DustCost,
		strconv.FormatFloat(obs.Level, 'f', -1, 64), obs.FastMoveName, obs.SpecialMoveName, obs.GenderCode)
}
