// Package refdata holds the immutable species and level multiplier tables.
//
// A Store is built once at startup and never mutated, so it can be shared
// between goroutines without locking.
package refdata

import (
	"math"
	"sort"
	"strconv"

	"github.com/okian/ivscan/internal/domain/model"
)

// Supported name locales.
const (
	LocaleEN = "en"
	LocaleFR = "fr"
)

// MinLevel is the level of the first multiplier in the table.
const MinLevel = 1.0

// levelSteps is the number of table entries per whole level.
const levelSteps = 2

// Store is the read-only reference data handle passed to each component.
type Store struct {
	species     []model.Species
	localized   map[string][]string // locale -> names in table order
	multipliers []float64
}

// Entry is a species row with its localized names, used to build a Store.
type Entry struct {
	Species model.Species
	Names   map[string]string // locale -> name; the canonical name covers LocaleEN
}

// New validates the tables and builds a Store. Species ids must be
// contiguous from 1 and multipliers positive and non-decreasing.
func New(entries []Entry, multipliers []float64) (*Store, error) {
	if len(entries) == 0 {
		return nil, invalidf("empty species table")
	}
	if len(multipliers) == 0 {
		return nil, invalidf("empty multiplier table")
	}

	s := &Store{
		species:     make([]model.Species, len(entries)),
		localized:   map[string][]string{LocaleEN: make([]string, len(entries))},
		multipliers: append([]float64(nil), multipliers...),
	}

	for i, e := range entries {
		sp := e.Species
		switch {
		case sp.ID != i+1:
			return nil, invalidf("species at position %d has id %d", i, sp.ID)
		case sp.Name == "":
			return nil, invalidf("species %d has no name", sp.ID)
		case sp.BaseAttack <= 0 || sp.BaseDefense <= 0 || sp.BaseHealth <= 0:
			return nil, invalidf("species %d has non-positive base stats", sp.ID)
		}
		s.species[i] = sp
		s.localized[LocaleEN][i] = sp.Name
		for locale, name := range e.Names {
			if locale == LocaleEN || name == "" {
				continue
			}
			names, ok := s.localized[locale]
			if !ok {
				names = make([]string, len(entries))
				s.localized[locale] = names
			}
			names[i] = name
		}
	}

	// Rows without a localized name fall back to the canonical one.
	for _, names := range s.localized {
		for i := range names {
			if names[i] == "" {
				names[i] = s.species[i].Name
			}
		}
	}

	for i, m := range s.multipliers {
		if m <= 0 || math.IsNaN(m) || math.IsInf(m, 0) {
			return nil, invalidf("multiplier %d is not positive", i)
		}
		if i > 0 && m < s.multipliers[i-1] {
			return nil, invalidf("multiplier %d decreases", i)
		}
	}

	return s, nil
}

// LookupSpecies returns the species with the given 1-based id.
func (s *Store) LookupSpecies(id int) (model.Species, error) {
	if id < 1 || id > len(s.species) {
		return model.Species{}, &LookupError{What: "species", Value: strconv.Itoa(id)}
	}
	return s.species[id-1], nil
}

// LevelMultiplier returns the multiplier for a level given in half steps.
func (s *Store) LevelMultiplier(level float64) (float64, error) {
	idx, ok := s.levelIndex(level)
	if !ok {
		return 0, &LookupError{What: "level", Value: strconv.FormatFloat(level, 'g', -1, 64)}
	}
	return s.multipliers[idx], nil
}

func (s *Store) levelIndex(level float64) (int, bool) {
	if math.IsNaN(level) || math.IsInf(level, 0) || level < MinLevel {
		return 0, false
	}
	step := (level - MinLevel) * levelSteps
	if step != math.Trunc(step) {
		return 0, false
	}
	idx := int(step)
	if idx >= len(s.multipliers) {
		return 0, false
	}
	return idx, true
}

// Species returns the table in id order, with names in the requested locale.
// The returned slice is a copy.
func (s *Store) Species(locale string) ([]model.Species, error) {
	names, ok := s.localized[locale]
	if !ok {
		return nil, ErrUnknownLocale
	}
	out := make([]model.Species, len(s.species))
	copy(out, s.species)
	for i := range out {
		out[i].Name = names[i]
	}
	return out, nil
}

// Locales lists the locales the table carries names for.
func (s *Store) Locales() []string {
	out := make([]string, 0, len(s.localized))
	for l := range s.localized {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Levels returns every recognized level, ascending.
func (s *Store) Levels() []float64 {
	out := make([]float64, len(s.multipliers))
	for i := range out {
		out[i] = MinLevel + float64(i)/levelSteps
	}
	return out
}

// MaxLevel is the highest level the multiplier table covers.
func (s *Store) MaxLevel() float64 {
	return MinLevel + float64(len(s.multipliers)-1)/levelSteps
}

// Len returns the number of species in the table.
func (s *Store) Len() int { return len(s.species) }
