// Package resolve maps noisy species names to reference table entries.
package resolve

import (
	"errors"
	"strings"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/okian/ivscan/internal/domain/model"
)

// ErrNoCandidates means the reference table handed to Resolve was empty.
var ErrNoCandidates = errors.New("no candidates to resolve against")

// Match is the closest table entry and its edit distance from the input.
type Match struct {
	Entry    model.Species
	Distance int
}

// Resolve returns the candidate whose name has the smallest Levenshtein
// distance to the lower-cased, trimmed raw name. On ties the candidate that
// comes first in candidates wins, so results depend on table order.
func Resolve(rawName string, candidates []model.Species) (Match, error) {
	if len(candidates) == 0 {
		return Match{}, ErrNoCandidates
	}

	// A Caser keeps state, so each call gets its own.
	lower := cases.Lower(language.Und)
	needle := lower.String(strings.TrimSpace(rawName))

	best := Match{Entry: candidates[0], Distance: levenshtein.ComputeDistance(needle, lower.String(candidates[0].Name))}
	for _, c := range candidates[1:] {
		if best.Distance == 0 {
			break
		}
		d := levenshtein.ComputeDistance(needle, lower.String(c.Name))
		if d < best.Distance {
			best = Match{Entry: c, Distance: d}
		}
	}
	return best, nil
}
