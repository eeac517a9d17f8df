package transcript

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/okian/ivscan/internal/domain/model"
)

var (
	weightSizeRe = regexp.MustCompile(`(?i)([\d.]+)kg\s*([\d.]+)m`)
	candyRe      = regexp.MustCompile(`(?i)bonbons([^\n]+)`)
	nonDigitRe   = regexp.MustCompile(`[^\d]`)

	// OCR confuses these glyphs with digits in the CP headline.
	headlineReplacer = strings.NewReplacer(
		"o", "0", "O", "0",
		"l", "1", "L", "1",
		"ô", "6", "Ô", "6",
	)
)

// Detail is what a detail-screen OCR transcript yields. Every part is optional.
type Detail struct {
	CP           int                 // model.Unknown when the headline has no digits
	CandyName    string              // text following the candy label, trimmed
	Measurements *model.Measurements // nil when no "<w>kg <s>m" pair was found
}

// ParseDetail searches a multi-line OCR blob for the CP headline, the candy
// label and the weight/size pair. Searches are independent; a missing part
// is left unset and is not an error.
func ParseDetail(blob string) Detail {
	d := Detail{CP: model.Unknown}

	first, _, _ := strings.Cut(blob, "\n")
	if digits := nonDigitRe.ReplaceAllString(headlineReplacer.Replace(first), ""); digits != "" {
		if cp, err := strconv.Atoi(digits); err == nil {
			d.CP = cp
		}
	}

	if m := candyRe.FindStringSubmatch(blob); m != nil {
		d.CandyName = strings.TrimSpace(m[1])
	}

	if m := weightSizeRe.FindStringSubmatch(blob); m != nil {
		w, werr := strconv.ParseFloat(m[1], 64)
		s, serr := strconv.ParseFloat(m[2], 64)
		if werr == nil && serr == nil {
			d.Measurements = &model.Measurements{Weight: w, Size: s}
		}
	}
	return d
}

// Apply copies the measurements onto an observation, leaving other fields alone.
func (d Detail) Apply(obs *model.Observation) {
	if d.Measurements != nil {
		m := *d.Measurements
		obs.Measurements = &m
	}
}
