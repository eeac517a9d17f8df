// Package transcript turns upstream log lines and OCR text into observations.
//
// Parsing is pure: no I/O, no state between calls.
package transcript

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/okian/ivscan/internal/domain/model"
)

// Marker prefixes every observation line in the upstream log.
const Marker = "Received values:"

// Field labels, used in ParseError.Field.
const (
	FieldID          = "id"
	FieldCP          = "cp"
	FieldHP          = "max_hp"
	FieldDust        = "dust_cost"
	FieldLevel       = "level"
	FieldGender      = "gender"
	fieldGroupsTotal = 9
)

var (
	observationRe = regexp.MustCompile(`^Received values: Id: ([^,\n]*), CP: ([^,\n]*), Max HP: ([^,\n]*), Dust cost: ([^,\n]*), Level: ([^,\n]*), FastMove ([^,\n]*), SpecialMove ([^,\n]*), Gender ([^,\n]*)$`)
	idRe          = regexp.MustCompile(`^(-?\d+) \(([^)]*)\)$`)
)

// Extract returns the part of a raw log line starting at Marker.
// Lines without the marker are not observations.
func Extract(line string) (string, bool) {
	idx := strings.Index(line, Marker)
	if idx < 0 {
		return "", false
	}
	return line[idx:], true
}

// Parse reads one observation line. Lines that do not follow the grammar
// yield ErrNoMatch; lines that do but carry unreadable values yield
// ErrMalformedField. Partial records are never returned.
func Parse(text string) (model.Observation, error) {
	line := strings.TrimRight(text, "\r\n")
	m := observationRe.FindStringSubmatch(line)
	if len(m) != fieldGroupsTotal {
		return model.Observation{}, &ParseError{Kind: ErrNoMatch}
	}
	idString, cp, hp, dust, level, fast, special, gender := m[1], m[2], m[3], m[4], m[5], m[6], m[7], m[8]

	idm := idRe.FindStringSubmatch(idString)
	if idm == nil {
		return model.Observation{}, malformed(FieldID, idString, nil)
	}

	obs := model.Observation{
		SpeciesNameRaw:  idm[2],
		FastMoveName:    fast,
		SpecialMoveName: special,
	}

	var err error
	if obs.SpeciesIndex, err = parseInt(FieldID, idm[1]); err != nil {
		return model.Observation{}, err
	}
	if obs.CombatPower, err = parseInt(FieldCP, cp); err != nil {
		return model.Observation{}, err
	}
	if obs.HealthPoints, err = parseInt(FieldHP, hp); err != nil {
		return model.Observation{}, err
	}
	if obs.DustCost, err = parseInt(FieldDust, dust); err != nil {
		return model.Observation{}, err
	}
	if obs.Level, err = parseLevel(level); err != nil {
		return model.Observation{}, err
	}
	if obs.GenderCode, err = parseInt(FieldGender, gender); err != nil {
		return model.Observation{}, err
	}
	return obs, nil
}

func parseInt(field, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, malformed(field, v, unwrapNum(err))
	}
	return n, nil
}

func parseLevel(v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, malformed(FieldLevel, v, unwrapNum(err))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, malformed(FieldLevel, v, nil)
	}
	return f, nil
}

// unwrapNum drops the strconv.NumError wrapper, which repeats the value.
func unwrapNum(err error) error {
	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		return numErr.Err
	}
	return err
}
