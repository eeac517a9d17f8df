package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/ivscan/internal/domain/model"
	"github.com/okian/ivscan/internal/domain/resolve"
	"github.com/okian/ivscan/internal/domain/summary"
	"github.com/okian/ivscan/internal/domain/transcript"
	"github.com/okian/ivscan/pkg/logger"
	"github.com/okian/ivscan/pkg/metrics"
)

// Evaluate runs one raw log line through the pipeline. Lines that are not
// observations return transcript.ErrNoMatch. Undetected observations and
// observations with no consistent IVs are evaluations, not errors; check
// Outcome.
func (s *Service) Evaluate(ctx context.Context, line string) (model.Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return model.Evaluation{}, err
	}
	refs, candidates, engine, err := s.components()
	if err != nil {
		return model.Evaluation{}, err
	}

	text, ok := transcript.Extract(line)
	if !ok {
		return model.Evaluation{}, transcript.ErrNoMatch
	}

	obs, err := transcript.Parse(text)
	if err != nil {
		if errors.Is(err, transcript.ErrMalformedField) {
			s.stats.failed.Add(1)
			metrics.RecordParseError("malformed")
		} else {
			s.stats.skipped.Add(1)
			metrics.RecordParseError("no_match")
		}
		return model.Evaluation{}, err
	}
	s.stats.parsed.Add(1)
	metrics.RecordObservationParsed()

	if !obs.Detected() {
		s.stats.undetected.Add(1)
		s.stats.evaluated.Add(1)
		metrics.RecordUndetected()
		metrics.RecordEvaluation(string(model.OutcomeUndetected))
		return model.Evaluation{
			ID:          uuid.NewString(),
			Observation: obs,
			Outcome:     model.OutcomeUndetected,
		}, nil
	}

	sp, err := refs.LookupSpecies(obs.SpeciesID())
	if err != nil {
		s.stats.failed.Add(1)
		metrics.RecordLookupError("species")
		return model.Evaluation{}, err
	}

	if obs.SpeciesNameRaw != "" {
		if err := s.crossCheck(ctx, obs, sp, candidates); err != nil {
			s.stats.failed.Add(1)
			return model.Evaluation{}, err
		}
	}

	mult, err := refs.LevelMultiplier(obs.Level)
	if err != nil {
		s.stats.failed.Add(1)
		metrics.RecordLookupError("level")
		return model.Evaluation{}, err
	}

	start := time.Now()
	cands, hit := engine.Infer(obs, sp, mult)
	metrics.RecordInference(len(cands), float64(time.Since(start).Microseconds())/1000)
	if c := engine.Cache(); c != nil {
		if hit {
			metrics.RecordCacheHit()
		} else {
			metrics.RecordCacheMiss()
		}
		metrics.UpdateCacheSize(c.Len())
	}

	ev := model.Evaluation{
		ID:          uuid.NewString(),
		Observation: obs,
		Species:     sp,
		Multiplier:  mult,
		Candidates:  cands,
		Outcome:     model.OutcomeOK,
	}

	ev.Summary, err = summary.Summarize(cands)
	if errors.Is(err, summary.ErrEmptyResult) {
		ev.Outcome = model.OutcomeNoConsistentIVs
		s.stats.empty.Add(1)
	}

	s.stats.evaluated.Add(1)
	metrics.RecordEvaluation(string(ev.Outcome))
	return ev, nil
}

// crossCheck compares the logged name with the species picked by id.
// The id wins on a mismatch; a name beyond the distance limit is rejected.
func (s *Service) crossCheck(ctx context.Context, obs model.Observation, sp model.Species, candidates []model.Species) error { //nolint:gocritic // hugeParam
	m, err := resolve.Resolve(obs.SpeciesNameRaw, candidates)
	if err != nil {
		return err
	}
	metrics.RecordResolveDistance(m.Distance)

	if s.maxResolveDistance > 0 && m.Distance > s.maxResolveDistance {
		s.logger.Warn(ctx, "species name rejected",
			logger.String("name", obs.SpeciesNameRaw),
			logger.String("closest", m.Entry.Name),
			logger.Int("distance", m.Distance),
		)
		return fmt.Errorf("%w: %q is %d edits from %q", ErrTooDistant, obs.SpeciesNameRaw, m.Distance, m.Entry.Name)
	}

	if m.Entry.ID != sp.ID {
		metrics.RecordResolveMismatch()
		s.logger.Warn(ctx, "species name does not match id",
			logger.Int("species_id", sp.ID),
			logger.String("species", sp.Name),
			logger.String("name", obs.SpeciesNameRaw),
			logger.String("resolved", m.Entry.Name),
		)
	}
	return nil
}

// Resolve returns the species whose name in the service locale is closest to name.
func (s *Service) Resolve(ctx context.Context, name string) (resolve.Match, error) {
	if err := ctx.Err(); err != nil {
		return resolve.Match{}, err
	}
	_, candidates, _, err := s.components()
	if err != nil {
		return resolve.Match{}, err
	}

	m, err := resolve.Resolve(name, candidates)
	if err != nil {
		return resolve.Match{}, err
	}
	metrics.RecordResolveDistance(m.Distance)
	return m, nil
}

// DetailReport is what a detail-screen transcript tells about a creature.
type DetailReport struct {
	Detail           transcript.Detail
	Match            *resolve.Match // nil when the blob has no candy label
	BodyMassIndex    float64
	HasBodyMassIndex bool
}

// Inspect reads a detail-screen OCR blob, resolves the candy name and
// derives the body mass index when measurements are present.
func (s *Service) Inspect(ctx context.Context, blob string) (DetailReport, error) {
	if err := ctx.Err(); err != nil {
		return DetailReport{}, err
	}

	r := DetailReport{Detail: transcript.ParseDetail(blob)}

	if r.Detail.CandyName != "" {
		m, err := s.Resolve(ctx, r.Detail.CandyName)
		if err != nil {
			return DetailReport{}, err
		}
		r.Match = &m
	}

	var obs model.Observation
	r.Detail.Apply(&obs)
	r.BodyMassIndex, r.HasBodyMassIndex = summary.BodyMassIndex(obs)

	return r, nil
}
