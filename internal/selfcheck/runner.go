package selfcheck

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/ivscan/internal/domain/model"
	"github.com/okian/ivscan/internal/domain/refdata"
	"github.com/okian/ivscan/pkg/logger"
)

// Evaluator turns one transcript line into an evaluation.
type Evaluator interface {
	Evaluate(ctx context.Context, line string) (model.Evaluation, error)
}

// Run generates samples and evaluates them concurrently. It returns
// ErrMissed when any hidden triple is not recovered; the misses are in Stats.
func Run(ctx context.Context, cfg Config, refs *refdata.Store, ev Evaluator) (Stats, error) { //nolint:gocritic // hugeParam
	start := time.Now()
	log := logger.Get().Named("selfcheck")

	if cfg.Locale == "" {
		cfg.Locale = refdata.LocaleEN
	}
	if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU()
	}

	log.Info(ctx, "starting self-check",
		logger.Int("samples", cfg.Count),
		logger.Int("workers", cfg.Workers),
		logger.String("locale", cfg.Locale),
		logger.Any("seed", cfg.Seed),
	)

	samples, err := Generate(refs, cfg.Locale, cfg.Count, cfg.Seed)
	if err != nil {
		return Stats{}, fmt.Errorf("generate samples: %w", err)
	}
	stats := Stats{Generated: len(samples)}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, s := range samples {
		g.Go(func() error {
			res, err := ev.Evaluate(gctx, s.Line)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}

			mu.Lock()
			defer mu.Unlock()
			stats.Evaluated++
			switch {
			case err != nil:
				stats.Misses = append(stats.Misses, Miss{Sample: s, Err: err})
			case res.Outcome != model.OutcomeOK || !slices.Contains(res.Candidates, s.Hidden):
				stats.Misses = append(stats.Misses, Miss{Sample: s, Outcome: res.Outcome})
			default:
				stats.Recovered++
			}
			stats.Candidates += len(res.Candidates)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	slices.SortFunc(stats.Misses, func(a, b Miss) int { return a.Sample.Seq - b.Sample.Seq })
	stats.Duration = time.Since(start)

	for _, m := range stats.Misses {
		log.Warn(ctx, "hidden IVs not recovered",
			logger.Int("seq", m.Sample.Seq),
			logger.String("line", m.Sample.Line),
			logger.String("outcome", string(m.Outcome)),
			logger.Any("hidden", m.Sample.Hidden),
			logger.Any("error", m.Err),
		)
	}
	log.Info(ctx, "self-check finished",
		logger.Int("evaluated", stats.Evaluated),
		logger.Int("recovered", stats.Recovered),
		logger.Int("missed", len(stats.Misses)),
		logger.Int("candidates", stats.Candidates),
		logger.Duration("duration", stats.Duration),
	)

	if len(stats.Misses) > 0 {
		return stats, fmt.Errorf("%w: %d of %d samples", ErrMissed, len(stats.Misses), stats.Evaluated)
	}
	return stats, nil
}
