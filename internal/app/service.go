// Package service wires the IV evaluation pipeline: reference tables, the
// transcript parser, name resolution, inference and the ranked report.
package service

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"

	eventqueue "github.com/okian/ivscan/internal/adapters/mq/queue"
	workerpool "github.com/okian/ivscan/internal/adapters/mq/worker"
	repository "github.com/okian/ivscan/internal/adapters/repository"
	"github.com/okian/ivscan/internal/domain/dedupe"
	"github.com/okian/ivscan/internal/domain/inference"
	"github.com/okian/ivscan/internal/domain/model"
	"github.com/okian/ivscan/internal/domain/refdata"
	"github.com/okian/ivscan/internal/domain/transcript"
	"github.com/okian/ivscan/internal/domain/types"
	"github.com/okian/ivscan/pkg/logger"
	"github.com/okian/ivscan/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Default service configuration constants.
const (
	defaultQueueSize  = 1024
	defaultCacheSize  = 4096
	defaultDedupeSize = 1024
	initialScanBuffer = 64 * 1024
	maxScanLine       = 1024 * 1024
)

// Stats counts what the service has seen since it started.
type Stats struct {
	Lines       int64 // lines read by Run
	Skipped     int64 // lines that are not observations
	Duplicates  int64 // repeated observations dropped by Run
	Parsed      int64 // observations parsed
	Failed      int64 // malformed lines, lookup failures and rejected names
	Evaluated   int64 // evaluations produced, whatever the outcome
	Undetected  int64 // evaluations with a field the reader could not detect
	Empty       int64 // evaluations with no consistent IVs
	Stored      int   // evaluations held in the report
	CacheHits   int64
	CacheMisses int64
}

type counters struct {
	lines, skipped, duplicates, parsed, failed atomic.Int64
	evaluated, undetected, empty               atomic.Int64
}

// Service evaluates transcript lines and keeps a ranked report.
type Service struct {
	mu sync.RWMutex

	// Core components
	refs       *refdata.Store
	candidates []model.Species
	engine     *inference.Engine
	report     repository.Store

	// Configuration
	locale             string
	workerCount        int
	queueSize          int
	cacheSize          int
	dedupeSize         int
	reportCapacity     int
	maxResolveDistance int

	// State
	started bool
	stats   counters

	// Logging
	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		locale:      refdata.LocaleEN,
		workerCount: runtime.NumCPU(),
		queueSize:   defaultQueueSize,
		cacheSize:   defaultCacheSize,
		dedupeSize:  defaultDedupeSize,
		logger:      nil, // replaced when the service starts
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start loads the reference tables if none were given and builds the
// pipeline components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	if s.refs == nil {
		refs, err := refdata.Default()
		if err != nil {
			return fmt.Errorf("load reference data: %w", err)
		}
		s.refs = refs
	}

	candidates, err := s.refs.Species(s.locale)
	if err != nil {
		return fmt.Errorf("name candidates: %w", err)
	}
	s.candidates = candidates

	var cache *inference.Cache
	if s.cacheSize > 0 {
		cache = inference.NewCache(inference.WithMaxSize(s.cacheSize))
	}
	s.engine = inference.NewEngine(cache)
	s.report = repository.NewTreapStore(repository.WithCapacity(s.reportCapacity))

	s.started = true
	s.logger.Info(ctx, "ivscan service started",
		logger.Int("species", s.refs.Len()),
		logger.String("locale", s.locale),
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("cacheSize", s.cacheSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)

	return nil
}

// Stop marks the service stopped. The report stays readable.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false
	s.logger.Info(context.Background(), "ivscan service stopped")
}

// components returns the pipeline pieces or ErrNotStarted.
func (s *Service) components() (*refdata.Store, []model.Species, *inference.Engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, nil, ErrNotStarted
	}
	return s.refs, s.candidates, s.engine, nil
}

// Run reads lines from r, evaluates every observation on the worker pool and
// stores the results in the report. It returns when r is exhausted and every
// queued line has been evaluated, or with ctx.Err() once ctx is cancelled.
// Reports accumulate across runs; repeated observations are dropped per run.
func (s *Service) Run(ctx context.Context, r io.Reader) error {
	_, err := s.RunFrom(ctx, r, 0)
	return err
}

// RunFrom is Run with line numbers starting after offset. It returns the
// number of lines read, so consecutive inputs can be numbered as one stream.
func (s *Service) RunFrom(ctx context.Context, r io.Reader, offset int) (int, error) {
	if _, _, _, err := s.components(); err != nil {
		return 0, err
	}

	q := eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	pool := workerpool.NewPool(s.workerCount, q, s, s,
		workerpool.WithLogger(s.logger.Named("worker")),
		workerpool.WithErrorHandler(s.jobFailed),
	)

	var deduper dedupe.Deduper
	if s.dedupeSize > 0 {
		deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	}

	var read int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pool.Run(gctx)
	})
	g.Go(func() error {
		defer func() { _ = q.Close() }()
		var err error
		read, err = s.scan(gctx, r, offset, q, deduper)
		return err
	})

	err := g.Wait()
	st := s.Stats(ctx)
	s.logger.Info(ctx, "run finished",
		logger.Int("lines", int(st.Lines)),
		logger.Int("evaluated", int(st.Evaluated)),
		logger.Int("failed", int(st.Failed)),
		logger.Int("duplicates", int(st.Duplicates)),
		logger.Int("stored", st.Stored),
		logger.Bool("cancelled", ctx.Err() != nil),
	)
	return read, err
}

// scan feeds observation lines to q, numbering them after offset. Lines
// without the marker never reach a worker.
func (s *Service) scan(ctx context.Context, r io.Reader, offset int, q eventqueue.Queue, deduper dedupe.Deduper) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, initialScanBuffer), maxScanLine)

	seq := offset
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return seq - offset, err
		}
		line := sc.Text()
		seq++
		s.stats.lines.Add(1)
		metrics.RecordLineScanned()

		text, ok := transcript.Extract(line)
		if !ok {
			s.stats.skipped.Add(1)
			metrics.RecordParseError("no_match")
			continue
		}

		key := ""
		if deduper != nil {
			if obs, err := transcript.Parse(text); err == nil {
				key = dedupe.Fingerprint(&obs)
				if deduper.SeenAndRecord(ctx, key) {
					s.stats.duplicates.Add(1)
					continue
				}
			}
		}

		if err := q.Enqueue(ctx, eventqueue.Job{Seq: seq, Line: line}); err != nil {
			if key != "" {
				deduper.Unrecord(ctx, key)
			}
			return seq - offset, err
		}
	}
	if err := sc.Err(); err != nil {
		return seq - offset, fmt.Errorf("read transcript: %w", err)
	}
	return seq - offset, nil
}

// Record stores a finished evaluation in the report.
func (s *Service) Record(ctx context.Context, seq int, ev model.Evaluation) error { //nolint:gocritic // hugeParam: evaluations are passed by value
	s.mu.RLock()
	report := s.report
	s.mu.RUnlock()
	if report == nil {
		return ErrNotStarted
	}
	if _, err := report.Put(ctx, seq, ev); err != nil {
		return err
	}
	return nil
}

// jobFailed logs lines that are observations but could not be evaluated.
func (s *Service) jobFailed(ctx context.Context, j eventqueue.Job, err error) {
	if workerpool.Reason(err) == "no_match" {
		return
	}
	s.logger.Warn(ctx, "line not evaluated",
		logger.Int("line", j.Seq),
		logger.String("reason", workerpool.Reason(err)),
		logger.Error(err),
	)
}

// TopN returns the best n report rows.
func (s *Service) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	s.mu.RLock()
	report := s.report
	s.mu.RUnlock()
	if report == nil {
		return nil, ErrNotStarted
	}

	entries, err := report.TopN(ctx, n)
	if err != nil {
		return nil, err
	}

	rows := make([]types.Entry, len(entries))
	for i, e := range entries {
		rows[i] = toRow(e)
	}
	return rows, nil
}

// Rank returns the report row for an evaluation id.
func (s *Service) Rank(ctx context.Context, id string) (types.Entry, error) {
	s.mu.RLock()
	report := s.report
	s.mu.RUnlock()
	if report == nil {
		return types.Entry{}, ErrNotStarted
	}

	e, err := report.Get(ctx, id)
	if err != nil {
		return types.Entry{}, err
	}
	return toRow(e), nil
}

func toRow(e repository.Entry) types.Entry {
	ev := e.Evaluation
	return types.Entry{
		Rank:         e.Rank,
		Seq:          e.Seq,
		EvaluationID: ev.ID,
		SpeciesID:    ev.Species.ID,
		Species:      ev.Species.Name,
		CP:           ev.Observation.CombatPower,
		HP:           ev.Observation.HealthPoints,
		Level:        ev.Observation.Level,
		Candidates:   len(ev.Candidates),
		MinIV:        ev.Summary.MinIV,
		MaxIV:        ev.Summary.MaxIV,
	}
}

// Stats returns the service counters and refreshes the related gauges.
func (s *Service) Stats(ctx context.Context) Stats {
	st := Stats{
		Lines:      s.stats.lines.Load(),
		Skipped:    s.stats.skipped.Load(),
		Duplicates: s.stats.duplicates.Load(),
		Parsed:     s.stats.parsed.Load(),
		Failed:     s.stats.failed.Load(),
		Evaluated:  s.stats.evaluated.Load(),
		Undetected: s.stats.undetected.Load(),
		Empty:      s.stats.empty.Load(),
	}

	s.mu.RLock()
	report, engine := s.report, s.engine
	s.mu.RUnlock()

	if report != nil {
		st.Stored = report.Count(ctx)
		metrics.UpdateStoredEvaluations(st.Stored)
	}
	if engine != nil {
		if c := engine.Cache(); c != nil {
			st.CacheHits, st.CacheMisses = c.Hits(), c.Misses()
			metrics.UpdateCacheSize(c.Len())
		}
	}
	return st
}
