package service

import (
	"github.com/okian/ivscan/internal/domain/refdata"
	"github.com/okian/ivscan/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithReferenceData sets the reference tables. The embedded tables are used otherwise.
func WithReferenceData(refs *refdata.Store) Option {
	return func(s *Service) {
		if refs != nil {
			s.refs = refs
		}
	}
}

// WithLocale selects the species names used for name resolution.
func WithLocale(locale string) Option {
	return func(s *Service) {
		if locale != "" {
			s.locale = locale
		}
	}
}

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithCacheSize bounds the inference cache. Zero disables it.
func WithCacheSize(size int) Option {
	return func(s *Service) {
		if size >= 0 {
			s.cacheSize = size
		}
	}
}

// WithDedupeSize bounds how many fingerprints a run remembers. Zero disables deduplication.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size >= 0 {
			s.dedupeSize = size
		}
	}
}

// WithReportCapacity keeps only the best n evaluations. Zero keeps all.
func WithReportCapacity(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.reportCapacity = n
		}
	}
}

// WithMaxResolveDistance rejects names farther than d edits from every
// species. Zero disables the check.
func WithMaxResolveDistance(d int) Option {
	return func(s *Service) {
		if d >= 0 {
			s.maxResolveDistance = d
		}
	}
}
