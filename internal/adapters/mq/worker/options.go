package worker

import (
	"context"

	"github.com/okian/ivscan/internal/adapters/mq/queue"
	"github.com/okian/ivscan/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// ErrorHandler receives jobs whose evaluation failed. Failed jobs never stop a run.
type ErrorHandler func(ctx context.Context, j queue.Job, err error)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithErrorHandler sets the callback for failed evaluations.
func WithErrorHandler(h ErrorHandler) Option {
	return func(w *InMemoryWorker) {
		if h != nil {
			w.onError = h
		}
	}
}
