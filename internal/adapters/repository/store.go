// Package repository holds the ranked report of evaluations produced by a run.
package repository

import (
	"context"

	"github.com/okian/ivscan/internal/domain/model"
)

// Entry is one ranked evaluation.
type Entry struct {
	Rank       int
	Seq        int
	Evaluation model.Evaluation
}

// Store provides read/write access to the report.
//
// Ordering: Summary.MaxIV desc, then Summary.MinIV desc, then Seq asc.
// Evaluations with equal summaries share a rank.
type Store interface {
	// Put stores an evaluation under its ID. Putting the same ID again replaces it.
	// It returns false when a bounded store keeps its current entries instead.
	Put(ctx context.Context, seq int, ev model.Evaluation) (bool, error)

	// Get returns the ranked entry for an evaluation ID.
	// Returns ErrNotFound if the ID is unknown.
	Get(ctx context.Context, id string) (Entry, error)

	// TopN returns the best n entries in rank order.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// Count returns the number of stored evaluations.
	Count(ctx context.Context) int
}
