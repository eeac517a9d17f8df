// Package dedupe suppresses repeated observations in a transcript.
//
// A capture tool logs the same reading again every time it is re-triggered
// on an unchanged screen; those repeats are recognized by fingerprint.
package dedupe

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/okian/ivscan/internal/domain/model"
)

// Deduper records seen keys so each observation is evaluated once.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets a key so a later occurrence is processed again.
	// Used when a recorded observation could not be enqueued.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// Fingerprint identifies an observation by every parsed field.
func Fingerprint(obs *model.Observation) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(obs.SpeciesIndex))
	b.WriteByte('|')
	b.WriteString(strings.ToLower(strings.TrimSpace(obs.SpeciesNameRaw)))
	for _, n := range []int{obs.CombatPower, obs.HealthPoints, obs.DustCost, obs.GenderCode} {
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(n))
	}
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(obs.Level, 'g', -1, 64))
	b.WriteByte('|')
	b.WriteString(obs.FastMoveName)
	b.WriteByte('|')
	b.WriteString(obs.SpecialMoveName)
	return b.String()
}

// inMemoryDeduper implements Deduper with a map and, in bounded mode, a
// ring of keys in insertion order.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]int // key -> ring slot, -1 in unbounded mode
	ring    []string       // bounded mode only; "" marks a free slot
	next    int            // next ring slot to write
	maxSize int            // 0 or negative = unbounded
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 4096,
	}

	for _, opt := range opts {
		opt(d)
	}

	d.seen = make(map[string]int)
	if d.maxSize > 0 {
		d.ring = make([]string, d.maxSize)
	}

	return d
}

// SeenAndRecord atomically checks if key was seen and records it if not.
// The empty key is never recorded.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	if key == "" {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[key]; exists {
		return true
	}

	if d.maxSize <= 0 {
		d.seen[key] = -1
		d.size.Add(1)
		return false
	}

	// the slot about to be reused holds the oldest key
	if old := d.ring[d.next]; old != "" {
		delete(d.seen, old)
		d.size.Add(-1)
	}
	d.ring[d.next] = key
	d.seen[key] = d.next
	d.next = (d.next + 1) % d.maxSize
	d.size.Add(1)
	return false
}

// Unrecord removes a key from the seen set.
func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	slot, exists := d.seen[key]
	if !exists {
		return
	}
	delete(d.seen, key)
	if slot >= 0 {
		d.ring[slot] = ""
	}
	d.size.Add(-1)
}

// Size returns the current number of remembered keys.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
