package repository

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/okian/ivscan/internal/domain/model"
	"github.com/okian/ivscan/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// We implement a BST comparator where "less" means ranks earlier, so an
// in-order traversal produces the report from best to worst. Subtree sizes
// give a node's position without walking the whole tree.

// rankKey orders evaluations in the report.
type rankKey struct {
	ok    bool
	maxIV float64
	minIV float64
	seq   int
	id    string
}

func keyOf(seq int, ev *model.Evaluation) rankKey {
	return rankKey{ok: ev.Outcome == model.OutcomeOK, maxIV: ev.Summary.MaxIV, minIV: ev.Summary.MinIV, seq: seq, id: ev.ID}
}

// less returns true if a should appear before b in the report.
// Evaluations without a summary come after every ok one.
func less(a, b rankKey) bool {
	if a.ok != b.ok {
		return a.ok
	}
	if a.maxIV != b.maxIV {
		return a.maxIV > b.maxIV
	}
	if a.minIV != b.minIV {
		return a.minIV > b.minIV
	}
	if a.seq != b.seq {
		return a.seq < b.seq
	}
	return a.id < b.id
}

// sameSummary reports whether two keys share a rank.
func sameSummary(a, b rankKey) bool {
	return a.ok == b.ok && a.maxIV == b.maxIV && a.minIV == b.minIV
}

// record stores the key and evaluation behind an ID.
type record struct {
	key rankKey
	ev  model.Evaluation
}

// treap node
type node struct {
	key   rankKey
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n *node, k rankKey, prio uint64) *node {
	if n == nil {
		return &node{key: k, prio: prio, size: 1}
	}
	if less(k, n.key) {
		n.left = insert(n.left, k, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, k, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, k rankKey) *node {
	if n == nil {
		return nil
	}
	if k == n.key {
		// Merge children by rotating highest priority up until leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, k)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, k)
		}
	} else if less(k, n.key) {
		n.left = deleteNode(n.left, k)
	} else {
		n.right = deleteNode(n.right, k)
	}
	fix(n)
	return n
}

// position returns the 0-based index of k in rank order, or -1.
func position(n *node, k rankKey) int {
	before := 0
	for n != nil {
		switch {
		case k == n.key:
			return before + nsize(n.left)
		case less(k, n.key):
			n = n.left
		default:
			before += nsize(n.left) + 1
			n = n.right
		}
	}
	return -1
}

// last returns the lowest-ranked key.
func last(n *node) (rankKey, bool) {
	if n == nil {
		return rankKey{}, false
	}
	for n.right != nil {
		n = n.right
	}
	return n.key, true
}

// collectTopN appends up to limit entries in rank order.
func collectTopN(n *node, limit int, records map[string]record, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}

	collectTopN(n.left, limit, records, out)

	if len(*out) < limit {
		if rec, exists := records[n.key.id]; exists {
			*out = append(*out, Entry{Seq: n.key.seq, Evaluation: rec.ev})
		}
	}

	if len(*out) < limit {
		collectTopN(n.right, limit, records, out)
	}
}

// TreapStore keeps evaluations ranked by IV summary.
type TreapStore struct {
	mu       sync.RWMutex
	root     *node
	byID     map[string]record
	capacity int // 0 means unbounded
}

// NewTreapStore constructs a treap store with configuration options.
func NewTreapStore(opts ...Option) *TreapStore {
	s := &TreapStore{
		byID: make(map[string]record),
	}

	for _, opt := range opts {
		opt(s)
	}

	metrics.UpdateStoredEvaluations(0)

	return s
}

// Put implements Store.Put with O(log n) expected time.
func (s *TreapStore) Put(_ context.Context, seq int, ev model.Evaluation) (bool, error) { //nolint:gocritic // hugeParam: evaluations are stored by value
	if ev.ID == "" {
		return false, ErrMissingID
	}
	k := keyOf(seq, &ev)

	s.mu.Lock()
	if old, ok := s.byID[ev.ID]; ok {
		s.root = deleteNode(s.root, old.key)
		delete(s.byID, ev.ID)
	} else if s.capacity > 0 && len(s.byID) >= s.capacity {
		worst, _ := last(s.root)
		if !less(k, worst) {
			s.mu.Unlock()
			return false, nil
		}
		s.root = deleteNode(s.root, worst)
		delete(s.byID, worst.id)
	}
	s.byID[ev.ID] = record{key: k, ev: ev}
	s.root = insert(s.root, k, rand.Uint64()) //nolint:gosec // treap priorities need no crypto randomness
	count := len(s.byID)
	s.mu.Unlock()

	metrics.UpdateStoredEvaluations(count)
	return true, nil
}

// Get returns the entry for id with its rank. It costs O(rank).
func (s *TreapStore) Get(_ context.Context, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return Entry{}, ErrNotFound
	}

	pos := position(s.root, rec.key)
	if pos < 0 {
		return Entry{}, ErrNotFound
	}

	prefix := make([]Entry, 0, pos+1)
	collectTopN(s.root, pos+1, s.byID, &prefix)
	assignRanksWithTies(prefix)
	return prefix[pos], nil
}

// TopN returns the top n entries in rank order.
func (s *TreapStore) TopN(_ context.Context, n int) ([]Entry, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, min(n, len(s.byID)))
	collectTopN(s.root, n, s.byID, &out)

	assignRanksWithTies(out)
	return out, nil
}

// Count returns the number of stored evaluations.
func (s *TreapStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// assignRanksWithTies assigns ranks with proper tie handling.
// Evaluations with the same summary get the same rank, and the next rank
// follows consecutively.
func assignRanksWithTies(entries []Entry) {
	if len(entries) == 0 {
		return
	}

	currentRank := 1
	entries[0].Rank = currentRank
	for i := 1; i < len(entries); i++ {
		prev := keyOf(entries[i-1].Seq, &entries[i-1].Evaluation)
		cur := keyOf(entries[i].Seq, &entries[i].Evaluation)
		if !sameSummary(prev, cur) {
			currentRank++
		}
		entries[i].Rank = currentRank
	}
}
