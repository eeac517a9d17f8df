package inference

import "github.com/okian/ivscan/internal/domain/model"

// Engine runs Infer, optionally memoized by a Cache.
type Engine struct {
	cache *Cache
}

// NewEngine returns an engine; a nil cache disables memoization.
func NewEngine(cache *Cache) *Engine {
	return &Engine{cache: cache}
}

// Infer returns the candidates for obs and whether they came from the cache.
func (e *Engine) Infer(obs model.Observation, sp model.Species, multiplier float64) ([]model.Candidate, bool) {
	if e.cache == nil {
		return Infer(obs, sp, multiplier), false
	}
	key := KeyOf(obs, sp)
	if cands, ok := e.cache.Get(key); ok {
		return cands, true
	}
	cands := Infer(obs, sp, multiplier)
	e.cache.Put(key, cands)
	return cands, false
}

// Cache returns the engine's cache, or nil.
func (e *Engine) Cache() *Cache { return e.cache }
