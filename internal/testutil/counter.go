package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/humam/internal/pipeline"
	"github.com/roach88/humam/internal/store"
)

// StageCounter counts computations and cache loads per stage.
//
// Thread-safety: all methods are safe for concurrent use.
type StageCounter struct {
	mu       sync.Mutex
	computed map[store.Stage]int
	loaded   map[store.Stage]int
}

// NewStageCounter returns a counter with all counts at zero.
func NewStageCounter() *StageCounter {
	return &StageCounter{
		computed: make(map[store.Stage]int),
		loaded:   make(map[store.Stage]int),
	}
}

// Hooks returns pipeline hooks that feed the counter.
func (c *StageCounter) Hooks() pipeline.Hooks {
	return pipeline.Hooks{
		OnCompute: func(k store.Key) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.computed[k.Stage()]++
		},
		OnLoad: func(k store.Key) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.loaded[k.Stage()]++
		},
	}
}

// Computed returns how often stage was computed.
func (c *StageCounter) Computed(stage store.Stage) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.computed[stage]
}

// Loaded returns how often stage was loaded from the store.
func (c *StageCounter) Loaded(stage store.Stage) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded[stage]
}

// Reset sets every count back to zero.
func (c *StageCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.computed)
	clear(c.loaded)
}

// SequenceIDs generates "run-0001", "run-0002", ... for deterministic
// registry records.
//
// Thread-safety: safe for concurrent use.
type SequenceIDs struct {
	mu sync.Mutex
	n  int
}

// Generate implements store.IDGenerator.
func (g *SequenceIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("run-%04d", g.n)
}
