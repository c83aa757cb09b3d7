package store

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/humam/internal/fault"
	"github.com/roach88/humam/internal/param"
)

// Memory is an in-process Store for tests.
type Memory struct {
	mu        sync.Mutex
	artifacts map[Key]Files
	locks     map[Key]chan struct{}
	changed   chan struct{} // closed and replaced on every write
	writes    int
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		artifacts: make(map[Key]Files),
		locks:     make(map[Key]chan struct{}),
		changed:   make(chan struct{}),
	}
}

// Path implements Store.
func (m *Memory) Path(key Key) string {
	return "mem://" + key.String()
}

// Exists implements Store.
func (m *Memory) Exists(_ context.Context, key Key) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.artifacts[key]
	return ok, nil
}

// Write implements Store.
func (m *Memory) Write(ctx context.Context, key Key, files Files) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	if err := files.Validate(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.artifacts[key]; ok {
		return m.Path(key), nil
	}
	if parent := key.Parent(); parent != (Key{}) {
		if _, ok := m.artifacts[parent]; !ok {
			return "", fault.New(fault.NotFound, "store.Write", "parent artifact of %s is not stored", key)
		}
	}
	stored := make(Files, len(files))
	for name, data := range files {
		stored[name] = slices.Clone(data)
	}
	m.artifacts[key] = stored
	m.writes++
	close(m.changed)
	m.changed = make(chan struct{})
	return m.Path(key), nil
}

// Read implements Store.
func (m *Memory) Read(_ context.Context, key Key) (Files, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	files, ok := m.artifacts[key]
	if !ok {
		return nil, fault.New(fault.NotFound, "store.Read", "no artifact %s", key)
	}
	out := make(Files, len(files))
	for name, data := range files {
		out[name] = slices.Clone(data)
	}
	return out, nil
}

// Lock implements Store.
func (m *Memory) Lock(ctx context.Context, key Key) (func() error, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	for {
		m.mu.Lock()
		if _, ok := m.artifacts[key]; ok {
			m.mu.Unlock()
			return func() error { return nil }, nil
		}
		held, busy := m.locks[key]
		changed := m.changed
		if !busy {
			done := make(chan struct{})
			m.locks[key] = done
			m.mu.Unlock()
			var once sync.Once
			return func() error {
				once.Do(func() {
					m.mu.Lock()
					delete(m.locks, key)
					m.mu.Unlock()
					close(done)
				})
				return nil
			}, nil
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-held:
		case <-changed:
		}
	}
}

// Find implements Store.
func (m *Memory) Find(_ context.Context, stage Stage, hash param.Identifier) (Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range slices.SortedFunc(maps.Keys(m.artifacts), compareKeys) {
		if k.Stage() == stage && k.Hash() == hash {
			return k, nil
		}
	}
	return Key{}, fault.New(fault.NotFound, "store.Find", "no %s artifact %s", stage, hash.Short())
}

// Writes returns how many artifacts were stored.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Remove deletes an artifact and everything below it.
func (m *Memory) Remove(key Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.artifacts {
		if isUnder(k, key) {
			delete(m.artifacts, k)
		}
	}
}

func isUnder(k, root Key) bool {
	for k != (Key{}) {
		if k == root {
			return true
		}
		k = k.Parent()
	}
	return false
}

func compareKeys(a, b Key) int {
	return slices.Compare(a.Segments(), b.Segments())
}
