// Package pipeline runs one stage through the caching protocol:
//
//	CHECK_CACHE ─hit──▶ LOAD ─────────────────────────────▶ LOADED
//	     │
//	    miss ─▶ lock ─▶ re-check ─hit─▶ LOAD
//	                       │
//	                      miss ─▶ COMPUTE ─▶ PERSIST ─▶ RECORD_HASH ─▶ PERSISTED
//
// A stage whose hash is already stored is never recomputed and never
// overwritten. A failed or cancelled computation leaves neither an artifact
// nor a registry record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/humam/internal/fault"
	"github.com/roach88/humam/internal/logging"
	"github.com/roach88/humam/internal/store"
)

// State is a step of the caching protocol.
type State string

const (
	StateCheckCache State = "CHECK_CACHE"
	StateLoad       State = "LOAD"
	StateCompute    State = "COMPUTE"
	StatePersist    State = "PERSIST"
	StateRecordHash State = "RECORD_HASH"
	StateLoaded     State = "LOADED"
	StatePersisted  State = "PERSISTED"
)

// Defaults for Deps.
const (
	DefaultRetries = 3
	DefaultBackoff = 50 * time.Millisecond
)

// Recorder commits stage results. *store.Registry implements it.
type Recorder interface {
	Record(ctx context.Context, rec store.Record) (store.Record, bool, error)
}

// Hooks observe stage execution.
type Hooks struct {
	OnState   func(key store.Key, s State)
	OnCompute func(key store.Key)
	OnLoad    func(key store.Key)
}

// Deps are the collaborators shared by every stage run.
type Deps struct {
	Store    store.Store
	Registry Recorder // optional
	Logger   *slog.Logger
	Label    string

	// Retries bounds how often a transient store error is retried.
	// Negative disables retries.
	Retries int
	Backoff time.Duration
	Hooks   Hooks
}

// Stage describes one unit of cached work.
type Stage[T any] struct {
	// Key locates the artifact. Its parent must already be stored.
	Key store.Key

	Compute func(ctx context.Context) (T, error)
	Encode  func(v T) (store.Files, error)
	Decode  func(files store.Files) (T, error)
}

// Outcome is the result of Run.
type Outcome[T any] struct {
	Value T
	Key   store.Key
	Path  string

	// State is StateLoaded or StatePersisted.
	State State
}

// Computed reports whether the value was computed in this run.
func (o *Outcome[T]) Computed() bool {
	return o.State == StatePersisted
}

// Run executes s under the caching protocol.
func Run[T any](ctx context.Context, d Deps, s Stage[T]) (*Outcome[T], error) {
	if d.Store == nil {
		return nil, errors.New("pipeline: no store")
	}
	if s.Compute == nil || s.Encode == nil || s.Decode == nil {
		return nil, errors.New("pipeline: incomplete stage")
	}
	if err := s.Key.Validate(); err != nil {
		return nil, fault.Wrap(fault.Configuration, "pipeline.Run", err, "invalid key")
	}
	r := &runner[T]{d: d.withDefaults(), s: s}
	return r.run(ctx)
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Retries == 0 {
		d.Retries = DefaultRetries
	}
	if d.Retries < 0 {
		d.Retries = 0
	}
	if d.Backoff == 0 {
		d.Backoff = DefaultBackoff
	}
	return d
}

type runner[T any] struct {
	d   Deps
	s   Stage[T]
	log *slog.Logger
}

func (r *runner[T]) enter(st State) {
	logging.Trace(r.log, "stage state", "state", string(st))
	if r.d.Hooks.OnState != nil {
		r.d.Hooks.OnState(r.s.Key, st)
	}
}

func (r *runner[T]) run(ctx context.Context) (*Outcome[T], error) {
	key := r.s.Key
	r.log = r.d.Logger.With("stage", string(key.Stage()), "hash", key.Hash().Short())

	r.enter(StateCheckCache)
	hit, err := r.exists(ctx)
	if err != nil {
		return nil, err
	}
	if hit {
		return r.load(ctx)
	}

	var unlock func() error
	err = r.retry(ctx, "lock", func() error {
		var err error
		unlock, err = r.d.Store.Lock(ctx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := unlock(); err != nil {
			r.log.Warn("release lock failed", "error", err)
		}
	}()

	// Another process may have finished while we waited for the lock.
	hit, err = r.exists(ctx)
	if err != nil {
		return nil, err
	}
	if hit {
		r.log.Debug("artifact appeared while waiting for lock")
		return r.load(ctx)
	}

	r.enter(StateCompute)
	r.log.Info("computing")
	if r.d.Hooks.OnCompute != nil {
		r.d.Hooks.OnCompute(key)
	}
	start := time.Now()
	v, err := r.s.Compute(ctx)
	if err != nil {
		return nil, fmt.Errorf("compute %s %s: %w", key.Stage(), key.Hash().Short(), err)
	}
	// Interrupted computations commit nothing.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.enter(StatePersist)
	files, err := r.s.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", key.Stage(), err)
	}
	var path string
	err = r.retry(ctx, "write", func() error {
		var err error
		path, err = r.d.Store.Write(ctx, key, files)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.enter(StateRecordHash)
	if err := r.record(ctx, path); err != nil {
		return nil, err
	}

	r.enter(StatePersisted)
	r.log.Info("stage persisted", "path", path, "elapsed", time.Since(start).Round(time.Millisecond))
	return &Outcome[T]{Value: v, Key: key, Path: path, State: StatePersisted}, nil
}

func (r *runner[T]) exists(ctx context.Context) (bool, error) {
	var hit bool
	err := r.retry(ctx, "exists", func() error {
		var err error
		hit, err = r.d.Store.Exists(ctx, r.s.Key)
		return err
	})
	return hit, err
}

func (r *runner[T]) load(ctx context.Context) (*Outcome[T], error) {
	key := r.s.Key
	r.enter(StateLoad)

	var files store.Files
	err := r.retry(ctx, "read", func() error {
		var err error
		files, err = r.d.Store.Read(ctx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	v, err := r.s.Decode(files)
	if err != nil {
		if fault.KindOf(err) == "" {
			err = fault.Wrap(fault.Integrity, "pipeline.load", err, "decode %s %s", key.Stage(), key.Hash().Short())
		}
		return nil, err
	}

	path := r.d.Store.Path(key)
	if err := r.record(ctx, path); err != nil {
		return nil, err
	}
	if r.d.Hooks.OnLoad != nil {
		r.d.Hooks.OnLoad(key)
	}
	r.enter(StateLoaded)
	r.log.Info("stage loaded from cache", "path", path)
	return &Outcome[T]{Value: v, Key: key, Path: path, State: StateLoaded}, nil
}

func (r *runner[T]) record(ctx context.Context, path string) error {
	if r.d.Registry == nil {
		return nil
	}
	key := r.s.Key
	return r.retry(ctx, "record", func() error {
		rec, created, err := r.d.Registry.Record(ctx, store.Record{
			Label:      r.d.Label,
			Stage:      key.Stage(),
			Hash:       key.Hash(),
			ParentHash: key.Parent().Hash(),
			Path:       path,
		})
		if err == nil && created {
			r.log.Debug("run recorded", "run_id", rec.RunID, "label", rec.Label)
		}
		return err
	})
}

// retry runs fn until it succeeds, fails with a categorized or context
// error, or the retry budget is spent. Backoff grows linearly.
func (r *runner[T]) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !transient(err) || attempt >= r.d.Retries {
			return err
		}
		r.log.Warn("store operation failed, retrying", "op", op, "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * r.d.Backoff):
		}
	}
}

func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return fault.Retryable(err)
}
