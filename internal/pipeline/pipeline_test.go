package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/humam/internal/fault"
	"github.com/roach88/humam/internal/param"
	"github.com/roach88/humam/internal/store"
)

var netKey = store.NetworkKey(param.Identifier(strings.Repeat("a", 64)))

type recorder struct {
	mu      sync.Mutex
	records []store.Record
}

func (r *recorder) Record(_ context.Context, rec store.Record) (store.Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.records {
		if x.Label == rec.Label && x.Stage == rec.Stage && x.Hash == rec.Hash {
			return x, false, nil
		}
	}
	r.records = append(r.records, rec)
	return rec, true, nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// counting returns a stage that computes value and counts computations.
func counting(key store.Key, value string, calls *atomic.Int32) Stage[string] {
	return Stage[string]{
		Key: key,
		Compute: func(context.Context) (string, error) {
			calls.Add(1)
			return value, nil
		},
		Encode: func(v string) (store.Files, error) {
			return store.Files{"value.txt": []byte(v)}, nil
		},
		Decode: func(f store.Files) (string, error) {
			v, ok := f["value.txt"]
			if !ok {
				return "", errors.New("missing value.txt")
			}
			return string(v), nil
		},
	}
}

func TestRun_ComputesOnceThenLoads(t *testing.T) {
	st := store.NewMemory()
	rec := &recorder{}
	deps := Deps{Store: st, Registry: rec, Label: "exp"}
	var calls atomic.Int32

	first, err := Run(context.Background(), deps, counting(netKey, "v1", &calls))
	require.NoError(t, err)
	assert.Equal(t, StatePersisted, first.State)
	assert.True(t, first.Computed())
	assert.Equal(t, "v1", first.Value)

	second, err := Run(context.Background(), deps, counting(netKey, "other", &calls))
	require.NoError(t, err)
	assert.Equal(t, StateLoaded, second.State)
	assert.Equal(t, "v1", second.Value, "stored artifact is never overwritten")
	assert.Equal(t, first.Path, second.Path)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, st.Writes())
	require.Equal(t, 1, rec.count())
	assert.Equal(t, store.StageNetwork, rec.records[0].Stage)
	assert.Equal(t, "exp", rec.records[0].Label)
}

func TestRun_StateSequence(t *testing.T) {
	var states []State
	deps := Deps{
		Store: store.NewMemory(),
		Hooks: Hooks{OnState: func(_ store.Key, s State) { states = append(states, s) }},
	}
	var calls atomic.Int32

	_, err := Run(context.Background(), deps, counting(netKey, "v", &calls))
	require.NoError(t, err)
	assert.Equal(t, []State{StateCheckCache, StateCompute, StatePersist, StateRecordHash, StatePersisted}, states)

	states = nil
	_, err = Run(context.Background(), deps, counting(netKey, "v", &calls))
	require.NoError(t, err)
	assert.Equal(t, []State{StateCheckCache, StateLoad, StateLoaded}, states)
}

func TestRun_ComputeErrorCommitsNothing(t *testing.T) {
	st := store.NewMemory()
	rec := &recorder{}
	s := counting(netKey, "v", new(atomic.Int32))
	s.Compute = func(context.Context) (string, error) {
		return "", fault.Configf("test", "bad parameter")
	}

	_, err := Run(context.Background(), Deps{Store: st, Registry: rec}, s)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.Configuration))

	ok, err := st.Exists(context.Background(), netKey)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, rec.count())
}

func TestRun_CancellationCommitsNothing(t *testing.T) {
	st := store.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	s := counting(netKey, "v", new(atomic.Int32))
	s.Compute = func(context.Context) (string, error) {
		cancel()
		return "partial", nil
	}

	_, err := Run(ctx, Deps{Store: st}, s)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, st.Writes())

	// The next run recomputes.
	var calls atomic.Int32
	out, err := Run(context.Background(), Deps{Store: st}, counting(netKey, "full", &calls))
	require.NoError(t, err)
	assert.Equal(t, "full", out.Value)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRun_ConcurrentRunsComputeOnce(t *testing.T) {
	st := store.NewMemory()
	var calls atomic.Int32
	s := counting(netKey, "v", &calls)
	compute := s.Compute
	s.Compute = func(ctx context.Context) (string, error) {
		time.Sleep(20 * time.Millisecond)
		return compute(ctx)
	}

	var wg sync.WaitGroup
	results := make([]*Outcome[string], 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = Run(context.Background(), Deps{Store: st}, s)
		}()
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, "v", results[i].Value)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, st.Writes())
}

// flaky fails the first n writes with a transient error.
type flaky struct {
	store.Store
	n      atomic.Int32
	err    error
	writes atomic.Int32
}

func (f *flaky) Write(ctx context.Context, key store.Key, files store.Files) (string, error) {
	f.writes.Add(1)
	if f.n.Add(-1) >= 0 {
		return "", f.err
	}
	return f.Store.Write(ctx, key, files)
}

func TestRun_RetriesTransientStoreErrors(t *testing.T) {
	st := &flaky{Store: store.NewMemory(), err: errors.New("disk hiccup")}
	st.n.Store(2)

	out, err := Run(context.Background(), Deps{Store: st, Backoff: time.Millisecond}, counting(netKey, "v", new(atomic.Int32)))
	require.NoError(t, err)
	assert.Equal(t, StatePersisted, out.State)
	assert.Equal(t, int32(3), st.writes.Load())
}

func TestRun_RetryBudgetIsBounded(t *testing.T) {
	st := &flaky{Store: store.NewMemory(), err: errors.New("disk gone")}
	st.n.Store(100)

	_, err := Run(context.Background(), Deps{Store: st, Retries: 2, Backoff: time.Millisecond}, counting(netKey, "v", new(atomic.Int32)))
	require.Error(t, err)
	assert.Equal(t, int32(3), st.writes.Load())
}

func TestRun_CategorizedErrorsAreNotRetried(t *testing.T) {
	st := &flaky{Store: store.NewMemory(), err: fault.Integrityf("test", "corrupt")}
	st.n.Store(100)

	_, err := Run(context.Background(), Deps{Store: st, Backoff: time.Millisecond}, counting(netKey, "v", new(atomic.Int32)))
	assert.True(t, fault.Is(err, fault.Integrity))
	assert.Equal(t, int32(1), st.writes.Load())
}

func TestRun_DecodeFailureIsIntegrityError(t *testing.T) {
	st := store.NewMemory()
	_, err := st.Write(context.Background(), netKey, store.Files{"other.txt": []byte("x")})
	require.NoError(t, err)

	_, err = Run(context.Background(), Deps{Store: st}, counting(netKey, "v", new(atomic.Int32)))
	assert.True(t, fault.Is(err, fault.Integrity))
}

func TestRun_ChildNeedsStoredParent(t *testing.T) {
	child := netKey.Child(param.Identifier(strings.Repeat("b", 64)))
	_, err := Run(context.Background(), Deps{Store: store.NewMemory()}, counting(child, "v", new(atomic.Int32)))
	assert.True(t, fault.IsNotFound(err))
}

func TestRun_Hooks(t *testing.T) {
	var computed, loaded int
	deps := Deps{
		Store: store.NewMemory(),
		Hooks: Hooks{
			OnCompute: func(store.Key) { computed++ },
			OnLoad:    func(store.Key) { loaded++ },
		},
	}
	for range 3 {
		_, err := Run(context.Background(), deps, counting(netKey, "v", new(atomic.Int32)))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, computed)
	assert.Equal(t, 2, loaded)
}
