package fault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      Kind
		retryable bool
	}{
		{"nil", nil, "", false},
		{"plain", errors.New("disk full"), "", true},
		{"wrapped io", fmt.Errorf("read: %w", fs.ErrPermission), "", true},
		{"configuration", Configf("op", "bad"), Configuration, false},
		{"wrapped not found", fmt.Errorf("load: %w", New(NotFound, "op", "missing")), NotFound, false},
		{"doubly wrapped integrity", fmt.Errorf("run: %w", fmt.Errorf("load: %w", Integrityf("op", "corrupt"))), Integrity, false},
		{"engine around cancel", Wrap(ExternalEngine, "op", context.Canceled, "interrupted"), ExternalEngine, false},
		{"outermost kind wins", Wrap(Integrity, "op", New(NotFound, "inner", "missing"), "decode"), Integrity, false},
	}
	kinds := []Kind{Configuration, NotFound, Integrity, ExternalEngine}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.retryable, Retryable(tt.err))
			for _, k := range kinds {
				assert.Equal(t, k == tt.kind, Is(tt.err, k), "Is(%s)", k)
			}
			assert.Equal(t, tt.kind == NotFound, IsNotFound(tt.err))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"bare", New(Configuration, "", "seed %d", -1), "CONFIGURATION: seed -1"},
		{"with op", Integrityf("simulation.Decode", "no spikes"), "simulation.Decode: INTEGRITY: no spikes"},
		{"with cause", Wrap(ExternalEngine, "simulation.Exec", context.Canceled, "engine interrupted"), "simulation.Exec: EXTERNAL_ENGINE: engine interrupted: context canceled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	err := fmt.Errorf("stage: %w", Wrap(ExternalEngine, "op", context.DeadlineExceeded, "timed out"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var fe *Error
	assert.ErrorAs(t, err, &fe)
	assert.Equal(t, "op", fe.Op)
}
