package simulation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/humam/internal/anatomy"
	"github.com/roach88/humam/internal/fault"
	"github.com/roach88/humam/internal/network"
	"github.com/roach88/humam/internal/testutil"
)

func fixtureNetwork(t *testing.T) *network.Artifact {
	t.Helper()
	cfg, err := network.LoadConfig(testutil.WriteNetworkInputs(t, t.TempDir()))
	require.NoError(t, err)
	net, err := network.Compute(context.Background(), cfg)
	require.NoError(t, err)
	return net
}

func runPoisson(t *testing.T, net *network.Artifact, p Params) *Spikes {
	t.Helper()
	h, err := Poisson{}.Build(context.Background(), net)
	require.NoError(t, err)
	defer h.Close()
	spikes, err := Poisson{}.Run(context.Background(), h, p)
	require.NoError(t, err)
	return spikes
}

func TestPoissonIsDeterministicAcrossThreads(t *testing.T) {
	net := fixtureNetwork(t)
	one := runPoisson(t, net, Params{Duration: 500, Seed: 42, Threads: 1, Engine: EnginePoisson})
	four := runPoisson(t, net, Params{Duration: 500, Seed: 42, Threads: 4, Engine: EnginePoisson})
	assert.Equal(t, one.Trains, four.Trains)

	other := runPoisson(t, net, Params{Duration: 500, Seed: 43, Threads: 4, Engine: EnginePoisson})
	assert.NotEqual(t, one.Trains, other.Trains)
}

func TestPoissonRates(t *testing.T) {
	net := fixtureNetwork(t)
	spikes := runPoisson(t, net, Params{Duration: 1000, Seed: 7, Threads: 2, Engine: EnginePoisson})
	require.NoError(t, spikes.Validate())

	k := anatomy.PopulationKey{Area: "cuneus", Layer: anatomy.L4, Population: "E"}
	want := float64(net.Neurons[k]) * net.Rates[k]
	got := float64(spikes.Trains[k].Len())
	assert.InEpsilon(t, want, got, 0.2)

	for _, train := range spikes.Trains {
		for i := 1; i < train.Len(); i++ {
			assert.LessOrEqual(t, train.Times[i-1], train.Times[i])
		}
	}
}

func TestPoissonSilentPopulation(t *testing.T) {
	net := fixtureNetwork(t)
	k := anatomy.PopulationKey{Area: "cuneus", Layer: anatomy.L4, Population: "I"}
	net.Rates[k] = 0

	spikes := runPoisson(t, net, Params{Duration: 200, Seed: 1, Threads: 1, Engine: EnginePoisson})
	assert.Zero(t, spikes.Trains[k].Len())
}

func TestPoissonHonoursCancellation(t *testing.T) {
	net := fixtureNetwork(t)
	h, err := Poisson{}.Build(context.Background(), net)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Poisson{}.Run(ctx, h, Params{Duration: 1000, Seed: 1, Threads: 2, Engine: EnginePoisson})
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, fault.Is(err, fault.ExternalEngine), "got %v", err)
}
