package simulation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/humam/internal/fault"
	"github.com/roach88/humam/internal/param"
)

func TestParseParamsDefaults(t *testing.T) {
	p, err := ParseParams(param.Object{"duration": param.Int(1000)})
	require.NoError(t, err)
	assert.Equal(t, Params{Duration: 1000, Seed: 1, Threads: 1, Engine: EnginePoisson}, p)
}

func TestParseParamsErrors(t *testing.T) {
	tests := map[string]param.Object{
		"no duration":       {},
		"negative duration": {"duration": param.Int(-5)},
		"zero threads":      {"duration": param.Int(10), "threads": param.Int(0)},
		"fractional seed":   {"duration": param.Int(10), "seed": param.Float(1.5)},
		"unknown engine":    {"duration": param.Int(10), "engine": param.String("nest")},
		"exec no command":   {"duration": param.Int(10), "engine": param.String("exec")},
		"poisson command":   {"duration": param.Int(10), "command": param.Array{param.String("x")}},
		"unknown key":       {"duration": param.Int(10), "dt": param.Float(0.1)},
	}
	for name, tree := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseParams(tree)
			require.Error(t, err)
			assert.True(t, fault.Is(err, fault.Configuration), err.Error())
		})
	}
}

func TestParamsHash(t *testing.T) {
	netA := param.Identifier(strings.Repeat("a", 64))
	netB := param.Identifier(strings.Repeat("b", 64))
	p := Params{Duration: 1000, Seed: 1, Threads: 1, Engine: EnginePoisson}

	ha, err := p.Hash(netA)
	require.NoError(t, err)
	hb, err := p.Hash(netB)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb, "same parameters on another network")

	q := p
	q.Seed = 2
	hq, err := q.Hash(netA)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hq)

	// Integral durations hash the same whether written as int or float.
	fromInt, err := ParseParams(param.Object{"duration": param.Int(1000)})
	require.NoError(t, err)
	fromFloat, err := ParseParams(param.Object{"duration": param.Float(1000)})
	require.NoError(t, err)
	h1, _ := fromInt.Hash(netA)
	h2, _ := fromFloat.Hash(netA)
	assert.Equal(t, h1, h2)
}
