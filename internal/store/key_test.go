package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/humam/internal/param"
)

func id(c string) param.Identifier {
	return param.Identifier(strings.Repeat(c, 64))
}

func TestKeyPath(t *testing.T) {
	net := NetworkKey(id("a"))
	sim := net.Child(id("b"))
	ana := sim.Child(id("c"))

	assert.Equal(t, StageNetwork, net.Stage())
	assert.Equal(t, StageSimulation, sim.Stage())
	assert.Equal(t, StageAnalysis, ana.Stage())

	assert.Equal(t, id("c"), ana.Hash())
	assert.Equal(t, sim, ana.Parent())
	assert.Equal(t, net, sim.Parent())
	assert.Equal(t, Key{}, net.Parent())

	assert.Equal(t, []string{string(id("a")), string(id("b")), string(id("c"))}, ana.Segments())
	require.NoError(t, ana.Validate())
}

func TestKeyValidate(t *testing.T) {
	assert.Error(t, Key{}.Validate())
	assert.Error(t, NetworkKey("../etc").Validate())
	assert.Error(t, Key{Network: id("a"), Analysis: id("c")}.Validate())
}

func TestParseStage(t *testing.T) {
	s, err := ParseStage("simulation")
	require.NoError(t, err)
	assert.Equal(t, 2, s.Depth())

	_, err = ParseStage("plot")
	assert.Error(t, err)
}

func TestFilesValidate(t *testing.T) {
	ok := Files{"hash.txt": nil, "spikes/A.L4.E.arrow": nil}
	require.NoError(t, ok.Validate())
	assert.Equal(t, []string{"hash.txt", "spikes/A.L4.E.arrow"}, ok.Names())

	for _, name := range []string{"", "/abs", "../x", "a/../../b", "./x", ".lock", string(id("d"))} {
		assert.Error(t, Files{name: nil}.Validate(), name)
	}
	assert.Error(t, Files{}.Validate())
}

func TestFilesSize(t *testing.T) {
	assert.Equal(t, int64(5), Files{"a": []byte("ab"), "b": []byte("cde")}.Size())
}
