package analysis

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/roach88/humam/internal/anatomy"
	"github.com/roach88/humam/internal/fault"
	"github.com/roach88/humam/internal/store"
	"github.com/roach88/humam/internal/testutil"
)

func sampleArtifact(t *testing.T) *Artifact {
	t.Helper()
	a := anatomy.PopulationKey{Area: "A", Layer: anatomy.L4, Population: "E"}
	b := anatomy.PopulationKey{Area: "B", Layer: anatomy.L23, Population: "I"}
	p := Params{SamplingFraction: 0.5, BinSize: 5, Seed: 3, Hemisphere: anatomy.HemisphereLeft}
	id, err := p.Hash(testutil.UnknownHash)
	require.NoError(t, err)
	return &Artifact{
		Hash:       id,
		Simulation: testutil.UnknownHash,
		Params:     p,
		Populations: map[anatomy.PopulationKey]PopulationStats{
			a: {Rate: 35, CVISI: 0.5, Correlation: -0.25},
			b: {Rate: 0, CVISI: math.NaN(), Correlation: math.NaN()},
		},
		Connectivity: Connectivity{
			Areas:  []string{"A", "B"},
			Matrix: mat.NewSymDense(2, []float64{1, 0.25, 0.25, 1}),
		},
		Raster: []Spike{
			{Population: a, NeuronID: 0, Time: 5},
			{Population: a, NeuronID: 1, Time: 12.5},
		},
	}
}

func TestEncodeGolden(t *testing.T) {
	files, err := Encode(sampleArtifact(t))
	require.NoError(t, err)

	testutil.AssertTables(t, "analysis_tables", files, FileRates, FileCVISI, FileCorrelation, FileConnectivity, FileRaster)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	a := sampleArtifact(t)
	files, err := Encode(a)
	require.NoError(t, err)

	back, err := Decode(files)
	require.NoError(t, err)
	assert.Equal(t, a.Hash, back.Hash)
	assert.Equal(t, a.Simulation, back.Simulation)
	assert.Equal(t, a.Params, back.Params)
	assert.Equal(t, a.Raster, back.Raster)
	assert.Equal(t, a.Connectivity.Areas, back.Connectivity.Areas)

	// NaN statistics survive, so compare the encoded form.
	again, err := Encode(back)
	require.NoError(t, err)
	assert.Equal(t, files, again)
}

func TestDecodeIntegrity(t *testing.T) {
	files, err := Encode(sampleArtifact(t))
	require.NoError(t, err)

	tests := map[string]func(store.Files){
		"missing raster":     func(f store.Files) { delete(f, FileRaster) },
		"hash mismatch":      func(f store.Files) { f[FileHash] = []byte(testutil.UnknownHash + "\n") },
		"population missing": func(f store.Files) { f[FileCVISI] = []byte("area,layer,population,cv_isi\nA,4,E,0.5\n") },
		"extra population": func(f store.Files) {
			f[FileCorrelation] = append(bytes.Clone(f[FileCorrelation]), "C,4,E,0\n"...)
		},
		"bad statistic":  func(f store.Files) { f[FileRates] = []byte("area,layer,population,rate\nA,4,E,fast\nB,23,I,0\n") },
		"asymmetric fc":  func(f store.Files) { f[FileConnectivity] = []byte("area,A,B\nA,1,0.25\nB,0.5,1\n") },
		"fc rows":        func(f store.Files) { f[FileConnectivity] = []byte("area,A,B\nA,1,0.25\n") },
		"raster foreign": func(f store.Files) { f[FileRaster] = []byte("area,layer,population,neuron_id,spike_time\nZ,4,E,0,1\n") },
	}
	for name, corrupt := range tests {
		t.Run(name, func(t *testing.T) {
			broken := make(store.Files, len(files))
			for n, data := range files {
				broken[n] = data
			}
			corrupt(broken)
			_, err := Decode(broken)
			require.Error(t, err)
			assert.True(t, fault.Is(err, fault.Integrity), err.Error())
		})
	}
}
