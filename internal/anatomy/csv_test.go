package anatomy

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const neuronsCSV = `area,layer,population,count
AreaB,4,E,500
AreaA,2/3,E,1000
AreaA,2/3,I,250
`

func TestReadNeurons(t *testing.T) {
	tbl, err := ReadNeurons(strings.NewReader(neuronsCSV))
	require.NoError(t, err)

	assert.Len(t, tbl, 3)
	assert.Equal(t, int64(1000), tbl[PopulationKey{Area: "AreaA", Layer: L23, Population: "E"}])
	assert.Equal(t, int64(1750), tbl.Total())
	assert.Equal(t, []string{"AreaA", "AreaB"}, tbl.Areas())
}

func TestWriteNeuronsIsCanonical(t *testing.T) {
	tbl, err := ReadNeurons(strings.NewReader(neuronsCSV))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteNeurons(&buf, tbl))
	assert.Equal(t, `area,layer,population,count
AreaA,23,E,1000
AreaA,23,I,250
AreaB,4,E,500
`, buf.String())

	back, err := ReadNeurons(&buf)
	require.NoError(t, err)
	assert.Equal(t, tbl, back)
}

func TestReadNeuronsErrors(t *testing.T) {
	tests := map[string]string{
		"empty":      "",
		"bad header": "area,layer,pop,count\n",
		"negative":   "area,layer,population,count\nA,4,E,-1\n",
		"not int":    "area,layer,population,count\nA,4,E,1.5\n",
		"duplicate":  "area,layer,population,count\nA,4,E,1\nA,L4,E,2\n",
		"bad layer":  "area,layer,population,count\nA,9,E,1\n",
		"short row":  "area,layer,population,count\nA,4,E\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadNeurons(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestSynapsesRoundTrip(t *testing.T) {
	in := `target_area,target_layer,target_population,source_area,source_layer,source_population,count
AreaA,23,E,AreaB,4,E,12
AreaA,23,E,AreaA,4,E,500000
`
	tbl, err := ReadSynapses(strings.NewReader(in))
	require.NoError(t, err)

	a := PopulationKey{Area: "AreaA", Layer: L23, Population: "E"}
	assert.Equal(t, int64(500000), tbl.Get(a, PopulationKey{Area: "AreaA", Layer: L4, Population: "E"}))
	assert.Equal(t, int64(0), tbl.Get(a, a))
	assert.Equal(t, 1, tbl.InterAreal())
	assert.Equal(t, int64(500012), tbl.Total())

	var buf bytes.Buffer
	require.NoError(t, WriteSynapses(&buf, tbl))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "AreaA,23,E,AreaA,4,E,500000", lines[1])

	_, err = ReadSynapses(strings.NewReader(in + "AreaA,23,E,AreaB,4,E,1\n"))
	assert.Error(t, err, "duplicate projection")
}

func TestReadRates(t *testing.T) {
	tbl, err := ReadRates(strings.NewReader("area,layer,population,rate\nA,4,E,2.5\nA,4,I,10\n"))
	require.NoError(t, err)
	assert.Equal(t, 2.5, tbl[PopulationKey{Area: "A", Layer: L4, Population: "E"}])

	for _, bad := range []string{"-1", "NaN", "+Inf", "x"} {
		_, err := ReadRates(strings.NewReader("area,layer,population,rate\nA,4,E," + bad + "\n"))
		assert.Error(t, err, bad)
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRates(&buf, tbl))
	assert.Equal(t, "area,layer,population,rate\nA,4,E,2.5\nA,4,I,10\n", buf.String())
}

func TestLoadFullScale(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return p
	}
	n := write("neurons.csv", neuronsCSV)
	s := write("synapses.csv", strings.Join(SynapseHeader, ",")+"\n")
	r := write("rates.csv", "area,layer,population,rate\nAreaA,23,E,1\n")

	full, err := LoadFullScale(n, s, r)
	require.NoError(t, err)
	assert.Len(t, full.Neurons, 3)
	assert.Empty(t, full.Synapses)
	assert.Len(t, full.Rates, 1)

	_, err = LoadFullScale(n, filepath.Join(dir, "missing.csv"), r)
	assert.Error(t, err)
}
