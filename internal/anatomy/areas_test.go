package anatomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryAreaHasANetwork(t *testing.T) {
	assert.Len(t, DesikanKilliany, 34)
	for _, a := range DesikanKilliany {
		_, ok := LeftHemisphereNetworks[a]
		assert.True(t, ok, a)
	}
	assert.Len(t, LeftHemisphereNetworks, len(DesikanKilliany))
}

func TestRightHemisphereDiffersInCingulate(t *testing.T) {
	assert.Equal(t, NetworkDAN, NetworkOf(LeftHemisphereNetworks, "caudalanteriorcingulate"))
	assert.Equal(t, NetworkDMN, NetworkOf(RightHemisphereNetworks, "caudalanteriorcingulate"))
	assert.Equal(t, NetworkVIS, NetworkOf(RightHemisphereNetworks, "cuneus"))
}

func TestNetworkOfUnknownArea(t *testing.T) {
	assert.Equal(t, NetworkOther, NetworkOf(LeftHemisphereNetworks, "AreaA"))
}

func TestOrderByNetwork(t *testing.T) {
	in := []string{"precentral", "cuneus", "insula", "precuneus", "superiortemporal", "middletemporal", "isthmuscingulate"}
	got := OrderByNetwork(LeftHemisphereNetworks, in)

	assert.Equal(t, []string{
		"isthmuscingulate", "precuneus", // DMN
		"middletemporal",   // DAN
		"insula",           // SAN
		"superiortemporal", // AUD
		"cuneus",           // VIS
		"precentral",
	}, got)
	assert.Equal(t, "precentral", in[0], "input untouched")
}

func TestHemisphereNetworks(t *testing.T) {
	tests := []struct {
		hemisphere string
		want       string
	}{
		{"", NetworkDAN},
		{HemisphereLeft, NetworkDAN},
		{HemisphereRight, NetworkDMN},
	}
	for _, tt := range tests {
		m, err := HemisphereNetworks(tt.hemisphere)
		require.NoError(t, err, tt.hemisphere)
		assert.Equal(t, tt.want, NetworkOf(m, "caudalanteriorcingulate"), tt.hemisphere)
	}

	_, err := HemisphereNetworks("both")
	assert.Error(t, err)
}

func TestIsDesikanKilliany(t *testing.T) {
	assert.True(t, IsDesikanKilliany("precuneus"))
	assert.False(t, IsDesikanKilliany("AreaX"))
	assert.False(t, IsDesikanKilliany("Precuneus"))
}
