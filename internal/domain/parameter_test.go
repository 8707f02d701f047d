package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParameters_CoversAllSlots(t *testing.T) {
	ps := Parameters()
	require.Len(t, ps, NumParameters)
	seen := make(map[string]bool)
	for _, p := range ps {
		assert.NotEmpty(t, p.SourceName())
		assert.NotEmpty(t, p.Column())
		assert.False(t, seen[p.Column()], "duplicate column %s", p.Column())
		seen[p.Column()] = true
	}
}

func TestParameter_FileToken(t *testing.T) {
	assert.Equal(t, "ASWDIFD_S", DiffuseRadiationDown.FileToken())
	assert.Equal(t, "60_P", Pressure20m.FileToken())
	assert.Equal(t, "57_U", WindU216m.FileToken())
	assert.Equal(t, "58_T", Temperature131m.FileToken())
}

func TestParameter_String(t *testing.T) {
	assert.Equal(t, "ALB_RAD", Albedo.String())
	assert.Equal(t, "P_20M", Pressure20m.String())
	assert.Equal(t, "W_216M", WindW216m.String())
	assert.Equal(t, "Z0", Roughness.String())
}

func TestParameter_Levels(t *testing.T) {
	assert.True(t, Temperature2m.SingleLevel())
	assert.False(t, WindV65m.SingleLevel())

	assert.Equal(t, 0, GroundTemperature.HeightMeters())
	assert.Equal(t, 20, Pressure20m.HeightMeters())
	assert.Equal(t, 65, WindW65m.HeightMeters())
	assert.Equal(t, 131, Pressure131m.HeightMeters())
	assert.Equal(t, 216, WindU216m.HeightMeters())
}

func TestParameter_FilePrefix(t *testing.T) {
	assert.Equal(t, SingleLevelPrefix, Albedo.FilePrefix())
	assert.Equal(t, ModelLevelPrefix, WindW20m.FilePrefix())
}

func TestParseParameter(t *testing.T) {
	for _, p := range Parameters() {
		got, err := ParseParameter(p.Column())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	_, err := ParseParameter("no_such_column")
	assert.Error(t, err)
}
