package colormap

import (
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeslider-choropleth/pkg/choropleth"
)

func TestLinearColorJustBelowMax(t *testing.T) {
	min, max := 0.000825129614841758, 0.002842430369909955
	l, err := NewLinear(YlOrRd, min, max)
	require.NoError(t, err)

	v := math.Nextafter(max, min)
	require.Less(t, v, max)
	assert.NotPanics(t, func() { l.Color(v) })
	assert.Equal(t, YlOrRd[len(YlOrRd)-1], l.Color(v))
}

func TestLinearColor(t *testing.T) {
	l, err := NewLinear([]string{"#000000", "#ffffff"}, 0, 10)
	require.NoError(t, err)

	tests := []struct {
		v    float64
		want string
	}{
		{-5, "#000000"},
		{0, "#000000"},
		{5, "#808080"},
		{10, "#ffffff"},
		{99, "#ffffff"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, l.Color(tc.v), "Color(%v)", tc.v)
	}
}

func TestLinearMultiStop(t *testing.T) {
	l, err := NewLinear([]string{"#f00", "#0f0", "#00f"}, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, "#00ff00", l.Color(1))
	assert.Equal(t, "#808000", l.Color(0.5))
}

func TestNewLinearErrors(t *testing.T) {
	_, err := NewLinear([]string{"#fff"}, 0, 1)
	assert.Error(t, err)
	_, err = NewLinear([]string{"#fff", "nope"}, 0, 1)
	assert.Error(t, err)
	_, err = NewLinear(YlOrRd, 2, 1)
	assert.Error(t, err)
}

func TestFitAndStyleDict(t *testing.T) {
	values := map[string]map[string]float64{
		"a": {"1": 10, "2": 20},
		"b": {"1": 30},
	}
	scale, err := Fit([]string{"#000000", "#ffffff"}, values)
	require.NoError(t, err)
	assert.Equal(t, 10.0, scale.Min)
	assert.Equal(t, 30.0, scale.Max)

	styles := StyleDict(values, scale, 0.6)
	assert.Equal(t, choropleth.Style{Color: "#000000", Opacity: 0.6}, styles["a"]["1"])
	assert.Equal(t, choropleth.Style{Color: "#ffffff", Opacity: 0.6}, styles["b"]["1"])
	assert.Equal(t, []string{"1", "2"}, styles.Timestamps())
}

func TestFitEmpty(t *testing.T) {
	scale, err := Fit(YlOrRd, nil)
	require.NoError(t, err)
	assert.Equal(t, YlOrRd[0], scale.Color(0))
}

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#1a2B3c")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0x1a, G: 0x2b, B: 0x3c, A: 0xff}, c)
}
