package choropleth

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sample "timeslider-choropleth/public_html/geojson"
)

const squares = `{"type":"FeatureCollection","features":[
  {"type":"Feature","id":"f1","properties":{},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}},
  {"type":"Feature","id":"f2","properties":{},"geometry":{"type":"Polygon","coordinates":[[[2,2],[3,2],[3,3],[2,2]]]}}]}`

func exampleStyles() map[string]any {
	return map[string]any{
		"f1": map[string]any{
			"100": map[string]any{"color": "red", "opacity": 0.5},
			"200": map[string]any{"color": "blue", "opacity": 0.8},
		},
		"f2": map[string]any{
			"100": map[string]any{"color": "green", "opacity": 0.3},
		},
	}
}

func TestNewDerivesTimestamps(t *testing.T) {
	layer, err := New(squares, exampleStyles(), []string{"t0", "t1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"100", "200"}, layer.Timestamps())
	assert.Equal(t, []string{"t0", "t1"}, layer.Labels())
	assert.Equal(t, Style{Color: "blue", Opacity: 0.8}, layer.StyleDict()["f1"]["200"])
	assert.Equal(t, []string{"f1", "f2"}, layer.Data().IDs())
}

func TestNewIsIdempotent(t *testing.T) {
	first, err := New(squares, exampleStyles(), []string{"a", "b"})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := New(squares, exampleStyles(), []string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, first.Timestamps(), again.Timestamps())
	}
}

func TestNewDefaults(t *testing.T) {
	layer, err := New(squares, exampleStyles(), []string{"a", "b"})
	require.NoError(t, err)

	meta := layer.Layer()
	assert.True(t, meta.Overlay)
	assert.True(t, meta.Control)
	assert.True(t, meta.Show)
	assert.Equal(t, layer.ElementName(), meta.Name)
	assert.True(t, strings.HasPrefix(layer.ElementName(), "time_slider_choropleth_"))
	assert.False(t, layer.Highlight())
	assert.Equal(t, DefaultJS, layer.JS())
}

func TestNewPassesMetadataThrough(t *testing.T) {
	layer, err := New(squares, exampleStyles(), []string{"a", "b"},
		WithName("unemployment"), WithOverlay(false), WithControl(false), WithShow(false), WithHighlight(true))
	require.NoError(t, err)

	assert.Equal(t, Layer{Name: "unemployment"}, layer.Layer())
	assert.Equal(t, "unemployment", layer.Name())
	assert.True(t, layer.Highlight())
}

func TestNewLabelErrors(t *testing.T) {
	_, err := New(squares, exampleStyles(), []string{"t0"})
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Contains(t, err.Error(), "customlbl (1)")

	_, err = New(squares, exampleStyles(), nil)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = New(squares, map[string]any{}, []string{})
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = New(squares, exampleStyles(), []string{"a", "b", "c"})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNewStyleDictErrors(t *testing.T) {
	cases := map[string]any{
		"list":            []any{"f1", "f2"},
		"string value":    map[string]any{"f1": "red"},
		"non-dict style":  map[string]any{"f1": map[string]any{"0": "notadict"}},
		"numeric color":   map[string]any{"f1": map[string]any{"0": map[string]any{"color": 3}}},
		"string opacity":  map[string]any{"f1": map[string]any{"0": map[string]any{"opacity": "high"}}},
		"raw json list":   []byte(`[1,2]`),
		"unparsable json": "{",
	}
	for name, styles := range cases {
		t.Run(name, func(t *testing.T) {
			layer, err := New(squares, styles, []string{"x"})
			require.ErrorIs(t, err, ErrInvalidArgument)
			assert.Nil(t, layer)
		})
	}
}

func TestNewRejectsBadData(t *testing.T) {
	_, err := New(`{"type":"nope"}`, exampleStyles(), []string{"a", "b"})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(squares, exampleStyles(), []string{"a", "b"}, WithTimezone("Mars/Olympus", "MST"))
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = New(squares, exampleStyles(), []string{"a", "b"}, WithStore(StateStore{Backend: "cookies", Key: "k"}))
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = New(squares, exampleStyles(), []string{"a", "b"}, WithStore(StateStore{Backend: "sessionStorage"}))
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAccessorsReturnCopies(t *testing.T) {
	layer, err := New(squares, exampleStyles(), []string{"t0", "t1"})
	require.NoError(t, err)

	layer.Timestamps()[0] = "mutated"
	layer.Labels()[0] = "mutated"
	layer.StyleDict()["f1"]["100"] = Style{Color: "black"}
	layer.Data().Features[0].ID = "mutated"

	assert.Equal(t, []string{"100", "200"}, layer.Timestamps())
	assert.Equal(t, []string{"t0", "t1"}, layer.Labels())
	assert.Equal(t, "red", layer.StyleDict()["f1"]["100"].Color)
	assert.Equal(t, "f1", layer.Data().Features[0].ID)
}

func TestNewCopiesLabels(t *testing.T) {
	labels := []string{"t0", "t1"}
	layer, err := New(squares, exampleStyles(), labels)
	require.NoError(t, err)
	labels[0] = "changed"
	assert.Equal(t, "t0", layer.Labels()[0])
}

func TestNewWithSampleDistricts(t *testing.T) {
	styles := StyleDict{
		"d1": {"1700000000": {Color: "#ff0000", Opacity: 0.7}},
		"d6": {"1700003600": {Color: "#00ff00", Opacity: 0.4}},
	}
	layer, err := New(sample.Districts, styles, []string{"first", "second"})
	require.NoError(t, err)

	b, ok := layer.Bounds()
	require.True(t, ok)
	assert.InDelta(t, 37.71, b.MinLat, 1e-9)
	assert.InDelta(t, -122.36, b.MaxLon, 1e-9)
}

func TestRenderScript(t *testing.T) {
	layer, err := New(squares, exampleStyles(), []string{"t0", "</script>"}, WithHighlight(true))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, layer.Render(&buf, "map_1"))
	js := buf.String()

	assert.Contains(t, js, "var "+layer.ElementName()+" = (function () {")
	assert.Contains(t, js, `var timestamps = ["100","200"];`)
	assert.Contains(t, js, `"f2":{"100":{"color":"green","opacity":0.3}}`)
	assert.Contains(t, js, `var featureIds = ["f1","f2"];`)
	assert.Contains(t, js, `"current_slider_value"`)
	assert.Contains(t, js, `})("localStorage");`)
	assert.Contains(t, js, `"America/Los_Angeles"`)
	assert.Contains(t, js, "map_1.fitBounds(e.target.getBounds());")
	assert.Contains(t, js, "layer.addTo(map_1);")
	assert.Contains(t, js, `map_1.on("overlayadd", onOverlayAdd);`)
	assert.NotContains(t, js, "</script>")
}

func TestRenderRuntimeContract(t *testing.T) {
	layer, err := New(squares, exampleStyles(), []string{"t0", "t1"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, layer.Render(&buf, "m"))
	js := buf.String()

	// a saved index outside [0, T-1] or not a number falls back to 0
	assert.Contains(t, js, "var current_index = parseInt(store.getItem(storeKey), 10);")
	assert.Contains(t, js,
		"if (isNaN(current_index) || current_index < 0 || current_index > timestamps.length - 1) {\n        current_index = 0;")
	assert.Contains(t, js, "store.setItem(storeKey, String(index));")

	// features without a style at the timestamp go back to neutral
	assert.Contains(t, js,
		"if (style === null) {\n                featurePath(id).attr(\"fill\", \"white\").style(\"fill-opacity\", 0);")
	assert.Contains(t, js, `.attr("stroke-dasharray", "5,5")`)

	// only plain numbers are read as epoch seconds
	assert.Contains(t, js, `if (!/^-?\d+(\.\d+)?$/.test(ts)) {`)
	assert.Contains(t, js, "var seconds = Number(ts);")
	assert.NotContains(t, js, "parseInt(ts, 10)")
}

func TestRenderOptionalParts(t *testing.T) {
	layer, err := New(squares, exampleStyles(), []string{"t0", "t1"},
		WithShow(false), WithStore(StateStore{Backend: "sessionStorage", Key: "slider_pos"}), WithTimezone("UTC", "UTC"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, layer.Render(&buf, "m"))
	js := buf.String()

	assert.NotContains(t, js, "onEachFeature")
	assert.NotContains(t, js, "layer.addTo(m);")
	assert.Contains(t, js, `var storeKey = "slider_pos";`)
	assert.Contains(t, js, `})("sessionStorage");`)
	assert.Contains(t, js, `var tzName = "UTC";`)
}

func TestRenderRejectsBadMapName(t *testing.T) {
	layer, err := New(squares, exampleStyles(), []string{"t0", "t1"})
	require.NoError(t, err)
	assert.ErrorIs(t, layer.Render(&bytes.Buffer{}, "map; alert(1)"), ErrInvalidArgument)
	assert.Error(t, layer.Render(&bytes.Buffer{}, ""))
}
