package choropleth

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortTimestamps(t *testing.T) {
	tests := []struct {
		in   []string
		want []string
	}{
		{[]string{"200", "100"}, []string{"100", "200"}},
		{[]string{"1000", "200", "30"}, []string{"30", "200", "1000"}},
		{[]string{"b", "10", "a", "9"}, []string{"9", "10", "a", "b"}},
		{[]string{"100.0", "100", "99.5"}, []string{"99.5", "100", "100.0"}},
		{[]string{"2024-02-01", "2024-01-01"}, []string{"2024-01-01", "2024-02-01"}},
	}
	for _, tc := range tests {
		got := append([]string(nil), tc.in...)
		SortTimestamps(got)
		assert.Equal(t, tc.want, got, "SortTimestamps(%v)", tc.in)
	}
}

func TestTimestampsUnion(t *testing.T) {
	d := StyleDict{
		"a": {"3": {}, "1": {}},
		"b": {"2": {}, "1": {}},
		"c": {},
	}
	assert.Equal(t, []string{"1", "2", "3"}, d.Timestamps())
	assert.Empty(t, StyleDict{}.Timestamps())
}

func TestParseStyleDictRawJSON(t *testing.T) {
	doc := `{"f1":{"1700000000":{"color":"#abcdef","opacity":1}},"f2":{}}`
	for _, in := range []any{doc, []byte(doc), json.RawMessage(doc)} {
		d, err := ParseStyleDict(in)
		require.NoError(t, err)
		assert.Equal(t, Style{Color: "#abcdef", Opacity: 1}, d["f1"]["1700000000"])
		assert.Empty(t, d["f2"])
	}
}

func TestParseStyleDictPartialRecords(t *testing.T) {
	d, err := ParseStyleDict(`{"f1":{"1":{"color":"red"},"2":{"opacity":0.25},"3":{"color":null,"weight":4}}}`)
	require.NoError(t, err)
	assert.Equal(t, Style{Color: "red"}, d["f1"]["1"])
	assert.Equal(t, Style{Opacity: 0.25}, d["f1"]["2"])
	assert.Equal(t, Style{}, d["f1"]["3"])
}

func TestParseStyleDictTyped(t *testing.T) {
	src := map[string]map[string]Style{"f": {"1": {Color: "red", Opacity: 0.1}}}
	d, err := ParseStyleDict(src)
	require.NoError(t, err)
	src["f"]["1"] = Style{}
	assert.Equal(t, "red", d["f"]["1"].Color)

	nested := map[string]map[string]map[string]any{"f": {"1": {"color": "blue", "opacity": 0.9}}}
	d, err = ParseStyleDict(nested)
	require.NoError(t, err)
	assert.Equal(t, Style{Color: "blue", Opacity: 0.9}, d["f"]["1"])
}

func TestParseStyleDictNamesOffender(t *testing.T) {
	_, err := ParseStyleDict(map[string]any{"good": map[string]any{}, "bad": []int{1, 2}})
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Contains(t, err.Error(), `[1,2]`)
	assert.Contains(t, err.Error(), `"bad"`)

	_, err = ParseStyleDict(42)
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Contains(t, err.Error(), "must be a mapping, got 42")

	_, err = ParseStyleDict(nil)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = ParseStyleDict(map[string]any{"f": func() {}})
	require.ErrorIs(t, err, ErrInvalidArgument)
}
