package choropleth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// ErrInvalidArgument is returned for every caller-input error found while
// building a layer. Construction stops at the first offender.
var ErrInvalidArgument = errors.New("invalid argument")

// Style is the paint applied to one feature at one timestamp.
type Style struct {
	Color   string  `json:"color"`
	Opacity float64 `json:"opacity"`
}

// StyleDict maps feature id -> timestamp -> style.
type StyleDict map[string]map[string]Style

// Clone returns a deep copy.
func (d StyleDict) Clone() StyleDict {
	out := make(StyleDict, len(d))
	for id, byTS := range d {
		inner := make(map[string]Style, len(byTS))
		for ts, st := range byTS {
			inner[ts] = st
		}
		out[id] = inner
	}
	return out
}

// Timestamps is the sorted union of timestamp keys across all features.
func (d StyleDict) Timestamps() []string {
	set := make(map[string]struct{})
	for _, byTS := range d {
		for ts := range byTS {
			set[ts] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for ts := range set {
		out = append(out, ts)
	}
	SortTimestamps(out)
	return out
}

// SortTimestamps orders keys ascending. Numeric keys compare by value and
// come before non-numeric keys; everything else compares as text. Equal
// values with different spellings ("100" and "100.0") fall back to text so
// the order stays total.
//
// This differs from a plain string sort only when numeric keys have
// different widths: "99" sorts before "100" here, after it as text.
// Same-width epoch seconds order the same either way.
func SortTimestamps(ts []string) {
	sort.SliceStable(ts, func(i, j int) bool { return timestampLess(ts[i], ts[j]) })
}

func timestampLess(a, b string) bool {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	switch {
	case errA == nil && errB == nil:
		if fa != fb {
			return fa < fb
		}
		return a < b
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}

// ParseStyleDict validates v and converts it into a StyleDict. v may be a
// StyleDict, raw JSON ([]byte, json.RawMessage, string) or any value that
// marshals to JSON, such as map[string]any. The outer value, every
// per-feature value and every style record must be JSON objects.
func ParseStyleDict(v any) (StyleDict, error) {
	var raw []byte
	switch t := v.(type) {
	case StyleDict:
		return t.Clone(), nil
	case map[string]map[string]Style:
		return StyleDict(t).Clone(), nil
	case []byte:
		raw = t
	case json.RawMessage:
		raw = t
	case string:
		raw = []byte(t)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: styledict is not serializable: %v", ErrInvalidArgument, err)
		}
		raw = b
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: styledict must be a mapping, got %q", ErrInvalidArgument, truncate(raw))
	}
	return styleDictFromValue(decoded)
}

func styleDictFromValue(v any) (StyleDict, error) {
	outer, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: styledict must be a mapping, got %s", ErrInvalidArgument, describe(v))
	}

	out := make(StyleDict, len(outer))
	for _, id := range sortedKeys(outer) {
		byTS, ok := outer[id].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: each item in styledict must be a mapping, got %s for feature %q",
				ErrInvalidArgument, describe(outer[id]), id)
		}
		inner := make(map[string]Style, len(byTS))
		for _, ts := range sortedKeys(byTS) {
			st, err := styleFromValue(byTS[ts])
			if err != nil {
				return nil, fmt.Errorf("%w: feature %q at %q: %s", ErrInvalidArgument, id, ts, err)
			}
			inner[ts] = st
		}
		out[id] = inner
	}
	return out, nil
}

func styleFromValue(v any) (Style, error) {
	rec, ok := v.(map[string]any)
	if !ok {
		return Style{}, fmt.Errorf("style must be a mapping, got %s", describe(v))
	}
	var st Style
	if c, present := rec["color"]; present && c != nil {
		s, ok := c.(string)
		if !ok {
			return Style{}, fmt.Errorf("color must be a string, got %s", describe(c))
		}
		st.Color = s
	}
	if o, present := rec["opacity"]; present && o != nil {
		n, ok := o.(json.Number)
		if !ok {
			return Style{}, fmt.Errorf("opacity must be a number, got %s", describe(o))
		}
		f, err := n.Float64()
		if err != nil {
			return Style{}, fmt.Errorf("opacity %s: %v", n, err)
		}
		st.Opacity = f
	}
	return st, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// describe renders a decoded JSON value for error messages.
func describe(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return truncate(b)
}

func truncate(b []byte) string {
	const max = 80
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
