// Package colormap turns numeric series into choropleth styles with a
// linear color ramp.
package colormap

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"timeslider-choropleth/pkg/choropleth"
)

// YlOrRd is the default five-step ramp from pale yellow to dark red.
var YlOrRd = []string{"#ffffb2", "#fecc5c", "#fd8d3c", "#f03b20", "#bd0026"}

// Linear maps [Min, Max] onto evenly spaced color stops.
type Linear struct {
	stops    []color.RGBA
	Min, Max float64
}

// NewLinear parses the hex stops. At least two are required and Min must
// not exceed Max.
func NewLinear(colors []string, min, max float64) (*Linear, error) {
	if len(colors) < 2 {
		return nil, errors.New("colormap: need at least two colors")
	}
	if math.IsNaN(min) || math.IsNaN(max) || min > max {
		return nil, fmt.Errorf("colormap: invalid range [%v, %v]", min, max)
	}
	stops := make([]color.RGBA, 0, len(colors))
	for _, c := range colors {
		rgba, err := ParseHex(c)
		if err != nil {
			return nil, err
		}
		stops = append(stops, rgba)
	}
	return &Linear{stops: stops, Min: min, Max: max}, nil
}

// Fit builds a ramp whose range spans every value in the series.
func Fit(colors []string, values map[string]map[string]float64) (*Linear, error) {
	min, max := math.Inf(1), math.Inf(-1)
	for _, byTS := range values {
		for _, v := range byTS {
			if math.IsNaN(v) {
				continue
			}
			min = math.Min(min, v)
			max = math.Max(max, v)
		}
	}
	if math.IsInf(min, 1) {
		min, max = 0, 1
	}
	return NewLinear(colors, min, max)
}

// Color returns the hex color for v. Values outside the range clamp to the
// end stops.
func (l *Linear) Color(v float64) string {
	if l.Max == l.Min || v <= l.Min || math.IsNaN(v) {
		return hex(l.stops[0])
	}
	if v >= l.Max {
		return hex(l.stops[len(l.stops)-1])
	}
	pos := (v - l.Min) / (l.Max - l.Min) * float64(len(l.stops)-1)
	i := int(pos)
	if i >= len(l.stops)-1 {
		// rounding can land exactly on the last stop for v just below Max
		return hex(l.stops[len(l.stops)-1])
	}
	frac := pos - float64(i)
	a, b := l.stops[i], l.stops[i+1]
	return hex(color.RGBA{
		R: lerp(a.R, b.R, frac),
		G: lerp(a.G, b.G, frac),
		B: lerp(a.B, b.B, frac),
		A: 0xff,
	})
}

// StyleDict colors every value with scale and a fixed opacity.
func StyleDict(values map[string]map[string]float64, scale *Linear, opacity float64) choropleth.StyleDict {
	out := make(choropleth.StyleDict, len(values))
	for id, byTS := range values {
		inner := make(map[string]choropleth.Style, len(byTS))
		for ts, v := range byTS {
			inner[ts] = choropleth.Style{Color: scale.Color(v), Opacity: opacity}
		}
		out[id] = inner
	}
	return out
}

// ParseHex reads "#rrggbb" or "#rgb".
func ParseHex(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("colormap: bad color %q", s)
	}
	n, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("colormap: bad color %q", s)
	}
	return color.RGBA{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n), A: 0xff}, nil
}

func hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
}
