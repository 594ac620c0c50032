// Package geojson normalizes the many shapes callers use for geographic
// input into a single FeatureCollection whose features all carry a string id.
//
// Geometry coordinates stay as raw JSON: the map layer only embeds them in
// the emitted page, so decoding every ring would cost memory for nothing.
package geojson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidGeoJSON marks input that cannot be turned into a feature collection.
var ErrInvalidGeoJSON = errors.New("invalid geojson")

// Geometry keeps coordinates undecoded so they round-trip byte for byte.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates,omitempty"`
	Geometries  []Geometry      `json:"geometries,omitempty"`
}

// Feature is a single region. ID is always a string after normalization.
type Feature struct {
	Type       string         `json:"type"`
	ID         string         `json:"id,omitempty"`
	Geometry   *Geometry      `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// UnmarshalJSON accepts numeric and string ids alike.
func (f *Feature) UnmarshalJSON(b []byte) error {
	type plain Feature
	var raw struct {
		plain
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	id, err := idFromRaw(raw.ID)
	if err != nil {
		return err
	}
	*f = Feature(raw.plain)
	f.ID = id
	return nil
}

// FeatureCollection is the normalized form handed to map layers.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Bounds is a lat/lon bounding box.
type Bounds struct {
	MinLat, MinLon float64
	MaxLat, MaxLon float64
}

// Extend grows b so that it also covers o.
func (b Bounds) Extend(o Bounds) Bounds {
	return Bounds{
		MinLat: math.Min(b.MinLat, o.MinLat),
		MinLon: math.Min(b.MinLon, o.MinLon),
		MaxLat: math.Max(b.MaxLat, o.MaxLat),
		MaxLon: math.Max(b.MaxLon, o.MaxLon),
	}
}

type normalizeConfig struct {
	idProperty string
}

// NormalizeOption tweaks Normalize.
type NormalizeOption func(*normalizeConfig)

// WithIDProperty fills a missing feature id from the named property.
func WithIDProperty(key string) NormalizeOption {
	return func(c *normalizeConfig) { c.idProperty = key }
}

var geometryTypes = map[string]bool{
	"Point":              true,
	"MultiPoint":         true,
	"LineString":         true,
	"MultiLineString":    true,
	"Polygon":            true,
	"MultiPolygon":       true,
	"GeometryCollection": true,
}

// Normalize turns data into a fresh FeatureCollection. Accepted inputs are
// collections, features, feature slices, raw JSON ([]byte, json.RawMessage,
// string), an io.Reader yielding JSON, or any value that marshals to GeoJSON.
// The result never aliases the caller's value.
func Normalize(data any, opts ...NormalizeOption) (*FeatureCollection, error) {
	var cfg normalizeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	raw, err := rawJSON(data)
	if err != nil {
		return nil, err
	}
	fc, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if err := fc.assignIDs(cfg.idProperty); err != nil {
		return nil, err
	}
	return fc, nil
}

func rawJSON(data any) ([]byte, error) {
	switch v := data.(type) {
	case nil:
		return nil, fmt.Errorf("%w: no data", ErrInvalidGeoJSON)
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	case string:
		return []byte(v), nil
	case io.Reader:
		b, err := io.ReadAll(v)
		if err != nil {
			return nil, fmt.Errorf("read geojson: %w", err)
		}
		return b, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGeoJSON, err)
		}
		return b, nil
	}
}

func decode(raw []byte) (*FeatureCollection, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidGeoJSON)
	}

	if raw[0] == '[' {
		var features []Feature
		if err := json.Unmarshal(raw, &features); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGeoJSON, err)
		}
		return &FeatureCollection{Type: "FeatureCollection", Features: features}, nil
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeoJSON, err)
	}

	switch {
	case head.Type == "FeatureCollection":
		var fc FeatureCollection
		if err := json.Unmarshal(raw, &fc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGeoJSON, err)
		}
		return &fc, nil
	case head.Type == "Feature":
		var f Feature
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGeoJSON, err)
		}
		return &FeatureCollection{Type: "FeatureCollection", Features: []Feature{f}}, nil
	case geometryTypes[head.Type]:
		var g Geometry
		if err := json.Unmarshal(raw, &g); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGeoJSON, err)
		}
		f := Feature{Type: "Feature", Geometry: &g, Properties: map[string]any{}}
		return &FeatureCollection{Type: "FeatureCollection", Features: []Feature{f}}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported type %q", ErrInvalidGeoJSON, head.Type)
	}
}

// assignIDs makes every feature addressable. A bare geometry wrapped into a
// single feature gets id "0" so callers can still style it.
func (fc *FeatureCollection) assignIDs(idProperty string) error {
	fc.Type = "FeatureCollection"
	if fc.Features == nil {
		fc.Features = []Feature{}
	}

	seen := make(map[string]int, len(fc.Features))
	for i := range fc.Features {
		f := &fc.Features[i]
		f.Type = "Feature"
		if f.Properties == nil {
			f.Properties = map[string]any{}
		}
		if f.ID == "" && idProperty != "" {
			f.ID = propertyID(f.Properties[idProperty])
		}
		if f.ID == "" && len(fc.Features) == 1 {
			f.ID = "0"
		}
		if f.ID == "" {
			return fmt.Errorf("%w: feature %d has no id", ErrInvalidGeoJSON, i)
		}
		if prev, dup := seen[f.ID]; dup {
			return fmt.Errorf("%w: features %d and %d share id %q", ErrInvalidGeoJSON, prev, i, f.ID)
		}
		seen[f.ID] = i
	}
	return nil
}

// IDs lists feature ids in document order.
func (fc *FeatureCollection) IDs() []string {
	out := make([]string, 0, len(fc.Features))
	for _, f := range fc.Features {
		out = append(out, f.ID)
	}
	return out
}

// Bounds returns the box around every coordinate in the collection.
// ok is false when the collection holds no positions.
func (fc *FeatureCollection) Bounds() (b Bounds, ok bool) {
	b = Bounds{MinLat: math.Inf(1), MinLon: math.Inf(1), MaxLat: math.Inf(-1), MaxLon: math.Inf(-1)}
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		walkGeometry(*f.Geometry, func(lon, lat float64) {
			ok = true
			b.MinLat = math.Min(b.MinLat, lat)
			b.MaxLat = math.Max(b.MaxLat, lat)
			b.MinLon = math.Min(b.MinLon, lon)
			b.MaxLon = math.Max(b.MaxLon, lon)
		})
	}
	if !ok {
		return Bounds{}, false
	}
	return b, true
}

func walkGeometry(g Geometry, visit func(lon, lat float64)) {
	for _, child := range g.Geometries {
		walkGeometry(child, visit)
	}
	if len(g.Coordinates) == 0 {
		return
	}
	var coords any
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return
	}
	walkCoords(coords, visit)
}

func walkCoords(v any, visit func(lon, lat float64)) {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return
	}
	if lon, ok := arr[0].(float64); ok {
		if len(arr) < 2 {
			return
		}
		if lat, ok := arr[1].(float64); ok {
			visit(lon, lat)
		}
		return
	}
	for _, child := range arr {
		walkCoords(child, visit)
	}
}

func idFromRaw(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("%w: feature id %s is neither string nor number", ErrInvalidGeoJSON, raw)
	}
	return n.String(), nil
}

func propertyID(v any) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case json.Number:
		return id.String()
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	default:
		return ""
	}
}

// Clone returns a deep copy of the collection.
func (fc *FeatureCollection) Clone() *FeatureCollection {
	out := &FeatureCollection{Type: fc.Type, Features: make([]Feature, len(fc.Features))}
	for i, f := range fc.Features {
		cp := Feature{Type: f.Type, ID: f.ID}
		if f.Geometry != nil {
			g := cloneGeometry(*f.Geometry)
			cp.Geometry = &g
		}
		if f.Properties != nil {
			cp.Properties = cloneValue(f.Properties).(map[string]any)
		}
		out.Features[i] = cp
	}
	return out
}

func cloneGeometry(g Geometry) Geometry {
	out := Geometry{Type: g.Type}
	if g.Coordinates != nil {
		out.Coordinates = append(json.RawMessage(nil), g.Coordinates...)
	}
	for _, child := range g.Geometries {
		out.Geometries = append(out.Geometries, cloneGeometry(child))
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = cloneValue(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = cloneValue(val)
		}
		return s
	default:
		return v
	}
}
