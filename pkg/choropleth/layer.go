// Package choropleth builds the time-slider choropleth layer: it validates a
// per-feature, per-timestamp style dictionary against a feature collection,
// derives the ordered set of timestamps that drive the slider, and renders
// the browser script that repaints features as the slider moves.
//
// All checks happen once in New. A constructed layer is immutable, so the
// same value may be rendered from many goroutines.
package choropleth

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // timezone names validate without a system zoneinfo

	"github.com/google/uuid"

	"timeslider-choropleth/pkg/geojson"
)

// Layer is the registration metadata the host map uses for layer control.
type Layer struct {
	Name    string
	Overlay bool
	Control bool
	Show    bool
}

// Asset is a client-side library the host page must load.
type Asset struct {
	Name string
	URL  string
}

// DefaultJS lists the libraries the emitted script relies on besides Leaflet.
var DefaultJS = []Asset{
	{Name: "d3v4", URL: "https://d3js.org/d3.v4.min.js"},
}

// StateStore names the browser key-value store that remembers the slider
// position between page loads.
type StateStore struct {
	Backend string // "localStorage" or "sessionStorage"
	Key     string
}

// DefaultStore is the store used unless WithStore overrides it.
var DefaultStore = StateStore{Backend: "localStorage", Key: "current_slider_value"}

// Timezone controls how slider timestamps are shown to the reader.
type Timezone struct {
	Name   string // IANA name passed to toLocaleString
	Abbrev string // suffix printed after the time
}

// DefaultTimezone is Pacific time.
var DefaultTimezone = Timezone{Name: "America/Los_Angeles", Abbrev: "PST"}

// TimeSliderChoropleth is a validated, render-ready layer.
type TimeSliderChoropleth struct {
	element    string
	layer      Layer
	data       *geojson.FeatureCollection
	styles     StyleDict
	timestamps []string
	labels     []string
	highlight  bool
	tz         Timezone
	store      StateStore
}

type options struct {
	layer     Layer
	highlight bool
	tz        Timezone
	store     StateStore
	idProp    string
}

// Option configures New.
type Option func(*options)

// WithName sets the name shown in the layer control.
func WithName(name string) Option { return func(o *options) { o.layer.Name = name } }

// WithOverlay marks the layer as an optional overlay (true) or a base layer.
func WithOverlay(v bool) Option { return func(o *options) { o.layer.Overlay = v } }

// WithControl includes the layer in the layer control.
func WithControl(v bool) Option { return func(o *options) { o.layer.Control = v } }

// WithShow adds the layer to the map when the page opens.
func WithShow(v bool) Option { return func(o *options) { o.layer.Show = v } }

// WithHighlight enables hover emphasis and click-to-zoom.
func WithHighlight(v bool) Option { return func(o *options) { o.highlight = v } }

// WithTimezone sets the zone used to format slider dates.
func WithTimezone(name, abbrev string) Option {
	return func(o *options) { o.tz = Timezone{Name: name, Abbrev: abbrev} }
}

// WithStore replaces the browser store used to persist the slider index.
func WithStore(s StateStore) Option { return func(o *options) { o.store = s } }

// WithIDProperty fills missing feature ids from a GeoJSON property.
func WithIDProperty(key string) Option { return func(o *options) { o.idProp = key } }

// New validates its inputs and returns an immutable layer.
//
// data is anything geojson.Normalize accepts. styledict is anything
// ParseStyleDict accepts. customlbl must hold exactly one label per distinct
// timestamp; an empty slice is an error. Every failure wraps
// ErrInvalidArgument and no layer is returned.
func New(data any, styledict any, customlbl []string, opts ...Option) (*TimeSliderChoropleth, error) {
	o := options{
		layer: Layer{Overlay: true, Control: true, Show: true},
		tz:    DefaultTimezone,
		store: DefaultStore,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var normOpts []geojson.NormalizeOption
	if o.idProp != "" {
		normOpts = append(normOpts, geojson.WithIDProperty(o.idProp))
	}
	fc, err := geojson.Normalize(data, normOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	styles, err := ParseStyleDict(styledict)
	if err != nil {
		return nil, err
	}
	timestamps := styles.Timestamps()

	if len(customlbl) == 0 {
		return nil, fmt.Errorf("%w: customlbl must not be empty", ErrInvalidArgument)
	}
	if len(customlbl) != len(timestamps) {
		return nil, fmt.Errorf("%w: number of elements in customlbl (%d) must equal number of timestamps (%d)",
			ErrInvalidArgument, len(customlbl), len(timestamps))
	}

	if err := o.validate(); err != nil {
		return nil, err
	}

	element := "time_slider_choropleth_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if o.layer.Name == "" {
		o.layer.Name = element
	}

	return &TimeSliderChoropleth{
		element:    element,
		layer:      o.layer,
		data:       fc,
		styles:     styles,
		timestamps: timestamps,
		labels:     append([]string(nil), customlbl...),
		highlight:  o.highlight,
		tz:         o.tz,
		store:      o.store,
	}, nil
}

func (o options) validate() error {
	if _, err := time.LoadLocation(o.tz.Name); err != nil || o.tz.Name == "" {
		return fmt.Errorf("%w: unknown timezone %q", ErrInvalidArgument, o.tz.Name)
	}
	switch o.store.Backend {
	case "localStorage", "sessionStorage":
	default:
		return fmt.Errorf("%w: unsupported store backend %q", ErrInvalidArgument, o.store.Backend)
	}
	if strings.TrimSpace(o.store.Key) == "" {
		return fmt.Errorf("%w: store key must not be empty", ErrInvalidArgument)
	}
	return nil
}

// ElementName is the JavaScript variable that holds the Leaflet layer.
func (c *TimeSliderChoropleth) ElementName() string { return c.element }

// Name is the label shown in the layer control.
func (c *TimeSliderChoropleth) Name() string { return c.layer.Name }

// Layer returns the registration metadata.
func (c *TimeSliderChoropleth) Layer() Layer { return c.layer }

// Data returns a copy of the normalized feature collection.
func (c *TimeSliderChoropleth) Data() *geojson.FeatureCollection { return c.data.Clone() }

// StyleDict returns a copy of the validated styles.
func (c *TimeSliderChoropleth) StyleDict() StyleDict { return c.styles.Clone() }

// Timestamps returns the slider positions in order.
func (c *TimeSliderChoropleth) Timestamps() []string {
	return append([]string(nil), c.timestamps...)
}

// Labels returns the display label for each timestamp.
func (c *TimeSliderChoropleth) Labels() []string { return append([]string(nil), c.labels...) }

// Highlight reports whether hover and click handlers are attached.
func (c *TimeSliderChoropleth) Highlight() bool { return c.highlight }

// JS lists the client libraries the script needs.
func (c *TimeSliderChoropleth) JS() []Asset { return append([]Asset(nil), DefaultJS...) }

// Bounds is the extent of the layer's features.
func (c *TimeSliderChoropleth) Bounds() (geojson.Bounds, bool) { return c.data.Bounds() }
