// Package mapview assembles a Leaflet page that hosts choropleth layers.
package mapview

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/google/uuid"

	"timeslider-choropleth/pkg/choropleth"
	"timeslider-choropleth/pkg/geojson"
)

const (
	leafletJS  = "https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"
	leafletCSS = "https://unpkg.com/leaflet@1.9.4/dist/leaflet.css"
)

// Tile is a base layer definition.
type Tile struct {
	URL         string
	Attribution string
}

// Tiles lists the base layers a map may start with.
var Tiles = map[string]Tile{
	"OpenStreetMap": {
		URL:         "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
		Attribution: "&copy; OpenStreetMap contributors",
	},
	"Google Satellite": {
		URL:         "https://mt1.google.com/vt/lyrs=s&x={x}&y={y}&z={z}",
		Attribution: "&copy; Google",
	},
	"CartoDB positron": {
		URL:         "https://{s}.basemaps.cartocdn.com/light_all/{z}/{x}/{y}.png",
		Attribution: "&copy; OpenStreetMap contributors &copy; CARTO",
	},
}

// Layer is what the map needs from a child layer.
type Layer interface {
	ElementName() string
	Layer() choropleth.Layer
	JS() []choropleth.Asset
	Render(w io.Writer, mapName string) error
	Bounds() (geojson.Bounds, bool)
}

//go:embed map.html
var pageSource string

var pageTmpl = template.Must(template.New("map.html").Parse(pageSource))

// Map is the host page. A nil Center fits the view to the layers.
type Map struct {
	Title  string
	Center *[2]float64 // lat, lon
	Zoom   int
	Tiles  string

	name   string
	tile   string
	layers []Layer
}

// New returns a map with OpenStreetMap tiles at zoom 10.
func New(title string) *Map {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return &Map{
		Title: title,
		Zoom:  10,
		Tiles: "OpenStreetMap",
		name:  "map_" + id,
		tile:  "tile_layer_" + id,
	}
}

// Name is the JavaScript variable holding the Leaflet map.
func (m *Map) Name() string { return m.name }

// AddLayer appends a layer. Layers render in insertion order.
func (m *Map) AddLayer(l Layer) { m.layers = append(m.layers, l) }

// Layers returns the attached layers.
func (m *Map) Layers() []Layer { return append([]Layer(nil), m.layers...) }

// Layer finds a layer by its control name.
func (m *Map) Layer(name string) (Layer, bool) {
	for _, l := range m.layers {
		if l.Layer().Name == name {
			return l, true
		}
	}
	return nil, false
}

type pageData struct {
	Title           string
	Name            string
	NameJS          template.JS
	TilesJS         template.JS
	TileURL         string
	TileAttribution string
	LeafletJS       string
	LeafletCSS      string
	Assets          []choropleth.Asset
	HasCenter       bool
	CenterLat       float64
	CenterLon       float64
	Zoom            int
	HasBounds       bool
	Bounds          geojson.Bounds
	Scripts         template.JS
	Control         bool
	BaseJS          template.JS
	OverlaysJS      template.JS
}

// Render writes the full HTML page.
func (m *Map) Render(w io.Writer) error {
	tile, ok := Tiles[m.Tiles]
	if !ok {
		return fmt.Errorf("mapview: unknown tiles %q", m.Tiles)
	}

	d := pageData{
		Title:           m.Title,
		Name:            m.name,
		NameJS:          template.JS(m.name),
		TilesJS:         template.JS(m.tile),
		TileURL:         tile.URL,
		TileAttribution: tile.Attribution,
		LeafletJS:       leafletJS,
		LeafletCSS:      leafletCSS,
		Zoom:            m.Zoom,
	}
	if m.Center != nil {
		d.HasCenter = true
		d.CenterLat, d.CenterLon = m.Center[0], m.Center[1]
	}

	seen := make(map[string]bool)
	base := []string{jsEntry(m.Tiles, m.tile)}
	var overlays []string
	var scripts bytes.Buffer
	for _, l := range m.layers {
		for _, a := range l.JS() {
			if !seen[a.Name] {
				seen[a.Name] = true
				d.Assets = append(d.Assets, a)
			}
		}
		if b, ok := l.Bounds(); ok {
			if d.HasBounds {
				d.Bounds = d.Bounds.Extend(b)
			} else {
				d.Bounds, d.HasBounds = b, true
			}
		}
		if err := l.Render(&scripts, m.name); err != nil {
			return err
		}
		scripts.WriteByte('\n')

		meta := l.Layer()
		if !meta.Control {
			continue
		}
		d.Control = true
		if meta.Overlay {
			overlays = append(overlays, jsEntry(meta.Name, l.ElementName()))
		} else {
			base = append(base, jsEntry(meta.Name, l.ElementName()))
		}
	}
	d.Scripts = template.JS(scripts.String())
	d.BaseJS = template.JS("{" + strings.Join(base, ", ") + "}")
	d.OverlaysJS = template.JS("{" + strings.Join(overlays, ", ") + "}")

	return pageTmpl.Execute(w, d)
}

// jsEntry renders `"label": ident` with the label JSON-escaped.
func jsEntry(label, ident string) string {
	b, _ := json.Marshal(label)
	return string(b) + ": " + ident
}
