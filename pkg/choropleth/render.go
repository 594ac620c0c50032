package choropleth

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"text/template"
)

//go:embed timeslider.js.tmpl
var scriptSource string

var scriptTmpl = template.Must(template.New("timeslider.js").Parse(scriptSource))

var jsIdent = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// scriptData carries pre-serialized literals. json.Marshal escapes <, > and &
// so none of the values can close the surrounding <script> element.
type scriptData struct {
	Element      string
	Map          string
	Data         string
	Timestamps   string
	StyleDict    string
	Labels       string
	FeatureIDs   string
	TZName       string
	TZAbbrev     string
	StoreBackend string
	StoreKey     string
	SliderID     string
	ValueID      string
	PathPrefix   string
	Highlight    bool
	Show         bool
}

// Render writes the layer script. mapName is the JavaScript variable of the
// host Leaflet map and must be a plain identifier.
func (c *TimeSliderChoropleth) Render(w io.Writer, mapName string) error {
	if !jsIdent.MatchString(mapName) {
		return fmt.Errorf("%w: render %s: map name %q is not a JavaScript identifier", ErrInvalidArgument, c.element, mapName)
	}

	d := scriptData{
		Element:   c.element,
		Map:       mapName,
		Highlight: c.highlight,
		Show:      c.layer.Show,
	}
	literals := []struct {
		dst *string
		v   any
	}{
		{&d.Data, c.data},
		{&d.Timestamps, c.timestamps},
		{&d.StyleDict, c.styles},
		{&d.Labels, c.labels},
		{&d.FeatureIDs, c.data.IDs()},
		{&d.TZName, c.tz.Name},
		{&d.TZAbbrev, c.tz.Abbrev},
		{&d.StoreBackend, c.store.Backend},
		{&d.StoreKey, c.store.Key},
		{&d.SliderID, "slider-" + c.element},
		{&d.ValueID, "slider-value-" + c.element},
		{&d.PathPrefix, c.element + "-feature-"},
	}
	for _, l := range literals {
		b, err := json.Marshal(l.v)
		if err != nil {
			return fmt.Errorf("render %s: %w", c.element, err)
		}
		*l.dst = string(b)
	}

	if err := scriptTmpl.Execute(w, d); err != nil {
		return fmt.Errorf("render %s: %w", c.element, err)
	}
	return nil
}
