// Package layerconfig reads map definitions written in HCL and assembles them
// into a renderable map.
//
//	map {
//	  title = "Rainfall"
//	  tiles = "CartoDB positron"
//	}
//
//	layer "rain" {
//	  data   = "districts.geojson"
//	  styles = file("rain-styles.json")
//	  labels = ["Mon", "Tue"]
//	}
//
//	layer "pm25" {
//	  data   = "districts.geojson"
//	  source = "database"
//	  colors = ["#ffffb2", "#bd0026"]
//	  from   = epoch("2024-01-01T00:00:00Z")
//	}
package layerconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// ErrNoLayers is returned for a file without any layer block.
var ErrNoLayers = errors.New("layerconfig: no layer blocks")

// Config is a decoded definition file.
type Config struct {
	Map    *MapBlock    `hcl:"map,block"`
	Layers []LayerBlock `hcl:"layer,block"`

	// BaseDir resolves relative data paths. Set by Load.
	BaseDir string
}

// MapBlock configures the host page.
type MapBlock struct {
	Title  *string   `hcl:"title,optional"`
	Center []float64 `hcl:"center,optional"` // [lat, lon]
	Zoom   *int      `hcl:"zoom,optional"`
	Tiles  *string   `hcl:"tiles,optional"`
}

// LayerBlock is one time slider layer. Exactly one style origin applies:
// styles (JSON text), values (inline numbers colored by colors) or
// source = "database".
type LayerBlock struct {
	Name       string  `hcl:"name,label"`
	Data       string  `hcl:"data"`
	IDProperty *string `hcl:"id_property,optional"`

	Styles *string        `hcl:"styles,optional"`
	Values *hcl.Attribute `hcl:"values,optional"`
	Source *string        `hcl:"source,optional"`

	Colors  []string `hcl:"colors,optional"`
	Opacity *float64 `hcl:"opacity,optional"`
	Labels  []string `hcl:"labels,optional"`
	From    *int64   `hcl:"from,optional"`
	To      *int64   `hcl:"to,optional"`

	Overlay   *bool `hcl:"overlay,optional"`
	Control   *bool `hcl:"control,optional"`
	Show      *bool `hcl:"show,optional"`
	Highlight *bool `hcl:"highlight,optional"`

	Timezone       *string `hcl:"timezone,optional"`
	TimezoneAbbrev *string `hcl:"timezone_abbrev,optional"`
	Storage        *string `hcl:"storage,optional"`
	StorageKey     *string `hcl:"storage_key,optional"`

	values map[string]map[string]float64
}

// Load reads and decodes path. Relative paths inside the file resolve
// against the file's directory.
func Load(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(src, path, filepath.Dir(path))
}

// Parse decodes HCL source. filename is only used in diagnostics.
func Parse(src []byte, filename, baseDir string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL: %s", diags.Error())
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{},
		Functions: map[string]function.Function{
			"epoch": epochFunc,
			"file":  fileFunc(baseDir),
		},
	}

	var cfg Config
	diags = gohcl.DecodeBody(file.Body, evalCtx, &cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL body: %s", diags.Error())
	}
	cfg.BaseDir = baseDir

	if len(cfg.Layers) == 0 {
		return nil, ErrNoLayers
	}
	seen := make(map[string]bool, len(cfg.Layers))
	for i := range cfg.Layers {
		l := &cfg.Layers[i]
		if seen[l.Name] {
			return nil, fmt.Errorf("layer %q declared twice", l.Name)
		}
		seen[l.Name] = true
		if err := l.decodeValues(evalCtx); err != nil {
			return nil, err
		}
		if err := l.check(); err != nil {
			return nil, err
		}
	}
	if m := cfg.Map; m != nil && m.Center != nil && len(m.Center) != 2 {
		return nil, fmt.Errorf("map center must be [lat, lon], got %d numbers", len(m.Center))
	}
	return &cfg, nil
}

func (l *LayerBlock) check() error {
	origins := 0
	if l.Styles != nil {
		origins++
	}
	if l.values != nil {
		origins++
	}
	if l.Source != nil {
		if *l.Source != "database" {
			return fmt.Errorf("layer %q: unknown source %q", l.Name, *l.Source)
		}
		origins++
	}
	if origins != 1 {
		return fmt.Errorf("layer %q: set exactly one of styles, values or source", l.Name)
	}
	if l.From != nil && l.To != nil && *l.From > *l.To {
		return fmt.Errorf("layer %q: from is after to", l.Name)
	}
	return nil
}

// decodeValues evaluates values = { feature = { "ts" = number } }.
func (l *LayerBlock) decodeValues(evalCtx *hcl.EvalContext) error {
	if l.Values == nil {
		return nil
	}
	val, diags := l.Values.Expr.Value(evalCtx)
	if diags.HasErrors() {
		return fmt.Errorf("failed to evaluate values: %s", diags.Error())
	}
	if val.IsNull() || !(val.Type().IsObjectType() || val.Type().IsMapType()) {
		return fmt.Errorf("layer %q: values must be an object", l.Name)
	}
	out := make(map[string]map[string]float64)
	for id, byTS := range val.AsValueMap() {
		if byTS.IsNull() || !(byTS.Type().IsObjectType() || byTS.Type().IsMapType()) {
			return fmt.Errorf("layer %q: values for %q must be an object", l.Name, id)
		}
		inner := make(map[string]float64)
		for ts, v := range byTS.AsValueMap() {
			if v.IsNull() || v.Type() != cty.Number {
				return fmt.Errorf("layer %q: value %s/%s must be a number", l.Name, id, ts)
			}
			f, _ := v.AsBigFloat().Float64()
			inner[ts] = f
		}
		out[id] = inner
	}
	l.values = out
	return nil
}

// epochFunc converts an RFC 3339 timestamp into Unix seconds, the timestamp
// unit used by style keys.
var epochFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "timestamp", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.Number),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		t, err := time.Parse(time.RFC3339, args[0].AsString())
		if err != nil {
			return cty.NilVal, err
		}
		return cty.NumberIntVal(t.Unix()), nil
	},
})

// fileFunc reads a file relative to baseDir and returns its contents.
func fileFunc(baseDir string) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "path", Type: cty.String},
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			b, err := os.ReadFile(resolve(baseDir, args[0].AsString()))
			if err != nil {
				return cty.NilVal, err
			}
			return cty.StringVal(string(b)), nil
		},
	})
}

func resolve(baseDir, p string) string {
	if filepath.IsAbs(p) || baseDir == "" {
		return p
	}
	return filepath.Join(baseDir, p)
}
