package main

import (
	"strconv"
	"time"

	"timeslider-choropleth/pkg/choropleth"
	"timeslider-choropleth/pkg/colormap"
	"timeslider-choropleth/pkg/geojson"
	"timeslider-choropleth/pkg/layerconfig"
	"timeslider-choropleth/pkg/mapview"
	sample "timeslider-choropleth/public_html/geojson"
)

// Demo series: six hourly steps starting 2023-11-14 22:13:20 UTC.
const (
	demoStart = 1700000000
	demoStep  = 3600
	demoSteps = 6
)

// demoValues makes a rainfall-like series over the sample districts: a band
// of higher values that drifts east one district per hour.
func demoValues(ids []string) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(ids))
	for i, id := range ids {
		byTS := make(map[string]float64, demoSteps)
		for h := 0; h < demoSteps; h++ {
			dist := (i%3 - h%3 + 3) % 3
			byTS[strconv.Itoa(demoStart+h*demoStep)] = float64(12 - 5*dist + i/3)
		}
		out[id] = byTS
	}
	return out
}

// demoMap builds the page served when no -config is given.
func demoMap() (*mapview.Map, error) {
	fc, err := geojson.Normalize(sample.Districts)
	if err != nil {
		return nil, err
	}
	values := demoValues(fc.IDs())
	scale, err := colormap.Fit(colormap.YlOrRd, values)
	if err != nil {
		return nil, err
	}
	styles := colormap.StyleDict(values, scale, layerconfig.DefaultOpacity)

	loc, err := time.LoadLocation(choropleth.DefaultTimezone.Name)
	if err != nil {
		return nil, err
	}
	labels := layerconfig.Labels(styles.Timestamps(), nil, loc)

	layer, err := choropleth.New(fc, styles, labels,
		choropleth.WithName("Rainfall (demo)"),
		choropleth.WithHighlight(true),
	)
	if err != nil {
		return nil, err
	}

	m := mapview.New("Time slider choropleth demo")
	m.Tiles = "CartoDB positron"
	m.AddLayer(layer)
	return m, nil
}
