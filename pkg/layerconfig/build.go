package layerconfig

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"timeslider-choropleth/pkg/choropleth"
	"timeslider-choropleth/pkg/colormap"
	"timeslider-choropleth/pkg/database"
	"timeslider-choropleth/pkg/logger"
	"timeslider-choropleth/pkg/mapview"
)

// DefaultTitle is used when the map block has no title.
const DefaultTitle = "Time slider choropleth"

// DefaultOpacity applies to layers colored from numeric values.
const DefaultOpacity = 0.7

// LabelLayout formats epoch-second timestamps when no label is configured.
const LabelLayout = "2006-01-02 15:04"

var buildSeq atomic.Uint64

// jobID names the logger buffer of one layer in one build. Builds can run
// concurrently when the page cache is off, so each gets its own sequence.
func jobID(layer string, build uint64) string {
	return fmt.Sprintf("layer:%s#%d", layer, build)
}

// Build turns cfg into a renderable map. db may be nil unless a layer reads
// from the database. Per-layer detail goes through the buffered logger and is
// only printed when that layer fails.
func Build(ctx context.Context, cfg *Config, db *database.Database) (*mapview.Map, error) {
	if cfg == nil || len(cfg.Layers) == 0 {
		return nil, ErrNoLayers
	}

	m := mapview.New(DefaultTitle)
	if mb := cfg.Map; mb != nil {
		if mb.Title != nil {
			m.Title = *mb.Title
		}
		if len(mb.Center) == 2 {
			m.Center = &[2]float64{mb.Center[0], mb.Center[1]}
		}
		if mb.Zoom != nil {
			m.Zoom = *mb.Zoom
		}
		if mb.Tiles != nil {
			if _, ok := mapview.Tiles[*mb.Tiles]; !ok {
				return nil, fmt.Errorf("unknown tiles %q", *mb.Tiles)
			}
			m.Tiles = *mb.Tiles
		}
	}

	seq := buildSeq.Add(1)
	for i := range cfg.Layers {
		l := &cfg.Layers[i]
		job := jobID(l.Name, seq)
		logger.Begin(job)
		layer, err := buildLayer(ctx, cfg.BaseDir, l, db, job)
		if err != nil {
			logger.FlushError(job, err)
			return nil, fmt.Errorf("layer %q: %w", l.Name, err)
		}
		logger.Success(job, fmt.Sprintf("%d features, %d timestamps",
			len(layer.Data().Features), len(layer.Timestamps())))
		m.AddLayer(layer)
	}
	return m, nil
}

func buildLayer(ctx context.Context, baseDir string, l *LayerBlock, db *database.Database, jobID string) (*choropleth.TimeSliderChoropleth, error) {
	dataPath := resolve(baseDir, l.Data)
	data, err := os.ReadFile(dataPath)
	if err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}
	logL(jobID, "Data", "%s (%d bytes)", dataPath, len(data))

	tz := choropleth.DefaultTimezone
	if l.Timezone != nil {
		tz = choropleth.Timezone{Name: *l.Timezone}
	}
	if l.TimezoneAbbrev != nil {
		tz.Abbrev = *l.TimezoneAbbrev
	}
	loc, err := time.LoadLocation(tz.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q", choropleth.ErrInvalidArgument, tz.Name)
	}
	if tz.Abbrev == "" {
		tz.Abbrev, _ = time.Now().In(loc).Zone()
	}

	styles, known, err := resolveStyles(ctx, l, db, jobID)
	if err != nil {
		return nil, err
	}

	labels := l.Labels
	if labels == nil {
		labels = Labels(styles.Timestamps(), known, loc)
		logL(jobID, "Labels", "derived %d labels", len(labels))
	}

	store := choropleth.DefaultStore
	if l.Storage != nil {
		store.Backend = *l.Storage
	}
	if l.StorageKey != nil {
		store.Key = *l.StorageKey
	}

	opts := []choropleth.Option{
		choropleth.WithName(l.Name),
		choropleth.WithTimezone(tz.Name, tz.Abbrev),
		choropleth.WithStore(store),
	}
	if l.Overlay != nil {
		opts = append(opts, choropleth.WithOverlay(*l.Overlay))
	}
	if l.Control != nil {
		opts = append(opts, choropleth.WithControl(*l.Control))
	}
	if l.Show != nil {
		opts = append(opts, choropleth.WithShow(*l.Show))
	}
	if l.Highlight != nil {
		opts = append(opts, choropleth.WithHighlight(*l.Highlight))
	}
	if l.IDProperty != nil {
		opts = append(opts, choropleth.WithIDProperty(*l.IDProperty))
	}
	return choropleth.New(data, styles, labels, opts...)
}

// resolveStyles returns the layer's styles and any labels its origin knows.
func resolveStyles(ctx context.Context, l *LayerBlock, db *database.Database, jobID string) (choropleth.StyleDict, map[string]string, error) {
	switch {
	case l.Styles != nil:
		styles, err := choropleth.ParseStyleDict(*l.Styles)
		if err != nil {
			return nil, nil, err
		}
		logL(jobID, "Styles", "inline styles for %d features", len(styles))
		return styles, nil, nil

	case l.values != nil:
		styles, err := colorValues(l, l.values)
		if err != nil {
			return nil, nil, err
		}
		logL(jobID, "Styles", "colored %d features from inline values", len(styles))
		return styles, nil, nil
	}

	if db == nil {
		return nil, nil, errors.New("source = \"database\" needs a database connection")
	}
	tr := database.TimeRange{}
	if l.From != nil {
		tr.From = *l.From
	}
	if l.To != nil {
		tr.To = *l.To
	}
	styles, err := db.LoadStyleDict(ctx, l.Name, tr)
	if err != nil {
		return nil, nil, err
	}
	if len(styles) == 0 {
		values, err := db.LoadValues(ctx, l.Name, tr)
		if err != nil {
			return nil, nil, err
		}
		if len(values) == 0 {
			return nil, nil, fmt.Errorf("no rows for layer in %s", db.Driver)
		}
		if styles, err = colorValues(l, values); err != nil {
			return nil, nil, err
		}
		logL(jobID, "DB", "colored %d features from %s values", len(styles), db.Driver)
	} else {
		logL(jobID, "DB", "loaded %d features from %s", len(styles), db.Driver)
	}
	known, err := db.LoadLabels(ctx, l.Name, tr)
	if err != nil {
		return nil, nil, err
	}
	return styles, known, nil
}

// logL formats "[job][component] ..." and hands it to the buffered logger,
// which prints it only if the layer fails.
func logL(jobID, component, format string, v ...any) {
	logger.Append(jobID, fmt.Sprintf("[%-6s][%s] %s", jobID, component, fmt.Sprintf(format, v...)))
}

func colorValues(l *LayerBlock, values map[string]map[string]float64) (choropleth.StyleDict, error) {
	colors := l.Colors
	if len(colors) == 0 {
		colors = colormap.YlOrRd
	}
	scale, err := colormap.Fit(colors, values)
	if err != nil {
		return nil, err
	}
	opacity := DefaultOpacity
	if l.Opacity != nil {
		opacity = *l.Opacity
	}
	return colormap.StyleDict(values, scale, opacity), nil
}

// Labels returns one label per timestamp. Known labels win; epoch-second
// timestamps are formatted in loc; anything else is shown as is.
func Labels(timestamps []string, known map[string]string, loc *time.Location) []string {
	out := make([]string, len(timestamps))
	for i, ts := range timestamps {
		if label, ok := known[ts]; ok && label != "" {
			out[i] = label
			continue
		}
		if sec, err := strconv.ParseInt(ts, 10, 64); err == nil {
			out[i] = time.Unix(sec, 0).In(loc).Format(LabelLayout)
			continue
		}
		out[i] = ts
	}
	return out
}
