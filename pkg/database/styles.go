package database

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"timeslider-choropleth/pkg/choropleth"
)

// LoadStyleDict reads every snapshot of layer within tr.
func (db *Database) LoadStyleDict(ctx context.Context, layer string, tr TimeRange) (choropleth.StyleDict, error) {
	query, args := db.selectFor("feature_id, ts, color, opacity", "style_snapshots", layer, tr)
	rows, err := db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load styles for %q: %w", layer, err)
	}
	defer rows.Close()

	out := make(choropleth.StyleDict)
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.FeatureID, &s.TS, &s.Color, &s.Opacity); err != nil {
			return nil, fmt.Errorf("scan style row: %w", err)
		}
		byTS := out[s.FeatureID]
		if byTS == nil {
			byTS = make(map[string]choropleth.Style)
			out[s.FeatureID] = byTS
		}
		byTS[strconv.FormatInt(s.TS, 10)] = choropleth.Style{Color: s.Color, Opacity: s.Opacity}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load styles for %q: %w", layer, err)
	}
	return out, nil
}

// LoadValues reads raw numeric values of layer within tr.
func (db *Database) LoadValues(ctx context.Context, layer string, tr TimeRange) (map[string]map[string]float64, error) {
	query, args := db.selectFor("feature_id, ts, value", "feature_values", layer, tr)
	rows, err := db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load values for %q: %w", layer, err)
	}
	defer rows.Close()

	out := make(map[string]map[string]float64)
	for rows.Next() {
		var v Value
		if err := rows.Scan(&v.FeatureID, &v.TS, &v.Value); err != nil {
			return nil, fmt.Errorf("scan value row: %w", err)
		}
		byTS := out[v.FeatureID]
		if byTS == nil {
			byTS = make(map[string]float64)
			out[v.FeatureID] = byTS
		}
		byTS[strconv.FormatInt(v.TS, 10)] = v.Value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load values for %q: %w", layer, err)
	}
	return out, nil
}

// LoadLabels reads the display label per timestamp of layer within tr.
func (db *Database) LoadLabels(ctx context.Context, layer string, tr TimeRange) (map[string]string, error) {
	query, args := db.selectFor("ts, label", "timestamp_labels", layer, tr)
	rows, err := db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load labels for %q: %w", layer, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var (
			ts    int64
			label string
		)
		if err := rows.Scan(&ts, &label); err != nil {
			return nil, fmt.Errorf("scan label row: %w", err)
		}
		out[strconv.FormatInt(ts, 10)] = label
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load labels for %q: %w", layer, err)
	}
	return out, nil
}

// selectFor builds the filtered SELECT. Only pgx needs numbered placeholders.
func (db *Database) selectFor(columns, table, layer string, tr TimeRange) (string, []any) {
	var sb strings.Builder
	args := []any{layer}
	fmt.Fprintf(&sb, "SELECT %s FROM %s WHERE layer = %s", columns, table, db.placeholder(1))
	if tr.From != 0 {
		args = append(args, tr.From)
		fmt.Fprintf(&sb, " AND ts >= %s", db.placeholder(len(args)))
	}
	if tr.To != 0 {
		args = append(args, tr.To)
		fmt.Fprintf(&sb, " AND ts <= %s", db.placeholder(len(args)))
	}
	return sb.String(), args
}

func (db *Database) placeholder(n int) string {
	if db.Driver == "pgx" {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}
