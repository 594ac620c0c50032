package database

// Snapshot is one row of style_snapshots: the paint for a feature at an epoch second.
type Snapshot struct {
	Layer     string  `json:"layer"`
	FeatureID string  `json:"featureID"`
	TS        int64   `json:"ts"`
	Color     string  `json:"color"`
	Opacity   float64 `json:"opacity"`
}

// Value is one row of feature_values, colored later by a color ramp.
type Value struct {
	Layer     string  `json:"layer"`
	FeatureID string  `json:"featureID"`
	TS        int64   `json:"ts"`
	Value     float64 `json:"value"`
}

// TimeRange limits loaded rows to From <= ts <= To. Zero bounds are open.
type TimeRange struct {
	From int64
	To   int64
}
