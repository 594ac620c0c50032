package database

import (
	"context"
	"fmt"
	"strings"
)

// InitSchema creates the source tables when they are missing. Column types
// follow each engine's vocabulary; the table layout is shared.
func (db *Database) InitSchema(ctx context.Context) error {
	var intType, floatType string
	switch db.Driver {
	case "pgx", "duckdb":
		intType, floatType = "BIGINT", "DOUBLE PRECISION"
		if db.Driver == "duckdb" {
			floatType = "DOUBLE"
		}
	case "sqlite", "chai":
		intType, floatType = "INTEGER", "REAL"
	case "genji":
		intType, floatType = "INTEGER", "DOUBLE"
	default:
		return fmt.Errorf("unsupported database type: %s", db.Driver)
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS style_snapshots (
  layer      TEXT,
  feature_id TEXT,
  ts         {INT},
  color      TEXT,
  opacity    {FLOAT}
)`,
		`CREATE TABLE IF NOT EXISTS feature_values (
  layer      TEXT,
  feature_id TEXT,
  ts         {INT},
  value      {FLOAT}
)`,
		`CREATE TABLE IF NOT EXISTS timestamp_labels (
  layer TEXT,
  ts    {INT},
  label TEXT
)`,
	}

	r := strings.NewReplacer("{INT}", intType, "{FLOAT}", floatType)
	for _, stmt := range statements {
		if _, err := db.DB.ExecContext(ctx, r.Replace(stmt)); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
