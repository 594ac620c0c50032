//go:build cgo && duckdb && linux && (amd64 || arm64)

// DuckDB is only enabled for Linux builds with CGO so cross compilation stays
// predictable. Requires build tag: -tags duckdb.
//
//	CGO_ENABLED=1 GOOS=linux GOARCH=amd64 go build -tags duckdb
//	go build -tags duckdb -o timeslider-choropleth
//
// Analysts can then point -db-type duckdb at a warehouse file holding the
// style_snapshots and feature_values tables.
package drivers

import (
	_ "github.com/marcboeker/go-duckdb"
)
