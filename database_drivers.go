//go:build !test

// This file wires in heavyweight SQL drivers only for production builds.
// go test/go vet can exclude it via the build tag.
package main

import "timeslider-choropleth/pkg/database/drivers"

func init() {
	// Touch the drivers package so its init functions register SQL
	// backends before the application opens database connections.
	drivers.Ready()
}
