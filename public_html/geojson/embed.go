package geojson

import _ "embed"

// Districts is a six-cell grid over San Francisco with ids d1..d6. Demo mode
// and tests use it so neither needs a file on disk.
//
//go:embed districts.geojson
var Districts []byte
