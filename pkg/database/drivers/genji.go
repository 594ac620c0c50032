//go:build dragonfly || ios || freebsd || darwin || (linux && ppc64) || (linux && ppc64le) || (linux && s390x) || (linux && amd64) || (linux && mips64) || (linux && mips64le) || (linux && arm64) || android || (windows && amd64) || (windows && arm64)

package drivers

import (
	// Register the Genji driver when a binary opts into the drivers
	// package. Genji speaks a SQL dialect close enough for the style queries.
	_ "github.com/genjidb/genji/driver"
)
