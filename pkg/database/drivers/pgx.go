package drivers

import (
	// Registers the "pgx" database/sql driver for PostgreSQL style sources.
	_ "github.com/jackc/pgx/v5/stdlib"
)
