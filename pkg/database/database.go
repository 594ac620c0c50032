package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"runtime"
	"strings"
	"time"
)

// Database wraps the connection a style source reads from.
type Database struct {
	DB     *sql.DB // The underlying SQL database connection
	Driver string  // Normalized driver name so SQL builders can stay declarative
}

// Config holds the configuration details for opening the database.
type Config struct {
	DBType    string // sqlite, chai, genji, duckdb or pgx (PostgreSQL)
	DBPath    string // File path for file-based engines
	DBConn    string // Raw DSN for pgx; overrides the host/port fields
	DBHost    string // The host for PostgreSQL
	DBPort    int    // The port for PostgreSQL
	DBUser    string // The user for PostgreSQL
	DBPass    string // The password for PostgreSQL
	DBName    string // The name of the PostgreSQL database
	PGSSLMode string // The SSL mode for PostgreSQL
	Port      int    // HTTP port, used to name the default database file
}

// normalizeDBType trims and lowercases driver names so switch blocks do not
// miss a driver because of mixed case or stray whitespace.
func normalizeDBType(dbType string) string {
	return strings.ToLower(strings.TrimSpace(dbType))
}

// DSN resolves the data source name for the configured driver.
func DSN(config Config) (string, error) {
	driverName := normalizeDBType(config.DBType)
	switch driverName {
	case "sqlite", "chai", "genji":
		if config.DBPath != "" {
			return config.DBPath, nil
		}
		return fmt.Sprintf("styles-%d.%s", config.Port, driverName), nil
	case "duckdb":
		// файл создастся при первом открытии
		if config.DBPath != "" {
			return config.DBPath, nil
		}
		return fmt.Sprintf("styles-%d.duckdb", config.Port), nil
	case "pgx":
		if strings.TrimSpace(config.DBConn) != "" {
			return config.DBConn, nil
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.DBUser, config.DBPass, config.DBHost, config.DBPort, config.DBName, config.PGSSLMode), nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", config.DBType)
	}
}

// NewDatabase opens the database and configures connection pooling.
// Embedded engines get a single connection; they gain nothing from more.
func NewDatabase(config Config) (*Database, error) {
	driverName := normalizeDBType(config.DBType)
	dsn, err := DSN(config)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening the database: %v", err)
	}

	switch driverName {
	case "sqlite", "chai", "genji", "duckdb":
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	case "pgx":
		db.SetMaxOpenConns(4)
		db.SetConnMaxIdleTime(2 * time.Minute)
	}

	// Cheap liveness probe with timeout so we don't hang at startup
	{
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("error connecting to the database: %v", err)
		}
	}

	switch driverName {
	case "sqlite":
		tuneCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := tuneConnection(tuneCtx, db, sqlitePragmas, log.Printf); err != nil {
			log.Printf("sqlite tuning skipped: %v", err)
		}
		cancel()
	case "duckdb":
		tuneCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := tuneConnection(tuneCtx, db, duckDBPragmas(), log.Printf); err != nil {
			log.Printf("duckdb tuning skipped: %v", err)
		}
		cancel()
	}

	log.Printf("Using database driver: %s", driverName)
	return Wrap(db, driverName), nil
}

// Wrap adopts an already open connection, e.g. one owned by the caller.
func Wrap(db *sql.DB, driver string) *Database {
	return &Database{DB: db, Driver: normalizeDBType(driver)}
}

// Close releases the connection pool.
func (db *Database) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	return db.DB.Close()
}

type pragma struct {
	label     string
	query     string
	expectRow bool
}

// Read-mostly workload: WAL lets the page server read while an operator
// refreshes the tables from another process.
var sqlitePragmas = []pragma{
	{label: "journal_mode", query: "PRAGMA journal_mode=WAL;", expectRow: true},
	{label: "synchronous", query: "PRAGMA synchronous=NORMAL;"},
	{label: "temp_store", query: "PRAGMA temp_store=MEMORY;"},
	{label: "busy_timeout", query: "PRAGMA busy_timeout=5000;"},
}

func duckDBPragmas() []pragma {
	threads := runtime.NumCPU()
	if threads < 1 {
		threads = 1
	}
	return []pragma{{label: "threads", query: fmt.Sprintf("PRAGMA threads=%d;", threads)}}
}

// tuneConnection applies the steps in order and stops at the first failure.
func tuneConnection(ctx context.Context, db *sql.DB, steps []pragma, logf func(string, ...any)) error {
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if step.expectRow {
			var mode string
			if err := db.QueryRowContext(ctx, step.query).Scan(&mode); err != nil {
				return fmt.Errorf("apply %s: %w", step.label, err)
			}
			logf("tuning %s -> %s", step.label, mode)
			continue
		}
		if _, err := db.ExecContext(ctx, step.query); err != nil {
			return fmt.Errorf("apply %s: %w", step.label, err)
		}
		logf("tuning %s applied", step.label)
	}
	return nil
}
