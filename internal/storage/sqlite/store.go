package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/yegors/planereports/pkg/logger"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a looked up row does not exist
var ErrNotFound = errors.New("not found")

// Store is a SQLite-based store for position reports, airports and the
// results derived from them
type Store struct {
	db     *sql.DB
	logger *logger.Logger
}

// New opens (creating if needed) the database at dbPath
func New(dbPath string, log *logger.Logger) (*Store, error) {
	storageLogger := log.Named("sqlite")

	storageLogger.Info("Initializing SQLite storage",
		logger.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=10000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set %q: %w", pragma, err)
		}
	}

	if err := initDatabase(db, storageLogger); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:     db,
		logger: storageLogger,
	}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks the database connection
func (s *Store) Ping() error {
	return s.db.Ping()
}

// initDatabase initializes the database schema
func initDatabase(db *sql.DB, log *logger.Logger) error {
	log.Info("Initializing database schema")

	for _, stmt := range []struct {
		name string
		sql  string
	}{
		{"reports table", `
			CREATE TABLE IF NOT EXISTS reports (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				hex TEXT NOT NULL,
				flight TEXT NOT NULL DEFAULT '',
				report_epoch INTEGER NOT NULL,
				lat REAL NOT NULL,
				lon REAL NOT NULL,
				altitude REAL NOT NULL,  -- metres
				speed REAL NOT NULL,     -- km/h
				track REAL NOT NULL,
				vert_rate REAL NOT NULL, -- metres per minute
				is_gnd INTEGER NOT NULL DEFAULT 0,
				reporter TEXT NOT NULL DEFAULT ''
			)
		`},
		{"reports stream index", `CREATE INDEX IF NOT EXISTS idx_reports_stream ON reports(hex, report_epoch, id)`},
		{"reports time index", `CREATE INDEX IF NOT EXISTS idx_reports_epoch ON reports(report_epoch)`},
		{"airports table", `
			CREATE TABLE IF NOT EXISTS airports (
				icao TEXT PRIMARY KEY,
				iata TEXT NOT NULL DEFAULT '',
				name TEXT NOT NULL DEFAULT '',
				city TEXT NOT NULL DEFAULT '',
				country TEXT NOT NULL DEFAULT '',
				altitude REAL NOT NULL DEFAULT 0,
				lat REAL NOT NULL,
				lon REAL NOT NULL
			)
		`},
		{"runways table", `
			CREATE TABLE IF NOT EXISTS runways (
				airport TEXT NOT NULL REFERENCES airports(icao) ON DELETE CASCADE,
				name TEXT NOT NULL,
				heading REAL NOT NULL, -- true
				lat REAL NOT NULL,
				lon REAL NOT NULL,
				area TEXT,             -- JSON array of {lat, lon}
				PRIMARY KEY (airport, name)
			)
		`},
		{"airport_daily_events table", `
			CREATE TABLE IF NOT EXISTS airport_daily_events (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				airport TEXT NOT NULL,
				runway TEXT NOT NULL,
				hex TEXT NOT NULL,
				flight TEXT NOT NULL DEFAULT '',
				event_epoch INTEGER NOT NULL,
				event_type TEXT NOT NULL,
				UNIQUE (airport, runway, hex, event_epoch, event_type)
			)
		`},
		{"events time index", `CREATE INDEX IF NOT EXISTS idx_events_airport_epoch ON airport_daily_events(airport, event_epoch)`},
		{"daily_planes_seen table", `
			CREATE TABLE IF NOT EXISTS daily_planes_seen (
				day TEXT NOT NULL,
				hex TEXT NOT NULL,
				reporter TEXT NOT NULL DEFAULT '',
				first_seen INTEGER NOT NULL,
				last_seen INTEGER NOT NULL,
				flights TEXT NOT NULL DEFAULT '[]',
				reports INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (day, hex, reporter)
			)
		`},
	} {
		if _, err := db.Exec(stmt.sql); err != nil {
			return fmt.Errorf("failed to create %s: %w", stmt.name, err)
		}
	}

	log.Info("Database schema initialized successfully")
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
