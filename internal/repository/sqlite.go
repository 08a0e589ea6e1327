package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			event TEXT NOT NULL DEFAULT '',
			headline TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			instruction TEXT NOT NULL DEFAULT '',
			response TEXT NOT NULL DEFAULT '',
			sender_name TEXT NOT NULL DEFAULT '',
			area_desc TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			message_type TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			severity TEXT NOT NULL DEFAULT '',
			certainty TEXT NOT NULL DEFAULT '',
			urgency TEXT NOT NULL DEFAULT '',
			geocodes TEXT NOT NULL DEFAULT '[]',
			parameters TEXT NOT NULL DEFAULT '{}',
			sent DATETIME,
			effective DATETIME,
			onset DATETIME,
			expires DATETIME,
			ends DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS subscriptions (
			id TEXT PRIMARY KEY,
			user_email TEXT NOT NULL,
			phone_number TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			county TEXT NOT NULL,
			notification_type TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS deliveries (
			subscription_id TEXT NOT NULL,
			alert_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			sent_at DATETIME NOT NULL,
			PRIMARY KEY (subscription_id, alert_id, kind)
		);

		CREATE TABLE IF NOT EXISTS area_refs (
			state TEXT NOT NULL COLLATE NOCASE,
			county TEXT NOT NULL COLLATE NOCASE,
			state_code TEXT NOT NULL,
			county_code TEXT NOT NULL,
			area_code TEXT NOT NULL,
			PRIMARY KEY (state, county)
		);

		CREATE TABLE IF NOT EXISTS storm_events (
			event_id INTEGER PRIMARY KEY,
			event_type TEXT NOT NULL,
			state TEXT NOT NULL COLLATE NOCASE,
			county TEXT NOT NULL COLLATE NOCASE,
			begin_year INTEGER NOT NULL,
			begin_month INTEGER NOT NULL,
			end_year INTEGER NOT NULL,
			end_month INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_alerts_expires ON alerts(expires);
		CREATE INDEX IF NOT EXISTS idx_alerts_sent ON alerts(sent);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_email ON subscriptions(user_email);
		CREATE INDEX IF NOT EXISTS idx_storm_events_area ON storm_events(state, county);
  	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
