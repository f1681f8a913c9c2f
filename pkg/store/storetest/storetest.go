// Package storetest opens throwaway in-memory SQLite databases with a
// schema mirroring the production one, minus Postgres-only column
// types. Array columns are plain TEXT; pq renders arrays as their
// `{...}` literal form, which round-trips through TEXT unchanged.
package storetest

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/util/dbutil"

	"github.com/huurscout/huurscout/pkg/store"
)

const schema = `
CREATE TABLE properties (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source TEXT NOT NULL,
	source_id TEXT,
	property_hash TEXT UNIQUE,
	url TEXT, title TEXT, address TEXT, postal_code TEXT, city TEXT, neighborhood TEXT,
	price TEXT, price_numeric INTEGER, price_period TEXT, service_costs INTEGER, description TEXT,
	property_type TEXT, offering_type TEXT,
	living_area INTEGER, plot_area INTEGER, volume INTEGER,
	rooms INTEGER, bedrooms INTEGER, bathrooms INTEGER, floors INTEGER,
	balcony BOOLEAN, garden BOOLEAN, parking BOOLEAN,
	construction_year INTEGER, energy_label TEXT, interior TEXT,
	coordinates TEXT, location TEXT, date_listed TEXT, date_available TEXT,
	date_scraped TIMESTAMP, images TEXT, features TEXT,
	UNIQUE (source, source_id)
);
CREATE TABLE scan_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source TEXT NOT NULL,
	city TEXT NOT NULL,
	scan_time TIMESTAMP,
	url TEXT,
	new_listings_count INTEGER DEFAULT 0,
	total_listings_count INTEGER DEFAULT 0,
	scan_duration_seconds REAL,
	UNIQUE (source, city)
);
CREATE TABLE query_urls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source TEXT NOT NULL,
	queryurl TEXT NOT NULL,
	method TEXT NOT NULL DEFAULT 'GET',
	enabled BOOLEAN NOT NULL DEFAULT false,
	last_scan_time TIMESTAMP,
	description TEXT,
	UNIQUE (source, queryurl)
);
CREATE TABLE duplicate_properties (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	property_hash TEXT NOT NULL,
	source_1 TEXT NOT NULL,
	source_id_1 TEXT NOT NULL,
	source_2 TEXT NOT NULL,
	source_id_2 TEXT NOT NULL,
	similarity_score REAL,
	date_detected TIMESTAMP,
	UNIQUE (source_1, source_id_1, source_2, source_id_2)
);
CREATE TABLE telegram_users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER UNIQUE NOT NULL,
	username TEXT,
	first_name TEXT,
	last_name TEXT,
	is_active BOOLEAN DEFAULT true,
	is_admin BOOLEAN DEFAULT false,
	notifications_enabled BOOLEAN DEFAULT true,
	date_joined TIMESTAMP,
	last_active TIMESTAMP
);
CREATE TABLE user_preferences (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	cities TEXT,
	min_price INTEGER,
	max_price INTEGER,
	min_rooms INTEGER,
	max_rooms INTEGER,
	min_area INTEGER,
	max_area INTEGER,
	property_types TEXT,
	neighborhood TEXT,
	created_at TIMESTAMP,
	updated_at TIMESTAMP,
	UNIQUE (user_id)
);
CREATE TABLE notification_queue (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	property_id INTEGER NOT NULL,
	created_at TIMESTAMP,
	status TEXT DEFAULT 'pending',
	attempts INTEGER DEFAULT 0,
	last_attempt TIMESTAMP,
	UNIQUE (user_id, property_id)
);
CREATE TABLE notification_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	property_id INTEGER NOT NULL,
	sent_at TIMESTAMP,
	was_read BOOLEAN DEFAULT false,
	user_reaction TEXT,
	UNIQUE (user_id, property_id)
);
`

// Open returns a store backed by a fresh in-memory SQLite database.
func Open(t *testing.T) *store.Database {
	t.Helper()
	raw, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db, err := dbutil.NewWithDB(raw, "sqlite3")
	if err != nil {
		t.Fatalf("wrap db: %v", err)
	}
	if _, err := db.Exec(context.Background(), schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.Wrap(db)
}
