// Package store persists listings, scan state, users, preferences and
// the notification queue. All access goes through a dbutil wrapper so
// the same stores run on Postgres in production and SQLite in tests.
package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.mau.fi/util/dbutil"

	_ "github.com/lib/pq"

	"github.com/huurscout/huurscout/pkg/config"
	"github.com/huurscout/huurscout/pkg/store/upgrades"
)

// Database bundles the per-table stores around one connection pool.
type Database struct {
	*dbutil.Database

	Properties  *PropertyStore
	ScanHistory *ScanHistoryStore
	QueryURLs   *QueryURLStore
	Duplicates  *DuplicateStore
	Users       *UserStore
	Preferences *PreferenceStore
	Queue       *QueueStore
}

// Open connects to Postgres using the configured pool limits.
func Open(cfg config.DatabaseConfig, log zerolog.Logger) (*Database, error) {
	db, err := dbutil.NewFromConfig("huurscout", dbutil.Config{
		PoolConfig: dbutil.PoolConfig{
			Type:         "postgres",
			URI:          cfg.URI,
			MaxOpenConns: cfg.MaxOpenConns,
			MaxIdleConns: cfg.MaxIdleConns,
		},
	}, dbutil.ZeroLogger(log))
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return Wrap(db), nil
}

// Wrap builds the store set around an existing connection. Tests use it
// with an in-memory SQLite database.
func Wrap(db *dbutil.Database) *Database {
	db.UpgradeTable = upgrades.Table
	return &Database{
		Database:    db,
		Properties:  &PropertyStore{db},
		ScanHistory: &ScanHistoryStore{db},
		QueryURLs:   &QueryURLStore{db},
		Duplicates:  &DuplicateStore{db},
		Users:       &UserStore{db},
		Preferences: &PreferenceStore{db},
		Queue:       &QueueStore{db},
	}
}

// Upgrade applies pending schema migrations.
func (db *Database) Upgrade(ctx context.Context) error {
	return db.Database.Upgrade(ctx)
}
