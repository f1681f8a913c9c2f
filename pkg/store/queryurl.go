package store

import (
	"context"
	"database/sql"
	"time"

	"go.mau.fi/util/dbutil"
)

// QueryURLStore manages operator-supplied search URLs scanned in place
// of city searches.
type QueryURLStore struct {
	db *dbutil.Database
}

// QueryURL is one configured search URL.
type QueryURL struct {
	ID          int64
	Source      string
	URL         string
	Method      string
	Enabled     bool
	LastScan    time.Time
	Description string
}

// Add inserts or updates a query URL keyed on (source, url), returning
// its id.
func (s *QueryURLStore) Add(ctx context.Context, source, url, method string, enabled bool, description string) (int64, error) {
	if method == "" {
		method = "GET"
	}
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO query_urls (source, queryurl, method, enabled, description)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source, queryurl) DO UPDATE SET
			method = excluded.method,
			enabled = excluded.enabled,
			description = excluded.description
		RETURNING id`,
		source, url, method, enabled, description).Scan(&id)
	return id, err
}

// ListEnabled returns the enabled URLs for one source in id order, the
// order the scheduler scans them in.
func (s *QueryURLStore) ListEnabled(ctx context.Context, source string) ([]QueryURL, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, source, queryurl, method, enabled, last_scan_time, COALESCE(description, '')
		FROM query_urls WHERE enabled = true AND source = $1 ORDER BY id ASC`, source)
	if err != nil {
		return nil, err
	}
	return scanQueryURLs(rows)
}

// List returns every query URL in id order.
func (s *QueryURLStore) List(ctx context.Context) ([]QueryURL, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, source, queryurl, method, enabled, last_scan_time, COALESCE(description, '')
		FROM query_urls ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	return scanQueryURLs(rows)
}

// Toggle flips the enabled flag. Reports whether the row existed.
func (s *QueryURLStore) Toggle(ctx context.Context, id int64, enabled bool) (bool, error) {
	res, err := s.db.Exec(ctx, `UPDATE query_urls SET enabled = $1 WHERE id = $2`, enabled, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Delete removes a query URL. Reports whether the row existed.
func (s *QueryURLStore) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.Exec(ctx, `DELETE FROM query_urls WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetLastScan stamps the per-URL scan time.
func (s *QueryURLStore) SetLastScan(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE query_urls SET last_scan_time = $1 WHERE id = $2`, at.UTC(), id)
	return err
}

func scanQueryURLs(rows dbutil.Rows) ([]QueryURL, error) {
	defer rows.Close()
	var out []QueryURL
	for rows.Next() {
		var q QueryURL
		var lastScan sql.NullTime
		if err := rows.Scan(&q.ID, &q.Source, &q.URL, &q.Method, &q.Enabled, &lastScan, &q.Description); err != nil {
			return nil, err
		}
		q.LastScan = lastScan.Time
		out = append(out, q)
	}
	return out, rows.Err()
}
