package store

import (
	"context"
	"database/sql"
	"time"

	"go.mau.fi/util/dbutil"
)

// ScanHistoryStore keeps the last scan per (source, key). The key is a
// city name or the query_url_<id> sentinel; re-scans overwrite the row.
type ScanHistoryStore struct {
	db *dbutil.Database
}

// ScanRecord is one scan-history row.
type ScanRecord struct {
	Source   string
	Key      string
	ScanTime time.Time
	URL      string
	NewCount int
	Total    int
	Duration time.Duration
}

// Update overwrites the history row for (source, key).
func (s *ScanHistoryStore) Update(ctx context.Context, source, key, url string, newCount, total int, duration time.Duration) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO scan_history (source, city, scan_time, url, new_listings_count, total_listings_count, scan_duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source, city) DO UPDATE SET
			scan_time = excluded.scan_time,
			url = excluded.url,
			new_listings_count = excluded.new_listings_count,
			total_listings_count = excluded.total_listings_count,
			scan_duration_seconds = excluded.scan_duration_seconds`,
		source, key, time.Now().UTC(), url, newCount, total, duration.Seconds())
	return err
}

// LastScanTime returns the recorded scan time for (source, key), zero
// when the pair was never scanned.
func (s *ScanHistoryStore) LastScanTime(ctx context.Context, source, key string) (time.Time, error) {
	var t sql.NullTime
	err := s.db.QueryRow(ctx,
		`SELECT scan_time FROM scan_history WHERE source = $1 AND city = $2`,
		source, key).Scan(&t)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return t.Time, nil
}

// Recent returns the newest history rows, for the /status command.
func (s *ScanHistoryStore) Recent(ctx context.Context, limit int) ([]ScanRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT source, city, scan_time, COALESCE(url, ''), new_listings_count, total_listings_count,
		       COALESCE(scan_duration_seconds, 0)
		FROM scan_history ORDER BY scan_time DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ScanRecord
	for rows.Next() {
		var r ScanRecord
		var secs float64
		if err := rows.Scan(&r.Source, &r.Key, &r.ScanTime, &r.URL, &r.NewCount, &r.Total, &secs); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(secs * float64(time.Second))
		out = append(out, r)
	}
	return out, rows.Err()
}
