package store

import (
	"context"
	"time"

	"go.mau.fi/util/dbutil"
)

// DuplicateStore records detected cross-source duplicate pairs.
type DuplicateStore struct {
	db *dbutil.Database
}

// DuplicatePair is one recorded pair, in canonical source order.
type DuplicatePair struct {
	Hash      string
	Source1   string
	SourceID1 string
	Source2   string
	SourceID2 string
	Score     float64
	Detected  time.Time
}

// Record stores a pair, swapping the sides so source_1 < source_2.
// Re-detection updates the score.
func (s *DuplicateStore) Record(ctx context.Context, hash, source1, sourceID1, source2, sourceID2 string, score float64) error {
	if source1 > source2 {
		source1, source2 = source2, source1
		sourceID1, sourceID2 = sourceID2, sourceID1
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO duplicate_properties (property_hash, source_1, source_id_1, source_2, source_id_2, similarity_score, date_detected)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_1, source_id_1, source_2, source_id_2) DO UPDATE SET
			similarity_score = excluded.similarity_score,
			date_detected = excluded.date_detected`,
		hash, source1, sourceID1, source2, sourceID2, score, time.Now().UTC())
	return err
}

// List returns all recorded pairs, newest first.
func (s *DuplicateStore) List(ctx context.Context) ([]DuplicatePair, error) {
	rows, err := s.db.Query(ctx, `
		SELECT property_hash, source_1, source_id_1, source_2, source_id_2,
		       COALESCE(similarity_score, 0), date_detected
		FROM duplicate_properties ORDER BY date_detected DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DuplicatePair
	for rows.Next() {
		var p DuplicatePair
		if err := rows.Scan(&p.Hash, &p.Source1, &p.SourceID1, &p.Source2, &p.SourceID2, &p.Score, &p.Detected); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
