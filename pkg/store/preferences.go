package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"go.mau.fi/util/dbutil"

	"github.com/huurscout/huurscout/pkg/listing"
)

// PreferenceStore persists one preference record per user. Cities are
// stored upper-cased so matching against listings is plain equality.
type PreferenceStore struct {
	db *dbutil.Database
}

// Preferences is a user's match filter. Zero max values mean no upper
// bound.
type Preferences struct {
	UserID        int64
	Cities        []string
	MinPrice      int
	MaxPrice      int
	MinRooms      int
	MaxRooms      int
	MinArea       int
	MaxArea       int
	PropertyTypes []string
	Neighborhood  string
}

// Put upserts the full preference record.
func (s *PreferenceStore) Put(ctx context.Context, p *Preferences) error {
	cities := make([]string, 0, len(p.Cities))
	for _, city := range p.Cities {
		if normalized := listing.NormalizeCity(city); normalized != "" {
			cities = append(cities, normalized)
		}
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO user_preferences (user_id, cities, min_price, max_price, min_rooms, max_rooms, min_area, max_area, property_types, neighborhood, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id) DO UPDATE SET
			cities = excluded.cities,
			min_price = excluded.min_price,
			max_price = excluded.max_price,
			min_rooms = excluded.min_rooms,
			max_rooms = excluded.max_rooms,
			min_area = excluded.min_area,
			max_area = excluded.max_area,
			property_types = excluded.property_types,
			neighborhood = excluded.neighborhood,
			updated_at = excluded.updated_at`,
		p.UserID, pq.Array(cities), p.MinPrice, p.MaxPrice, p.MinRooms, p.MaxRooms,
		p.MinArea, p.MaxArea, pq.Array(p.PropertyTypes), p.Neighborhood, time.Now().UTC())
	return err
}

// Get loads a user's preferences, nil when none are stored.
func (s *PreferenceStore) Get(ctx context.Context, userID int64) (*Preferences, error) {
	var p Preferences
	var cities, types pq.StringArray
	var minPrice, maxPrice, minRooms, maxRooms, minArea, maxArea sql.NullInt64
	var hood sql.NullString
	err := s.db.QueryRow(ctx, `
		SELECT user_id, cities, min_price, max_price, min_rooms, max_rooms, min_area, max_area, property_types, neighborhood
		FROM user_preferences WHERE user_id = $1`, userID).
		Scan(&p.UserID, &cities, &minPrice, &maxPrice, &minRooms, &maxRooms, &minArea, &maxArea, &types, &hood)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Cities = cities
	p.PropertyTypes = types
	p.MinPrice = int(minPrice.Int64)
	p.MaxPrice = int(maxPrice.Int64)
	p.MinRooms = int(minRooms.Int64)
	p.MaxRooms = int(maxRooms.Int64)
	p.MinArea = int(minArea.Int64)
	p.MaxArea = int(maxArea.Int64)
	p.Neighborhood = hood.String
	return &p, nil
}
