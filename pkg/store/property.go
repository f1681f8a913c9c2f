package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.mau.fi/util/dbutil"

	"github.com/huurscout/huurscout/pkg/listing"
)

// PropertyStore persists normalized listings.
type PropertyStore struct {
	db *dbutil.Database
}

const listingColumns = `
	p.id, p.source, p.source_id, p.property_hash, p.url, p.title, p.address, p.postal_code, p.city, p.neighborhood,
	p.price, p.price_numeric, p.price_period, p.service_costs, p.description, p.property_type, p.offering_type,
	p.living_area, p.plot_area, p.volume, p.rooms, p.bedrooms, p.bathrooms, p.floors,
	p.balcony, p.garden, p.parking, p.construction_year, p.energy_label, p.interior,
	p.coordinates, p.date_listed, p.date_available, p.date_scraped, p.images, p.features`

// Upsert writes a listing, keyed on (source, source_id) or, failing
// that, on the content hash so a listing re-indexed under a new source
// id updates the existing row. The first date_scraped is preserved on
// updates. Returns true only when a new row was inserted.
func (ps *PropertyStore) Upsert(ctx context.Context, l *listing.Listing) (isNew bool, id int64, err error) {
	hash := l.ContentHash()
	err = ps.db.DoTxn(ctx, nil, func(ctx context.Context) error {
		var existing int64
		row := ps.db.QueryRow(ctx,
			`SELECT id FROM properties WHERE (source = $1 AND source_id = $2) OR property_hash = $3`,
			l.Source, l.SourceID, hash)
		switch scanErr := row.Scan(&existing); scanErr {
		case nil:
			id = existing
			return ps.update(ctx, existing, l)
		case sql.ErrNoRows:
			isNew = true
			id, err = ps.insert(ctx, l, hash)
			return err
		default:
			return scanErr
		}
	})
	if err != nil {
		return false, 0, fmt.Errorf("upsert %s/%s: %w", l.Source, l.SourceID, err)
	}
	return isNew, id, nil
}

func (ps *PropertyStore) insert(ctx context.Context, l *listing.Listing, hash string) (int64, error) {
	scraped := l.DateScraped
	if scraped.IsZero() {
		scraped = time.Now().UTC()
	}
	var id int64
	err := ps.db.QueryRow(ctx, `
		INSERT INTO properties (
			source, source_id, property_hash, url, title, address, postal_code, city, neighborhood,
			price, price_numeric, price_period, service_costs, description, property_type, offering_type,
			living_area, plot_area, volume, rooms, bedrooms, bathrooms, floors,
			balcony, garden, parking, construction_year, energy_label, interior,
			coordinates, date_listed, date_available, date_scraped, images, features
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9,
			$10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23,
			$24, $25, $26, $27, $28, $29,
			$30, $31, $32, $33, $34, $35
		) RETURNING id`,
		l.Source, l.SourceID, hash, l.URL, l.Title, l.Address, l.PostalCode, l.City, l.Neighborhood,
		l.Price, l.PriceNumeric, string(l.PricePeriod), l.ServiceCosts, l.Description, string(l.PropertyType), string(l.OfferingType),
		l.LivingArea, l.PlotArea, l.Volume, l.Rooms, l.Bedrooms, l.Bathrooms, l.Floors,
		l.Balcony, l.Garden, l.Parking, l.ConstructionYear, l.EnergyLabel, string(l.Interior),
		coordsJSON(l.Coordinates), timeText(l.DateListed), timeText(l.DateAvailable), scraped, jsonText(l.Images), jsonText(l.Features),
	).Scan(&id)
	return id, err
}

func (ps *PropertyStore) update(ctx context.Context, id int64, l *listing.Listing) error {
	_, err := ps.db.Exec(ctx, `
		UPDATE properties SET
			source_id = $1, url = $2, title = $3, address = $4, postal_code = $5, city = $6, neighborhood = $7,
			price = $8, price_numeric = $9, price_period = $10, service_costs = $11, description = $12,
			property_type = $13, offering_type = $14,
			living_area = $15, plot_area = $16, volume = $17, rooms = $18, bedrooms = $19, bathrooms = $20, floors = $21,
			balcony = $22, garden = $23, parking = $24, construction_year = $25, energy_label = $26, interior = $27,
			coordinates = $28, date_listed = $29, date_available = $30, images = $31, features = $32
		WHERE id = $33`,
		l.SourceID, l.URL, l.Title, l.Address, l.PostalCode, l.City, l.Neighborhood,
		l.Price, l.PriceNumeric, string(l.PricePeriod), l.ServiceCosts, l.Description,
		string(l.PropertyType), string(l.OfferingType),
		l.LivingArea, l.PlotArea, l.Volume, l.Rooms, l.Bedrooms, l.Bathrooms, l.Floors,
		l.Balcony, l.Garden, l.Parking, l.ConstructionYear, l.EnergyLabel, string(l.Interior),
		coordsJSON(l.Coordinates), timeText(l.DateListed), timeText(l.DateAvailable), jsonText(l.Images), jsonText(l.Features),
		id,
	)
	return err
}

// GetByID loads one listing.
func (ps *PropertyStore) GetByID(ctx context.Context, id int64) (*listing.Listing, error) {
	row := ps.db.QueryRow(ctx, `SELECT `+listingColumns+` FROM properties p WHERE p.id = $1`, id)
	l, err := scanListing(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return l, err
}

// IDBySource resolves the row id of a (source, source_id) pair, 0 when
// absent.
func (ps *PropertyStore) IDBySource(ctx context.Context, source, sourceID string) (int64, error) {
	var id int64
	err := ps.db.QueryRow(ctx,
		`SELECT id FROM properties WHERE source = $1 AND source_id = $2`,
		source, sourceID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return id, err
}

// Count returns the total number of stored listings.
func (ps *PropertyStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := ps.db.QueryRow(ctx, `SELECT COUNT(*) FROM properties`).Scan(&n)
	return n, err
}

// DuplicateCandidate is one cross-source pair sharing a content hash
// with lexically close addresses.
type DuplicateCandidate struct {
	ID1, ID2             int64
	Source1, SourceID1   string
	Source2, SourceID2   string
	Hash                 string
	Address1, Address2   string
	Area1, Area2         int
	Price1, Price2       int
}

// FindDuplicates self-joins the listing set on equal content hash
// across different sources, bounded by a Levenshtein address ratio
// below 1 - threshold. Postgres only (fuzzystrmatch).
func (ps *PropertyStore) FindDuplicates(ctx context.Context, threshold float64) ([]DuplicateCandidate, error) {
	rows, err := ps.db.Query(ctx, `
		SELECT a.id, b.id, a.source, a.source_id, b.source, b.source_id, a.property_hash,
		       a.address, b.address,
		       COALESCE(a.living_area, 0), COALESCE(b.living_area, 0),
		       COALESCE(a.price_numeric, 0), COALESCE(b.price_numeric, 0)
		FROM properties a
		JOIN properties b
		  ON a.source < b.source
		 AND a.property_hash = b.property_hash
		 AND a.address IS NOT NULL AND b.address IS NOT NULL
		 AND levenshtein(lower(a.address), lower(b.address))::float /
		     GREATEST(length(a.address), length(b.address), 1) < $1
		ORDER BY a.property_hash`,
		1.0-threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DuplicateCandidate
	for rows.Next() {
		var c DuplicateCandidate
		if err := rows.Scan(&c.ID1, &c.ID2, &c.Source1, &c.SourceID1, &c.Source2, &c.SourceID2,
			&c.Hash, &c.Address1, &c.Address2, &c.Area1, &c.Area2, &c.Price1, &c.Price2); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// listingScanner holds the nullable scan targets for one listing row,
// so plain selects and queue joins share the same column handling.
type listingScanner struct {
	l listing.Listing

	sourceID, hash, url, title, address, postal, city, hood         sql.NullString
	price, period, desc, propType, offerType, label, interior       sql.NullString
	coords, dateListed, dateAvail, images, features                 sql.NullString
	priceNum, svcCosts, area, plot, volume                          sql.NullInt64
	rooms, beds, baths, floors, year                                sql.NullInt64
	balcony, garden, parking                                        sql.NullBool
	scraped                                                         sql.NullTime
}

func (s *listingScanner) dests() []any {
	return []any{
		&s.l.ID, &s.l.Source, &s.sourceID, &s.hash, &s.url, &s.title, &s.address, &s.postal, &s.city, &s.hood,
		&s.price, &s.priceNum, &s.period, &s.svcCosts, &s.desc, &s.propType, &s.offerType,
		&s.area, &s.plot, &s.volume, &s.rooms, &s.beds, &s.baths, &s.floors,
		&s.balcony, &s.garden, &s.parking, &s.year, &s.label, &s.interior,
		&s.coords, &s.dateListed, &s.dateAvail, &s.scraped, &s.images, &s.features,
	}
}

func (s *listingScanner) finish() *listing.Listing {
	l := s.l
	l.SourceID = s.sourceID.String
	l.URL = s.url.String
	l.Title = s.title.String
	l.Address = s.address.String
	l.PostalCode = s.postal.String
	l.City = s.city.String
	l.Neighborhood = s.hood.String
	l.Price = s.price.String
	l.PriceNumeric = int(s.priceNum.Int64)
	l.PricePeriod = listing.PricePeriod(s.period.String)
	l.ServiceCosts = int(s.svcCosts.Int64)
	l.Description = s.desc.String
	l.PropertyType = listing.PropertyType(s.propType.String)
	l.OfferingType = listing.OfferingType(s.offerType.String)
	l.LivingArea = int(s.area.Int64)
	l.PlotArea = int(s.plot.Int64)
	l.Volume = int(s.volume.Int64)
	l.Rooms = int(s.rooms.Int64)
	l.Bedrooms = int(s.beds.Int64)
	l.Bathrooms = int(s.baths.Int64)
	l.Floors = int(s.floors.Int64)
	l.Balcony = s.balcony.Bool
	l.Garden = s.garden.Bool
	l.Parking = s.parking.Bool
	l.ConstructionYear = int(s.year.Int64)
	l.EnergyLabel = s.label.String
	l.Interior = listing.Interior(s.interior.String)
	if s.scraped.Valid {
		l.DateScraped = s.scraped.Time
	}
	if s.coords.Valid && s.coords.String != "" {
		var ll listing.LatLon
		if json.Unmarshal([]byte(s.coords.String), &ll) == nil {
			l.Coordinates = &ll
		}
	}
	l.DateListed = parseTimeText(s.dateListed.String)
	l.DateAvailable = parseTimeText(s.dateAvail.String)
	if s.images.Valid && s.images.String != "" {
		_ = json.Unmarshal([]byte(s.images.String), &l.Images)
	}
	if s.features.Valid && s.features.String != "" {
		_ = json.Unmarshal([]byte(s.features.String), &l.Features)
	}
	return &l
}

func scanListing(row dbutil.Scannable) (*listing.Listing, error) {
	var s listingScanner
	if err := row.Scan(s.dests()...); err != nil {
		return nil, err
	}
	return s.finish(), nil
}

func coordsJSON(ll *listing.LatLon) any {
	if ll == nil {
		return nil
	}
	data, err := json.Marshal(ll)
	if err != nil {
		return nil
	}
	return string(data)
}

func jsonText(v any) any {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return nil
	}
	return string(data)
}

func timeText(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTimeText(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
