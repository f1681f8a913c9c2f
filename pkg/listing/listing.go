// Package listing defines the normalized rental listing record shared by
// the scrapers, the store, and the notifier, plus the parsing and
// similarity helpers used to clean up portal output.
package listing

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

type PricePeriod string

const (
	PeriodMonth PricePeriod = "month"
	PeriodWeek  PricePeriod = "week"
)

type Interior string

const (
	InteriorShell       Interior = "shell"
	InteriorUpholstered Interior = "upholstered"
	InteriorFurnished   Interior = "furnished"
)

type PropertyType string

const (
	TypeApartment PropertyType = "apartment"
	TypeHouse     PropertyType = "house"
	TypeRoom      PropertyType = "room"
	TypeStudio    PropertyType = "studio"
)

type OfferingType string

const (
	OfferingRental OfferingType = "rental"
	OfferingSale   OfferingType = "sale"
)

// LatLon is a WGS84 coordinate pair.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Listing is one normalized property advertisement. Zero values mean
// "unknown": adapters fill what the portal exposes and leave the rest
// empty. Identity is (Source, SourceID); ContentHash is the
// cross-source deduplication key.
type Listing struct {
	ID       int64
	Source   string
	SourceID string

	URL          string
	Title        string
	Address      string
	PostalCode   string
	City         string
	Neighborhood string

	Price        string
	PriceNumeric int
	PricePeriod  PricePeriod
	ServiceCosts int

	Description  string
	PropertyType PropertyType
	OfferingType OfferingType

	LivingArea int
	PlotArea   int
	Volume     int
	Rooms      int
	Bedrooms   int
	Bathrooms  int
	Floors     int

	Balcony bool
	Garden  bool
	Parking bool

	ConstructionYear int
	EnergyLabel      string
	Interior         Interior

	Coordinates *LatLon

	DateListed    time.Time
	DateAvailable time.Time
	DateScraped   time.Time

	Images   []string
	Features map[string]string
}

// ContentHash returns the MD5 hex digest over the pipe-joined non-empty
// components url|address|source_id|city, in that order.
func (l *Listing) ContentHash() string {
	parts := make([]string, 0, 4)
	for _, part := range []string{l.URL, l.Address, l.SourceID, l.City} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	sum := md5.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// Normalize trims fields, upper-cases the city, reformats the postal
// code and fills enum defaults. Adapters call it once per extracted
// listing before handing it over to the scheduler.
func (l *Listing) Normalize() {
	l.Source = strings.ToLower(strings.TrimSpace(l.Source))
	l.SourceID = strings.TrimSpace(l.SourceID)
	l.URL = strings.TrimSpace(l.URL)
	l.Title = collapseSpaces(l.Title)
	l.Address = collapseSpaces(l.Address)
	l.PostalCode = NormalizePostalCode(l.PostalCode)
	l.City = NormalizeCity(l.City)
	l.Neighborhood = collapseSpaces(l.Neighborhood)
	l.Price = collapseSpaces(l.Price)
	l.EnergyLabel = strings.ToUpper(strings.TrimSpace(l.EnergyLabel))
	if l.PricePeriod == "" {
		l.PricePeriod = PeriodMonth
	}
	if l.OfferingType == "" {
		l.OfferingType = OfferingRental
	}
}

// Validate reports whether the listing carries the minimum fields the
// pipeline stores. Listings failing validation are dropped with a log
// line instead of being persisted half-empty.
func (l *Listing) Validate() error {
	switch {
	case l.Source == "":
		return fmt.Errorf("listing %q has no source", l.URL)
	case l.SourceID == "":
		return fmt.Errorf("listing %q has no source id", l.URL)
	case l.URL == "":
		return fmt.Errorf("listing %s/%s has no URL", l.Source, l.SourceID)
	case l.City == "":
		return fmt.Errorf("listing %s has no city", l.URL)
	case l.PriceNumeric <= 0:
		return fmt.Errorf("listing %s has no price", l.URL)
	}
	return nil
}

// FullAddress renders "address, postal code city", skipping empty parts
// and dropping the city when the address already ends with it.
func FullAddress(address, postal, city string) string {
	address = collapseSpaces(address)
	loc := strings.TrimSpace(strings.TrimSpace(postal) + " " + strings.TrimSpace(city))
	if city != "" && strings.HasSuffix(strings.ToUpper(address), strings.ToUpper(city)) {
		loc = strings.TrimSpace(postal)
	}
	switch {
	case address == "":
		return loc
	case loc == "":
		return address
	}
	return address + ", " + loc
}

// NormalizeCity collapses whitespace and upper-cases a city name.
// Stored listings and preference cities both use the upper-cased form
// so matching is a plain equality.
func NormalizeCity(city string) string {
	return strings.ToUpper(collapseSpaces(city))
}

// NormalizePostalCode reformats a Dutch postal code to "1234 AB".
// Input that does not look like one is returned trimmed as-is.
func NormalizePostalCode(pc string) string {
	pc = strings.TrimSpace(pc)
	compact := strings.ReplaceAll(strings.ToUpper(pc), " ", "")
	if len(compact) != 6 {
		return pc
	}
	for i := range 4 {
		if compact[i] < '0' || compact[i] > '9' {
			return pc
		}
	}
	for i := 4; i < 6; i++ {
		if compact[i] < 'A' || compact[i] > 'Z' {
			return pc
		}
	}
	return compact[:4] + " " + compact[4:]
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
