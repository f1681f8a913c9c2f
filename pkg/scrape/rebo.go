package scrape

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/huurscout/huurscout/pkg/fetch"
	"github.com/huurscout/huurscout/pkg/listing"
)

const reboBase = "https://www.rebohuurwoningen.nl"

func init() {
	Register("rebo", func() Scraper { return &Rebo{} })
}

// Rebo parses the rebohuurwoningen.nl search index, which serves its
// results as a JSON hits array.
type Rebo struct{}

func (r *Rebo) Name() string { return "rebo" }

func (r *Rebo) StopAfterNoResult() bool { return false }

func (r *Rebo) BuildSearchURL(city string, days int) string {
	url := reboBase + "/aanbod/huurwoningen"
	if strings.TrimSpace(city) != "" {
		url += "?plaats=" + citySlug(city)
	}
	return url
}

func (r *Rebo) ParseListings(page *fetch.Response) ([]*listing.Listing, error) {
	var out []*listing.Listing
	for _, hit := range gjson.Get(page.Text, "hits").Array() {
		l := &listing.Listing{Source: "rebo"}
		l.SourceID = hit.Get("objectID").String()
		if l.SourceID == "" {
			l.SourceID = hit.Get("slug").String()
		}
		if l.SourceID == "" {
			continue
		}
		if uri := hit.Get("uri").String(); uri != "" {
			l.URL = absURL(reboBase, uri)
		} else {
			l.URL = reboBase + "/aanbod/huurwoningen/" + l.SourceID
		}

		l.Address = hit.Get("address").String()
		l.Title = hit.Get("title").String()
		if l.Title == "" {
			l.Title = l.Address
		}
		l.PostalCode = listing.ExtractPostalCode(hit.Get("title").String())
		l.City = hit.Get("city").String()

		if price := hit.Get("price").Float(); price > 0 {
			l.PriceNumeric = int(price)
			l.Price = hit.Get("price").String()
		}
		switch strings.ToLower(hit.Get("price_type").String()) {
		case "week":
			l.PricePeriod = listing.PeriodWeek
		default:
			l.PricePeriod = listing.PeriodMonth
		}

		l.LivingArea = int(hit.Get("surface_living").Int())
		if beds := int(hit.Get("number_of_bedrooms").Int()); beds > 0 {
			l.Bedrooms = beds
			l.Rooms = beds + 1
		}
		l.PropertyType = reboPropertyType(hit.Get("object_type").String(), hit.Get("object_subtype").String())
		l.ConstructionYear = listing.ParseIntLoose(hit.Get("construction_year").String())

		if ts := hit.Get("source_created_at").Int(); ts > 0 {
			l.DateListed = time.Unix(ts, 0).UTC()
		}
		if img := hit.Get("main_image").String(); img != "" {
			l.Images = []string{absURL(reboBase, img)}
		}
		if geo := hit.Get("_geoloc"); geo.Exists() {
			lat, lon := geo.Get("lat").Float(), geo.Get("lng").Float()
			if lat != 0 || lon != 0 {
				l.Coordinates = &listing.LatLon{Lat: lat, Lon: lon}
			}
		}

		l.Normalize()
		out = append(out, l)
	}
	return out, nil
}

func reboPropertyType(objectType, subtype string) listing.PropertyType {
	combined := strings.ToLower(objectType + " " + subtype)
	switch {
	case strings.Contains(combined, "studio"):
		return listing.TypeStudio
	case strings.Contains(combined, "kamer"):
		return listing.TypeRoom
	case strings.Contains(combined, "appartement"), strings.Contains(combined, "apartment"):
		return listing.TypeApartment
	default:
		return listing.TypeHouse
	}
}
