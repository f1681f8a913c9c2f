package scrape

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/huurscout/huurscout/pkg/fetch"
	"github.com/huurscout/huurscout/pkg/listing"
)

const bouwinvestBase = "https://www.wonenbijbouwinvest.nl"

func init() {
	Register("bouwinvest", func() Scraper { return &Bouwinvest{} })
}

// Bouwinvest parses the wonenbijbouwinvest.nl filter API.
type Bouwinvest struct{}

func (b *Bouwinvest) Name() string { return "bouwinvest" }

func (b *Bouwinvest) StopAfterNoResult() bool { return false }

func (b *Bouwinvest) BuildSearchURL(city string, days int) string {
	url := bouwinvestBase + "/api/filter?"
	if strings.TrimSpace(city) != "" {
		url += "city=" + citySlug(city) + "&"
	}
	return url + "page=1&order=created_at&dir=desc"
}

func (b *Bouwinvest) ParseListings(page *fetch.Response) ([]*listing.Listing, error) {
	var out []*listing.Listing
	for _, item := range gjson.Get(page.Text, "data").Array() {
		if item.Get("class").String() != "ProjectProperty" {
			continue
		}
		l := &listing.Listing{Source: "bouwinvest"}
		l.SourceID = item.Get("id").String()
		l.URL = item.Get("url").String()
		l.Title = item.Get("name").String()
		l.Address = l.Title
		l.Description = item.Get("description").String()
		l.City = item.Get("address.city").String()
		l.PostalCode = item.Get("address.zipcode").String()

		if price := item.Get("price.price").Float(); price > 0 {
			l.PriceNumeric = int(price)
			l.Price = fmt.Sprintf("€ %d per maand", l.PriceNumeric)
			l.PricePeriod = listing.PeriodMonth
		}
		if sc := item.Get("price.service_cost").Float(); sc > 0 {
			l.ServiceCosts = int(sc)
		}

		props := item.Get("properties")
		l.Rooms = int(props.Get("total_rooms").Int())
		l.Bedrooms = int(props.Get("total_sleepingrooms").Int())
		l.ConstructionYear = int(props.Get("build_year").Int())
		l.Floors = int(props.Get("total_floors").Int())
		l.LivingArea = int(item.Get("sizes.living_area").Int())

		if img := item.Get("image").String(); img != "" {
			l.Images = []string{img}
		}
		l.PropertyType = listing.TypeApartment
		if t := strings.ToLower(item.Get("type").String()); strings.Contains(t, "house") || strings.Contains(t, "woning") {
			l.PropertyType = listing.TypeHouse
		}

		l.Normalize()
		out = append(out, l)
	}
	return out, nil
}
