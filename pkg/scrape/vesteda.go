package scrape

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/huurscout/huurscout/pkg/fetch"
	"github.com/huurscout/huurscout/pkg/listing"
)

const vestedaBase = "https://www.vesteda.com"

var vestedaPostalRe = regexp.MustCompile(`(\d+)([A-Za-z]+)`)

func init() {
	Register("vesteda", func() Scraper { return &Vesteda{} })
}

// Vesteda parses the vesteda.com search API. The response groups
// results by recency; only "today" is used, falling back to "week"
// when today is empty.
type Vesteda struct{}

func (v *Vesteda) Name() string { return "vesteda" }

func (v *Vesteda) StopAfterNoResult() bool { return false }

func (v *Vesteda) BuildSearchURL(city string, days int) string {
	return fmt.Sprintf("%s/api/units/search?city=%s&days=%d", vestedaBase, citySlug(city), days)
}

func (v *Vesteda) ParseListings(page *fetch.Response) ([]*listing.Listing, error) {
	root := gjson.Parse(page.Text)
	objects := root.Get("results.objects.today")
	if !objects.Exists() || len(objects.Array()) == 0 {
		objects = root.Get("results.objects.week")
	}
	var out []*listing.Listing
	for _, item := range objects.Array() {
		l := &listing.Listing{Source: "vesteda"}
		l.SourceID = item.Get("id").String()
		if rel := item.Get("url").String(); rel != "" {
			l.URL = absURL(vestedaBase, rel)
		}

		parts := make([]string, 0, 3)
		for _, key := range []string{"street", "houseNumber", "houseNumberAddition"} {
			if s := strings.TrimSpace(item.Get(key).String()); s != "" {
				parts = append(parts, s)
			}
		}
		l.Address = strings.Join(parts, " ")
		l.Title = l.Address

		if pc := item.Get("postalCode").String(); pc != "" {
			l.PostalCode = vestedaPostalRe.ReplaceAllString(pc, "$1 $2")
		}
		l.City = item.Get("city").String()
		l.Neighborhood = item.Get("district").String()

		l.Price = item.Get("price").String()
		l.PriceNumeric = int(item.Get("priceUnformatted").Float())
		l.PricePeriod = listing.PeriodMonth
		l.LivingArea = int(item.Get("size").Int())
		if bedrooms := int(item.Get("numberOfBedRooms").Int()); bedrooms > 0 {
			l.Bedrooms = bedrooms
			l.Rooms = bedrooms
		}
		l.PropertyType = vestedaPropertyType(item.Get("entitysubtypelabel").String())

		if img := item.Get("image").String(); img != "" {
			l.Images = []string{absURL(vestedaBase, img)}
		}

		l.Normalize()
		out = append(out, l)
	}
	return out, nil
}

func vestedaPropertyType(label string) listing.PropertyType {
	switch label {
	case "Eengezinswoning", "Maisonette":
		return listing.TypeHouse
	case "Studio":
		return listing.TypeStudio
	default:
		return listing.TypeApartment
	}
}
