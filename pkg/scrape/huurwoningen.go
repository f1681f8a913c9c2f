package scrape

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/huurscout/huurscout/pkg/fetch"
	"github.com/huurscout/huurscout/pkg/listing"
)

const huurwoningenBase = "https://www.huurwoningen.nl"

var (
	huurwoningenIDRe       = regexp.MustCompile(`/(\d+)/`)
	huurwoningenDistrictRe = regexp.MustCompile(`\((.*?)\)`)
)

// huurwoningenKinds maps the registered source suffix to the portal's
// listing kind and the default property type.
var huurwoningenKinds = map[string]listing.PropertyType{
	"appartement": listing.TypeApartment,
	"huis":        listing.TypeHouse,
	"studio":      listing.TypeStudio,
	"kamer":       listing.TypeRoom,
}

func init() {
	for kind := range huurwoningenKinds {
		Register("huurwoningen_"+kind, func() Scraper { return &Huurwoningen{Kind: kind} })
	}
}

// Huurwoningen parses huurwoningen.nl cards. One implementation serves
// four sources, parameterized by listing kind.
type Huurwoningen struct {
	Kind string
}

func (h *Huurwoningen) Name() string { return "huurwoningen_" + h.Kind }

func (h *Huurwoningen) StopAfterNoResult() bool { return false }

func (h *Huurwoningen) BuildSearchURL(city string, days int) string {
	if strings.TrimSpace(city) == "" {
		return huurwoningenBase + "/aanbod-huurwoningen/"
	}
	return fmt.Sprintf("%s/huren/%s/?type=%s", huurwoningenBase, citySlug(city), h.Kind)
}

func (h *Huurwoningen) ParseListings(page *fetch.Response) ([]*listing.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse huurwoningen page: %w", err)
	}
	var out []*listing.Listing
	doc.Find(".listing-search-item").Each(func(_ int, card *goquery.Selection) {
		link := card.Find(".listing-search-item__link--title").First()
		href, _ := link.Attr("href")
		if href == "" {
			return
		}
		l := &listing.Listing{Source: h.Name()}
		l.URL = absURL(huurwoningenBase, href)
		if m := huurwoningenIDRe.FindStringSubmatch(l.URL); m != nil {
			l.SourceID = m[1]
		} else {
			l.SourceID = uuid.NewString()
		}

		title := strings.TrimSpace(link.Text())
		l.Title = title
		l.Address = title
		for prefix, pt := range map[string]listing.PropertyType{
			"Appartement ": listing.TypeApartment,
			"Huis ":        listing.TypeHouse,
			"Studio ":      listing.TypeStudio,
			"Kamer ":       listing.TypeRoom,
		} {
			if strings.HasPrefix(title, prefix) {
				l.PropertyType = pt
				l.Address = strings.TrimPrefix(title, prefix)
				break
			}
		}
		if l.PropertyType == "" {
			l.PropertyType = huurwoningenKinds[h.Kind]
		}

		// Location format: "1015 CS Amsterdam (Jordaan)".
		location := strings.TrimSpace(card.Find(".listing-search-item__sub-title").First().Text())
		if m := parariusLocationRe.FindStringSubmatch(location); m != nil {
			l.PostalCode = m[1]
			l.City = strings.TrimSpace(m[2])
			l.Neighborhood = strings.TrimSpace(m[3])
		} else if m := huurwoningenDistrictRe.FindStringSubmatch(location); m != nil {
			l.Neighborhood = strings.TrimSpace(m[1])
		}

		if priceText := strings.TrimSpace(card.Find(".listing-search-item__price").First().Text()); priceText != "" {
			l.Price = priceText
			l.PriceNumeric, l.PricePeriod = listing.ParsePrice(priceText)
		}

		card.Find(".illustrated-features__item").Each(func(_ int, feature *goquery.Selection) {
			text := strings.ToLower(strings.TrimSpace(feature.Text()))
			if strings.Contains(text, "m²") && l.LivingArea == 0 {
				l.LivingArea = listing.ParseArea(text)
			}
			if rooms := listing.ParseRooms(text); rooms > 0 {
				l.Rooms = rooms
			}
		})

		l.Normalize()
		out = append(out, l)
	})
	return out, nil
}
