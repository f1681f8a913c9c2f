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

const parariusBase = "https://www.pararius.com"

var (
	parariusIDRe       = regexp.MustCompile(`/([a-f0-9]{8})/`)
	parariusLocationRe = regexp.MustCompile(`(\d{4}\s*[A-Z]{2})\s+([^(]+)(?:\(([^)]+)\))?`)
)

func init() {
	Register("pararius", func() Scraper { return &Pararius{} })
}

// Pararius parses pararius.com search result cards. Pararius paginates
// with page-N paths and redirects past-the-end pages back to page 1,
// which the scheduler uses as the pagination stop signal.
type Pararius struct{}

func (p *Pararius) Name() string { return "pararius" }

func (p *Pararius) StopAfterNoResult() bool { return true }

func (p *Pararius) BuildSearchURL(city string, days int) string {
	base := fmt.Sprintf("%s/apartments/%s", parariusBase, citySlug(city))
	if days <= 0 {
		return base
	}
	since := 1
	switch {
	case days >= 30:
		since = 30
	case days >= 14:
		since = 10
	case days >= 7:
		since = 5
	case days >= 3:
		since = 3
	}
	return fmt.Sprintf("%s?filters[since]=%d", base, since)
}

func (p *Pararius) ParseListings(page *fetch.Response) ([]*listing.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse pararius page: %w", err)
	}
	var out []*listing.Listing
	doc.Find(".listing-search-item").Each(func(_ int, card *goquery.Selection) {
		l := &listing.Listing{Source: "pararius"}

		link := card.Find(".listing-search-item__link--title").First()
		href, _ := link.Attr("href")
		if href == "" {
			return
		}
		l.URL = absURL(parariusBase, href)
		if m := parariusIDRe.FindStringSubmatch(l.URL); m != nil {
			l.SourceID = m[1]
		} else {
			l.SourceID = uuid.NewString()
		}

		title := strings.TrimSpace(link.Text())
		l.Title = title
		for prefix, pt := range map[string]listing.PropertyType{
			"Flat ":   listing.TypeApartment,
			"House ":  listing.TypeHouse,
			"Room ":   listing.TypeRoom,
			"Studio ": listing.TypeStudio,
		} {
			if strings.HasPrefix(title, prefix) {
				l.PropertyType = pt
				l.Address = strings.TrimPrefix(title, prefix)
				break
			}
		}
		if l.Address == "" {
			l.Address = title
		}

		subtitle := strings.TrimSpace(card.Find(".listing-search-item__sub-title").First().Text())
		if m := parariusLocationRe.FindStringSubmatch(subtitle); m != nil {
			l.PostalCode = m[1]
			l.City = strings.TrimSpace(m[2])
			l.Neighborhood = strings.TrimSpace(m[3])
		}

		priceText := strings.TrimSpace(card.Find(".listing-search-item__price").First().Text())
		if priceText != "" {
			l.Price = priceText
			l.PriceNumeric, l.PricePeriod = listing.ParsePrice(priceText)
		}

		if src, ok := card.Find(".picture__image").First().Attr("src"); ok {
			if !strings.HasPrefix(src, "data:") && !strings.Contains(src, "svg") {
				l.Images = []string{src}
			}
		}

		card.Find(".illustrated-features__item").Each(func(_ int, feature *goquery.Selection) {
			text := strings.ToLower(strings.TrimSpace(feature.Text()))
			class, _ := feature.Attr("class")
			switch {
			case strings.Contains(class, "surface-area"):
				l.LivingArea = listing.ParseIntLoose(text)
			case strings.Contains(text, "shell"):
				l.Interior = listing.InteriorShell
			case strings.Contains(text, "upholstered"):
				l.Interior = listing.InteriorUpholstered
			case strings.Contains(text, "furnished"):
				l.Interior = listing.InteriorFurnished
			}
			if rooms := listing.ParseRooms(text); rooms > 0 {
				l.Rooms = rooms
				if rooms > 1 {
					l.Bedrooms = rooms - 1
				}
			}
		})

		if l.PropertyType == "" {
			switch {
			case strings.Contains(l.URL, "apartment-for-rent"):
				l.PropertyType = listing.TypeApartment
			case strings.Contains(l.URL, "house-for-rent"):
				l.PropertyType = listing.TypeHouse
			case strings.Contains(l.URL, "studio-for-rent"):
				l.PropertyType = listing.TypeStudio
			case strings.Contains(l.URL, "room-for-rent"):
				l.PropertyType = listing.TypeRoom
			}
		}

		l.Normalize()
		out = append(out, l)
	})
	return out, nil
}
