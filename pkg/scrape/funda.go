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

const fundaBase = "https://www.funda.nl"

var (
	fundaIDRe          = regexp.MustCompile(`/(\d+)/`)
	fundaPostalCityRe  = regexp.MustCompile(`(\d{4}\s?[A-Z]{2})\s+(.+)`)
	fundaEnergyLabelRe = regexp.MustCompile(`^[A-G][+\-]*$`)
)

func init() {
	Register("funda", func() Scraper { return &Funda{} })
}

// Funda parses funda.nl rental search cards.
type Funda struct{}

func (f *Funda) Name() string { return "funda" }

func (f *Funda) StopAfterNoResult() bool { return false }

func (f *Funda) BuildSearchURL(city string, days int) string {
	return fmt.Sprintf(`%s/en/zoeken/huur/?selected_area=["%s"]&publication_date="%d"&sort="date_down"`,
		fundaBase, citySlug(city), days)
}

func (f *Funda) ParseListings(page *fetch.Response) ([]*listing.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse funda page: %w", err)
	}
	var out []*listing.Listing
	cards := doc.Find("div[data-test-id='search-result-item']")
	if cards.Length() == 0 {
		cards = doc.Find("div.border-b.pb-3")
	}
	cards.Each(func(_ int, card *goquery.Selection) {
		link := card.Find("a[data-testid='listingDetailsAddress']").First()
		if link.Length() == 0 {
			link = card.Find("h2 a").First()
		}
		href, _ := link.Attr("href")
		if href == "" || !strings.Contains(href, "/detail/") {
			return
		}
		l := &listing.Listing{Source: "funda"}
		l.URL = absURL(fundaBase, href)
		if m := fundaIDRe.FindStringSubmatch(l.URL); m != nil {
			l.SourceID = m[1]
		} else {
			l.SourceID = uuid.NewString()
		}

		if addr := strings.TrimSpace(link.Find("span.truncate").First().Text()); addr != "" {
			l.Address = addr
			l.Title = addr
		}
		postalCity := strings.TrimSpace(card.Find("div.truncate.text-neutral-80").First().Text())
		if m := fundaPostalCityRe.FindStringSubmatch(postalCity); m != nil {
			l.PostalCode = m[1]
			l.City = m[2]
		} else if postalCity != "" {
			l.City = postalCity
		}

		priceText := strings.TrimSpace(card.Find("div.font-semibold").First().Text())
		if priceText != "" {
			l.Price = priceText
			l.PriceNumeric, l.PricePeriod = listing.ParsePrice(priceText)
		}

		card.Find("ul li").Each(func(_ int, li *goquery.Selection) {
			text := strings.TrimSpace(li.Text())
			switch {
			case strings.Contains(text, "m²") && l.LivingArea == 0:
				l.LivingArea = listing.ParseArea(text)
			case fundaEnergyLabelRe.MatchString(text):
				l.EnergyLabel = text
			default:
				if rooms := listing.ParseRooms(text); rooms > 0 {
					l.Rooms = rooms
				}
			}
		})

		switch {
		case strings.Contains(l.URL, "/huis-"):
			l.PropertyType = listing.TypeHouse
		case strings.Contains(l.URL, "/studio-"):
			l.PropertyType = listing.TypeStudio
		case strings.Contains(l.URL, "/kamer-"):
			l.PropertyType = listing.TypeRoom
		default:
			l.PropertyType = listing.TypeApartment
		}

		l.Normalize()
		out = append(out, l)
	})
	return out, nil
}
