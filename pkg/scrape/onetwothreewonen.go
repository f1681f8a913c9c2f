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

const onetwothreeBase = "https://www.123wonen.nl"

var (
	onetwothreeIDRe   = regexp.MustCompile(`/huur/.*-(\d+)-\d+`)
	onetwothreeCityRe = regexp.MustCompile(`^([^,]+),\s+(.+)$`)
)

func init() {
	Register("onetwothreewonen", func() Scraper { return &OneTwoThreeWonen{} })
}

// OneTwoThreeWonen parses 123wonen.nl rental cards.
type OneTwoThreeWonen struct{}

func (o *OneTwoThreeWonen) Name() string { return "onetwothreewonen" }

func (o *OneTwoThreeWonen) StopAfterNoResult() bool { return false }

func (o *OneTwoThreeWonen) BuildSearchURL(city string, days int) string {
	base := onetwothreeBase + "/huurwoningen/sort/newest"
	if strings.TrimSpace(city) == "" {
		return base
	}
	return fmt.Sprintf("%s?location=%s", base, strings.ReplaceAll(strings.ToLower(city), " ", "+"))
}

func (o *OneTwoThreeWonen) ParseListings(page *fetch.Response) ([]*listing.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse 123wonen page: %w", err)
	}
	var out []*listing.Listing
	doc.Find(".pand").Each(func(_ int, card *goquery.Selection) {
		href, _ := card.Find(`a[href*="/huur/"]`).First().Attr("href")
		if href == "" {
			return
		}
		l := &listing.Listing{Source: "onetwothreewonen"}
		l.URL = absURL(onetwothreeBase, href)
		if m := onetwothreeIDRe.FindStringSubmatch(l.URL); m != nil {
			l.SourceID = m[1]
		} else {
			l.SourceID = uuid.NewString()
		}

		l.Title = strings.TrimSpace(card.Find(".pand-slogan span").First().Text())

		// Address line format: "Amsterdam, Herengracht 12".
		addressText := strings.TrimSpace(card.Find(".pand-title").First().Text())
		if m := onetwothreeCityRe.FindStringSubmatch(addressText); m != nil {
			l.City = strings.TrimSpace(m[1])
			l.Address = strings.TrimSpace(m[2])
		} else {
			l.Address = addressText
		}

		if priceText := strings.TrimSpace(card.Find(".pand-price").First().Text()); priceText != "" {
			l.Price = priceText
			l.PriceNumeric, l.PricePeriod = listing.ParsePrice(priceText)
			if strings.Contains(priceText, "p/wk") {
				l.PricePeriod = listing.PeriodWeek
			}
		}

		card.Find(".pand-specs li").Each(func(_ int, li *goquery.Selection) {
			spans := li.Find("span")
			if spans.Length() < 2 {
				return
			}
			name := strings.ToLower(strings.TrimSpace(spans.Eq(0).Text()))
			value := strings.TrimSpace(spans.Eq(1).Text())
			switch name {
			case "type":
				l.PropertyType = onetwothreePropertyType(value)
			case "interieur":
				l.Interior = onetwothreeInterior(value)
			case "woonoppervlakte":
				l.LivingArea = listing.ParseArea(value)
			case "slaapkamers":
				l.Rooms = listing.ParseIntLoose(value)
			case "energielabel":
				l.EnergyLabel = value
			}
		})

		if src, ok := card.Find(".pand-image img").First().Attr("data-src"); ok && src != "" {
			l.Images = []string{absURL(onetwothreeBase, src)}
		} else if src, ok := card.Find(".pand-image img").First().Attr("src"); ok && src != "" {
			l.Images = []string{absURL(onetwothreeBase, src)}
		}

		l.Normalize()
		out = append(out, l)
	})
	return out, nil
}

func onetwothreePropertyType(category string) listing.PropertyType {
	switch strings.ToLower(category) {
	case "appartement", "bovenwoning", "benedenwoning", "maisonnette", "penthouse", "flat (galerij/portiek)", "nieuwbouw":
		return listing.TypeApartment
	case "studio":
		return listing.TypeStudio
	case "kamer":
		return listing.TypeRoom
	default:
		return listing.TypeHouse
	}
}

func onetwothreeInterior(value string) listing.Interior {
	switch strings.ToLower(value) {
	case "gemeubileerd", "furnished":
		return listing.InteriorFurnished
	case "gestoffeerd", "upholstered":
		return listing.InteriorUpholstered
	case "kaal", "shell":
		return listing.InteriorShell
	}
	return ""
}
