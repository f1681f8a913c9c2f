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

const kamernetBase = "https://kamernet.nl"

var kamernetIDRe = regexp.MustCompile(`/([a-z]+-\d+)$`)

func init() {
	Register("kamernet", func() Scraper { return &Kamernet{} })
}

// Kamernet parses kamernet.nl listing cards (rooms and studios). The
// markup is MUI-generated, so selectors match on stable class
// fragments rather than the hashed suffixes.
type Kamernet struct{}

func (k *Kamernet) Name() string { return "kamernet" }

func (k *Kamernet) StopAfterNoResult() bool { return false }

func (k *Kamernet) BuildSearchURL(city string, days int) string {
	if strings.TrimSpace(city) == "" {
		return kamernetBase + "/huren/huurwoningen-nederland"
	}
	return fmt.Sprintf("%s/huren/huurwoningen-%s", kamernetBase, citySlug(city))
}

func (k *Kamernet) ParseListings(page *fetch.Response) ([]*listing.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse kamernet page: %w", err)
	}
	var out []*listing.Listing
	doc.Find("a[class*='ListingCard_root']").Each(func(_ int, card *goquery.Selection) {
		href, _ := card.Attr("href")
		if href == "" {
			return
		}
		l := &listing.Listing{Source: "kamernet"}
		l.URL = absURL(kamernetBase, href)
		if m := kamernetIDRe.FindStringSubmatch(href); m != nil {
			l.SourceID = m[1]
		} else {
			l.SourceID = uuid.NewString()
		}

		subtitles := card.Find("span[class*='MuiTypography-subtitle1']")
		if subtitles.Length() > 0 {
			l.Address = strings.TrimSpace(strings.ReplaceAll(subtitles.Eq(0).Text(), ",", ""))
		}
		if subtitles.Length() > 1 {
			l.City = strings.TrimSpace(subtitles.Eq(1).Text())
		}
		if l.Address != "" && l.City != "" {
			l.Title = l.Address + ", " + l.City
		}

		card.Find("p[class*='MuiTypography-body2']").Each(func(_ int, p *goquery.Selection) {
			text := strings.TrimSpace(p.Text())
			lower := strings.ToLower(text)
			switch {
			case strings.Contains(text, "m²") && l.LivingArea == 0:
				l.LivingArea = listing.ParseArea(text)
			case lower == "gemeubileerd":
				l.Interior = listing.InteriorFurnished
			case lower == "gestoffeerd":
				l.Interior = listing.InteriorUpholstered
			case lower == "kaal":
				l.Interior = listing.InteriorShell
			case strings.Contains(lower, "appartement"):
				l.PropertyType = listing.TypeApartment
			case strings.Contains(lower, "studio"):
				l.PropertyType = listing.TypeStudio
			case strings.Contains(lower, "kamer"):
				l.PropertyType = listing.TypeRoom
			}
		})

		if priceText := strings.TrimSpace(card.Find("span[class*='MuiTypography-h5']").First().Text()); priceText != "" {
			l.Price = priceText
			l.PriceNumeric, _ = listing.ParsePrice(priceText)
			l.PricePeriod = listing.PeriodMonth
		}

		if src, ok := card.Find("img[class*='MuiCardMedia-img']").First().Attr("src"); ok && src != "" {
			l.Images = []string{src}
		}

		l.Normalize()
		out = append(out, l)
	})
	return out, nil
}
