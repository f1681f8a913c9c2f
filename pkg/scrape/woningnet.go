package scrape

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/huurscout/huurscout/pkg/fetch"
	"github.com/huurscout/huurscout/pkg/listing"
)

// woningnetRegions maps the region suffix of the source name to the
// portal host serving that region.
var woningnetRegions = map[string]string{
	"utrecht":                "https://www.woningnetregioutrecht.nl",
	"amsterdam":              "https://www.woningnetregioamsterdam.nl",
	"eindhoven":              "https://www.woningnetregioeindhoven.nl",
	"woonkeus-stedendriehoek": "https://www.woonkeus-stedendriehoek.nl",
}

var woningnetLabelRe = regexp.MustCompile(`[A-G][+]*`)

func init() {
	for region := range woningnetRegions {
		Register("woningnet_regio"+strings.ReplaceAll(region, "-", ""), func() Scraper {
			return &Woningnet{Region: region}
		})
	}
}

// Woningnet parses the WoningNet publication API shared by the
// regional portals. One implementation serves every region with a
// per-region base URL.
type Woningnet struct {
	Region string
}

func (w *Woningnet) Name() string {
	return "woningnet_regio" + strings.ReplaceAll(w.Region, "-", "")
}

func (w *Woningnet) StopAfterNoResult() bool { return false }

func (w *Woningnet) baseURL() string {
	return woningnetRegions[w.Region]
}

func (w *Woningnet) BuildSearchURL(city string, days int) string {
	return fmt.Sprintf("%s/webapi/zoeken/publicaties?model=Woonruimte&city=%s&days=%d",
		w.baseURL(), citySlug(city), days)
}

func (w *Woningnet) ParseListings(page *fetch.Response) ([]*listing.Listing, error) {
	items := gjson.Get(page.Text, "data.PublicatieLijst.List")
	var out []*listing.Listing
	for _, item := range items.Array() {
		// Parking spots and other non-dwelling units share the feed.
		if item.Get("EenheidSoort").String() != "Woonruimte" {
			continue
		}
		if strings.Contains(item.Get("PublicatieLabel").String(), "Parkeren") {
			continue
		}
		address := item.Get("Adres")
		street := strings.TrimSpace(address.Get("Straatnaam").String())
		if street == "" {
			continue
		}

		l := &listing.Listing{Source: w.Name()}
		l.SourceID = item.Get("Id").String()
		if rel := item.Get("Url").String(); rel != "" {
			l.URL = absURL(w.baseURL(), rel)
		} else {
			l.URL = fmt.Sprintf("%s/Aanbod/details/%s", w.baseURL(), l.SourceID)
		}

		parts := []string{street}
		for _, key := range []string{"Huisnummer", "Huisletter", "HuisnummerToevoeging"} {
			if s := strings.TrimSpace(address.Get(key).String()); s != "" {
				parts = append(parts, s)
			}
		}
		l.Address = strings.Join(parts, " ")
		l.Title = l.Address
		l.PostalCode = address.Get("Postcode").String()
		l.City = address.Get("Woonplaats").String()
		l.Neighborhood = address.Get("Wijk").String()

		unit := item.Get("Eenheid")
		if unit.Get("NettoHuurBekend").Bool() && unit.Get("NettoHuur").Exists() {
			netto := unit.Get("NettoHuur").Float()
			l.PriceNumeric = int(netto)
			l.Price = fmt.Sprintf("€%.2f", netto)
		} else {
			cluster := item.Get("Cluster")
			switch {
			case cluster.Get("PrijsMinBekend").Bool() && cluster.Get("PrijsMin").Exists():
				l.PriceNumeric = int(cluster.Get("PrijsMin").Float())
			case cluster.Get("PrijsMaxBekend").Bool() && cluster.Get("PrijsMax").Exists():
				l.PriceNumeric = int(cluster.Get("PrijsMax").Float())
			}
			if l.PriceNumeric > 0 {
				l.Price = fmt.Sprintf("€%d", l.PriceNumeric)
			}
		}
		if l.PriceNumeric <= 0 {
			continue
		}
		l.PricePeriod = listing.PeriodMonth

		if bruto, netto := unit.Get("Brutohuur").Float(), unit.Get("NettoHuur").Float(); bruto > netto && netto > 0 {
			l.ServiceCosts = int(bruto - netto)
		}
		l.Rooms = int(unit.Get("AantalKamers").Int())
		if area := unit.Get("WoonVertrekkenTotOpp").Float(); area > 0 {
			l.LivingArea = int(area)
		}
		if label := woningnetLabelRe.FindString(unit.Get("EnergieLabel").String()); label != "" {
			l.EnergyLabel = label
		}
		l.PropertyType = woningnetPropertyType(unit.Get("DetailSoort").String())

		l.Normalize()
		out = append(out, l)
	}
	return out, nil
}

func woningnetPropertyType(detailSoort string) listing.PropertyType {
	switch strings.ToLower(detailSoort) {
	case "eengezinswoning", "woonhuis":
		return listing.TypeHouse
	case "studio":
		return listing.TypeStudio
	case "kamer", "onzelfstandige woonruimte":
		return listing.TypeRoom
	default:
		return listing.TypeApartment
	}
}
