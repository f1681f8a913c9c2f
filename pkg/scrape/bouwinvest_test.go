package scrape

import (
	"testing"

	"github.com/huurscout/huurscout/pkg/listing"
)

const bouwinvestFeed = `{"data":[
	{"class":"ProjectProperty","id":98765,
	 "url":"https://www.wonenbijbouwinvest.nl/huurwoningen/amsterdam/de-jordaan/98765",
	 "name":"Westerstraat 20","description":"Ruim appartement in de Jordaan",
	 "address":{"city":"Amsterdam","zipcode":"1015 LZ"},
	 "price":{"price":1695.0,"service_cost":45.0},
	 "properties":{"total_rooms":3,"total_sleepingrooms":2,"build_year":2019,"total_floors":1},
	 "sizes":{"living_area":78},
	 "image":"https://media.wonenbijbouwinvest.nl/westerstraat.jpg","type":"appartement"},
	{"class":"Project","id":1,"name":"De Zuidas","url":"https://www.wonenbijbouwinvest.nl/projecten/de-zuidas"}
]}`

func TestBouwinvestParseListings(t *testing.T) {
	out, err := (&Bouwinvest{}).ParseListings(jsonResponse(bouwinvestFeed))
	if err != nil {
		t.Fatalf("ParseListings: %v", err)
	}
	// Project entries without units are skipped.
	if len(out) != 1 {
		t.Fatalf("got %d listings, want 1", len(out))
	}

	l := out[0]
	if l.SourceID != "98765" {
		t.Errorf("SourceID = %q", l.SourceID)
	}
	if l.Address != "Westerstraat 20" || l.City != "AMSTERDAM" || l.PostalCode != "1015 LZ" {
		t.Errorf("address = %q / %q / %q", l.Address, l.City, l.PostalCode)
	}
	if l.PriceNumeric != 1695 || l.PricePeriod != listing.PeriodMonth {
		t.Errorf("price = %d %s", l.PriceNumeric, l.PricePeriod)
	}
	if l.ServiceCosts != 45 {
		t.Errorf("ServiceCosts = %d", l.ServiceCosts)
	}
	if l.Rooms != 3 || l.Bedrooms != 2 || l.ConstructionYear != 2019 {
		t.Errorf("rooms/bedrooms/year = %d / %d / %d", l.Rooms, l.Bedrooms, l.ConstructionYear)
	}
	if l.LivingArea != 78 {
		t.Errorf("LivingArea = %d", l.LivingArea)
	}
	if l.PropertyType != listing.TypeApartment {
		t.Errorf("PropertyType = %q", l.PropertyType)
	}
	if len(l.Images) != 1 {
		t.Errorf("Images = %v", l.Images)
	}
	if err := l.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
