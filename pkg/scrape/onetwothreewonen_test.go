package scrape

import (
	"testing"

	"github.com/huurscout/huurscout/pkg/listing"
)

func TestOneTwoThreeWonenParseListings(t *testing.T) {
	out, err := (&OneTwoThreeWonen{}).ParseListings(fixture(t, "onetwothreewonen.html"))
	if err != nil {
		t.Fatalf("ParseListings: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d listings, want 2", len(out))
	}

	apt := out[0]
	if apt.SourceID != "4521" {
		t.Errorf("SourceID = %q", apt.SourceID)
	}
	if apt.City != "UTRECHT" || apt.Address != "Oudegracht 45" {
		t.Errorf("city/address = %q / %q", apt.City, apt.Address)
	}
	if apt.Title != "Licht appartement in de binnenstad" {
		t.Errorf("Title = %q", apt.Title)
	}
	if apt.PriceNumeric != 1295 || apt.PricePeriod != listing.PeriodMonth {
		t.Errorf("price = %d %s", apt.PriceNumeric, apt.PricePeriod)
	}
	if apt.PropertyType != listing.TypeApartment || apt.Interior != listing.InteriorUpholstered {
		t.Errorf("type/interior = %q / %q", apt.PropertyType, apt.Interior)
	}
	if apt.LivingArea != 70 || apt.Rooms != 2 || apt.EnergyLabel != "B" {
		t.Errorf("area/rooms/label = %d / %d / %q", apt.LivingArea, apt.Rooms, apt.EnergyLabel)
	}
	if len(apt.Images) != 1 || apt.Images[0] != "https://www.123wonen.nl/images/oudegracht-45.jpg" {
		t.Errorf("Images = %v", apt.Images)
	}

	house := out[1]
	if house.SourceID != "4530" {
		t.Errorf("SourceID = %q", house.SourceID)
	}
	if house.City != "EINDHOVEN" {
		t.Errorf("City = %q", house.City)
	}
	if house.PriceNumeric != 395 || house.PricePeriod != listing.PeriodWeek {
		t.Errorf("price = %d %s", house.PriceNumeric, house.PricePeriod)
	}
	if house.PropertyType != listing.TypeHouse || house.Interior != listing.InteriorFurnished {
		t.Errorf("type/interior = %q / %q", house.PropertyType, house.Interior)
	}
}
