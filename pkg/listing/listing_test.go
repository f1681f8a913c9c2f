package listing

import (
	"strings"
	"testing"
)

func TestContentHashDeterministic(t *testing.T) {
	a := &Listing{URL: "u", Address: "a", SourceID: "1", City: "AMSTERDAM"}
	b := &Listing{URL: "u", Address: "a", SourceID: "1", City: "AMSTERDAM"}
	if a.ContentHash() != b.ContentHash() {
		t.Fatalf("identical listings hash differently: %s vs %s", a.ContentHash(), b.ContentHash())
	}
	if len(a.ContentHash()) != 32 {
		t.Fatalf("expected 32 hex chars, got %q", a.ContentHash())
	}
}

func TestContentHashSensitivity(t *testing.T) {
	base := Listing{URL: "u", Address: "a", SourceID: "1", City: "AMSTERDAM"}
	mutations := map[string]func(*Listing){
		"url":       func(l *Listing) { l.URL = "u2" },
		"address":   func(l *Listing) { l.Address = "a2" },
		"source_id": func(l *Listing) { l.SourceID = "2" },
		"city":      func(l *Listing) { l.City = "UTRECHT" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			l := base
			mutate(&l)
			if l.ContentHash() == base.ContentHash() {
				t.Fatalf("changing %s did not change hash", name)
			}
		})
	}
	// Fields outside the identity tuple do not affect the hash.
	l := base
	l.PriceNumeric = 999
	l.Title = "something else"
	if l.ContentHash() != base.ContentHash() {
		t.Fatal("non-identity field changed hash")
	}
}

func TestNormalize(t *testing.T) {
	l := &Listing{
		Source:     "Pararius ",
		SourceID:   " abc123 ",
		URL:        " https://example.org/x ",
		Address:    "  Keizersgracht   12 ",
		City:       " den  haag ",
		PostalCode: "1234ab",
	}
	l.Normalize()
	if l.City != "DEN HAAG" {
		t.Fatalf("city not upper-cased: %q", l.City)
	}
	if l.PostalCode != "1234 AB" {
		t.Fatalf("postal code not normalized: %q", l.PostalCode)
	}
	if l.Address != "Keizersgracht 12" {
		t.Fatalf("address not collapsed: %q", l.Address)
	}
	if l.Source != "pararius" {
		t.Fatalf("source not lower-cased: %q", l.Source)
	}
	if l.PricePeriod != PeriodMonth || l.OfferingType != OfferingRental {
		t.Fatalf("defaults not applied: period=%q offering=%q", l.PricePeriod, l.OfferingType)
	}
}

func TestValidate(t *testing.T) {
	valid := Listing{Source: "funda", SourceID: "1", URL: "u", City: "AMSTERDAM", PriceNumeric: 1200}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid listing rejected: %v", err)
	}
	tests := []struct {
		name   string
		mutate func(*Listing)
		want   string
	}{
		{"no source", func(l *Listing) { l.Source = "" }, "no source"},
		{"no source id", func(l *Listing) { l.SourceID = "" }, "no source id"},
		{"no url", func(l *Listing) { l.URL = "" }, "no URL"},
		{"no city", func(l *Listing) { l.City = "" }, "no city"},
		{"no price", func(l *Listing) { l.PriceNumeric = 0 }, "no price"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := valid
			tc.mutate(&l)
			err := l.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %q", tc.want, err)
			}
		})
	}
}

func TestFullAddress(t *testing.T) {
	tests := []struct {
		name                  string
		address, postal, city string
		want                  string
	}{
		{"all parts", "Keizersgracht 12", "1015 CS", "AMSTERDAM", "Keizersgracht 12, 1015 CS AMSTERDAM"},
		{"no postal", "Keizersgracht 12", "", "AMSTERDAM", "Keizersgracht 12, AMSTERDAM"},
		{"city already in address", "Keizersgracht 12 Amsterdam", "1015 CS", "AMSTERDAM", "Keizersgracht 12 Amsterdam, 1015 CS"},
		{"address only", "Keizersgracht 12", "", "", "Keizersgracht 12"},
		{"empty", "", "", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := FullAddress(tc.address, tc.postal, tc.city); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
