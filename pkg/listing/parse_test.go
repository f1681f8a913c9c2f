package listing

import "testing"

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		want       int
		wantPeriod PricePeriod
	}{
		{"plain", "€ 1250", 1250, PeriodMonth},
		{"eu thousands", "€1.250 per maand", 1250, PeriodMonth},
		{"eu full", "€ 1.234,56", 1234, PeriodMonth},
		{"us full", "€1,234.56", 1234, PeriodMonth},
		{"comma decimal", "€950,50", 950, PeriodMonth},
		{"comma thousands", "€1,250", 1250, PeriodMonth},
		{"dot decimal", "€950.50", 950, PeriodMonth},
		{"per week", "€ 350 per week", 350, PeriodWeek},
		{"pw abbrev", "€350 p/w", 350, PeriodWeek},
		{"no price", "prijs op aanvraag", 0, PeriodMonth},
		{"embedded", "Huurprijs: € 2.100,- per maand", 2100, PeriodMonth},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, period := ParsePrice(tc.text)
			if got != tc.want {
				t.Fatalf("ParsePrice(%q) = %d, want %d", tc.text, got, tc.want)
			}
			if period != tc.wantPeriod {
				t.Fatalf("ParsePrice(%q) period = %q, want %q", tc.text, period, tc.wantPeriod)
			}
		})
	}
}

func TestParseArea(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"75 m²", 75},
		{"75m2", 75},
		{"120 sq.m", 120},
		{"woonoppervlakte 88 m² groot", 88},
		{"geen oppervlakte", 0},
	}
	for _, tc := range tests {
		if got := ParseArea(tc.text); got != tc.want {
			t.Fatalf("ParseArea(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestParseRooms(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"3 kamers", 3},
		{"1 kamer", 1},
		{"4 rooms", 4},
		{"studio", 0},
	}
	for _, tc := range tests {
		if got := ParseRooms(tc.text); got != tc.want {
			t.Fatalf("ParseRooms(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestExtractPostalCode(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"1015 CS Amsterdam", "1015 CS"},
		{"3511AB Utrecht (Binnenstad)", "3511 AB"},
		{"geen postcode hier", ""},
	}
	for _, tc := range tests {
		if got := ExtractPostalCode(tc.text); got != tc.want {
			t.Fatalf("ExtractPostalCode(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}
