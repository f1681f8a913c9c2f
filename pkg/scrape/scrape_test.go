package scrape

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/huurscout/huurscout/pkg/fetch"
)

func fixture(t *testing.T, name string) *fetch.Response {
	t.Helper()
	body, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	return &fetch.Response{
		URL:      "https://example.test/search",
		FinalURL: "https://example.test/search",
		Status:   200,
		Body:     body,
		Text:     string(body),
	}
}

func jsonResponse(text string) *fetch.Response {
	return &fetch.Response{
		URL:      "https://example.test/api",
		FinalURL: "https://example.test/api",
		Status:   200,
		Body:     []byte(text),
		Text:     text,
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register("Alpha", func() Scraper { return &Pararius{} })
	reg.Register("beta", func() Scraper { return &Funda{} })

	if _, err := reg.Get("alpha"); err != nil {
		t.Fatalf("Get(alpha): %v", err)
	}
	if _, err := reg.Get("ALPHA"); err != nil {
		t.Fatalf("Get(ALPHA): %v", err)
	}
	_, err := reg.Get("gamma")
	if err == nil {
		t.Fatal("Get(gamma) should fail")
	}
	if !strings.Contains(err.Error(), "alpha, beta") {
		t.Fatalf("error should list known sources, got %v", err)
	}

	names := reg.Names()
	if !sort.StringsAreSorted(names) {
		t.Fatalf("names not sorted: %v", names)
	}
}

func TestDefaultRegistrySources(t *testing.T) {
	want := []string{
		"bouwinvest",
		"funda",
		"huurwoningen_appartement",
		"huurwoningen_huis",
		"huurwoningen_kamer",
		"huurwoningen_studio",
		"kamernet",
		"onetwothreewonen",
		"pararius",
		"rebo",
		"vesteda",
		"woningnet_regioamsterdam",
		"woningnet_regioeindhoven",
		"woningnet_regioutrecht",
		"woningnet_regiowoonkeusstedendriehoek",
	}
	got := Names()
	if len(got) != len(want) {
		t.Fatalf("registered sources = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("source[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	for _, name := range want {
		sc, err := Get(name)
		if err != nil {
			t.Fatalf("Get(%s): %v", name, err)
		}
		if sc.Name() != name {
			t.Fatalf("Get(%s).Name() = %q", name, sc.Name())
		}
	}
}

func TestStopAfterNoResult(t *testing.T) {
	for _, name := range Names() {
		sc, err := Get(name)
		if err != nil {
			t.Fatalf("Get(%s): %v", name, err)
		}
		want := name == "pararius"
		if sc.StopAfterNoResult() != want {
			t.Errorf("%s.StopAfterNoResult() = %v, want %v", name, sc.StopAfterNoResult(), want)
		}
	}
}

func TestBuildSearchURL(t *testing.T) {
	cases := []struct {
		source string
		city   string
		days   int
		want   string
	}{
		{"pararius", "Amsterdam", 0, "https://www.pararius.com/apartments/amsterdam"},
		{"pararius", "Den Haag", 1, "https://www.pararius.com/apartments/den-haag?filters[since]=1"},
		{"pararius", "utrecht", 7, "https://www.pararius.com/apartments/utrecht?filters[since]=5"},
		{"pararius", "utrecht", 14, "https://www.pararius.com/apartments/utrecht?filters[since]=10"},
		{"pararius", "utrecht", 45, "https://www.pararius.com/apartments/utrecht?filters[since]=30"},
		{"funda", "Amsterdam", 3, `https://www.funda.nl/en/zoeken/huur/?selected_area=["amsterdam"]&publication_date="3"&sort="date_down"`},
		{"vesteda", "Utrecht", 1, "https://www.vesteda.com/api/units/search?city=utrecht&days=1"},
		{"kamernet", "", 1, "https://kamernet.nl/huren/huurwoningen-nederland"},
		{"kamernet", "Den Haag", 1, "https://kamernet.nl/huren/huurwoningen-den-haag"},
		{"huurwoningen_studio", "Utrecht", 1, "https://www.huurwoningen.nl/huren/utrecht/?type=studio"},
		{"woningnet_regioutrecht", "Utrecht", 2, "https://www.woningnetregioutrecht.nl/webapi/zoeken/publicaties?model=Woonruimte&city=utrecht&days=2"},
		{"onetwothreewonen", "Den Haag", 1, "https://www.123wonen.nl/huurwoningen/sort/newest?location=den+haag"},
		{"bouwinvest", "Amsterdam", 1, "https://www.wonenbijbouwinvest.nl/api/filter?city=amsterdam&page=1&order=created_at&dir=desc"},
		{"bouwinvest", "", 1, "https://www.wonenbijbouwinvest.nl/api/filter?page=1&order=created_at&dir=desc"},
		{"rebo", "Utrecht", 1, "https://www.rebohuurwoningen.nl/aanbod/huurwoningen?plaats=utrecht"},
	}
	for _, tc := range cases {
		t.Run(tc.source+"/"+tc.city, func(t *testing.T) {
			sc, err := Get(tc.source)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			got := sc.BuildSearchURL(tc.city, tc.days)
			if got != tc.want {
				t.Fatalf("BuildSearchURL(%q, %d) = %q, want %q", tc.city, tc.days, got, tc.want)
			}
			if again := sc.BuildSearchURL(tc.city, tc.days); again != got {
				t.Fatalf("BuildSearchURL not deterministic: %q vs %q", got, again)
			}
		})
	}
}

func TestAbsURL(t *testing.T) {
	cases := []struct {
		base, href, want string
	}{
		{"https://www.pararius.com", "/apartments/x", "https://www.pararius.com/apartments/x"},
		{"https://www.pararius.com", "https://other.example/y", "https://other.example/y"},
		{"https://www.pararius.com", "", ""},
	}
	for _, tc := range cases {
		if got := absURL(tc.base, tc.href); got != tc.want {
			t.Errorf("absURL(%q, %q) = %q, want %q", tc.base, tc.href, got, tc.want)
		}
	}
}
