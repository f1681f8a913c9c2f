// Package scrape holds the per-portal adapters. Each adapter turns one
// search-results page into normalized listings; a registry maps source
// names to constructors.
package scrape

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/huurscout/huurscout/pkg/fetch"
	"github.com/huurscout/huurscout/pkg/listing"
)

// Scraper is one portal adapter. Implementations parse the list page
// only; detail pages are never fetched.
type Scraper interface {
	Name() string
	// BuildSearchURL is deterministic for a given (city, days) pair.
	BuildSearchURL(city string, days int) string
	ParseListings(page *fetch.Response) ([]*listing.Listing, error)
	// StopAfterNoResult reports whether an empty or redirected first
	// page ends pagination for this source.
	StopAfterNoResult() bool
}

// Constructor builds a fresh adapter instance.
type Constructor func() Scraper

// Registry maps source names to adapter constructors.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds or replaces a constructor by name.
func (r *Registry) Register(name string, ctor Constructor) {
	if r == nil || ctor == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[strings.ToLower(name)] = ctor
}

// Get builds an adapter for the named source.
func (r *Registry) Get(name string) (Scraper, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[strings.ToLower(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown source %q (known: %s)", name, strings.Join(r.Names(), ", "))
	}
	return ctor(), nil
}

// Names returns the registered source names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

var defaultRegistry = NewRegistry()

// Register adds a constructor to the default registry. Adapter files
// call this from init.
func Register(name string, ctor Constructor) {
	defaultRegistry.Register(name, ctor)
}

// Get builds an adapter from the default registry.
func Get(name string) (Scraper, error) {
	return defaultRegistry.Get(name)
}

// Names lists the default registry's sources.
func Names() []string {
	return defaultRegistry.Names()
}

// DefaultRegistry exposes the package registry for dependency wiring.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// absURL resolves href against base, returning href unchanged when it
// is already absolute or base does not parse.
func absURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}

// citySlug lower-cases a city and joins spaces with dashes, the form
// most portals use in their search paths.
func citySlug(city string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(city)), " ", "-")
}
