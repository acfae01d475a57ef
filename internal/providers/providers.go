// Package providers holds the catalogue of payment providers the
// platform reconciles against.
package providers

import (
	"fmt"
	"os"
	"path/filepath"
)

// Provider describes one payment processor or bank feed.
type Provider struct {
	Code                  string // short code used in day keys and feeds
	Name                  string
	FeedFormat            string // importer format for its settlement export
	SettlementWindowHours int    // 0 = use the global default
}

// Service provides in-memory lookup over the provider catalogue.
type Service struct {
	providers []Provider
	byCode    map[string]Provider
}

// NewService creates a Service from a slice of providers.
func NewService(providers []Provider) *Service {
	byCode := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byCode[p.Code] = p
	}
	return &Service{providers: providers, byCode: byCode}
}

// Load reads providers.csv from a data dir and returns a Service.
func Load(dataDir string) (*Service, error) {
	path := filepath.Join(dataDir, "providers.csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening provider catalogue: %w", err)
	}
	defer f.Close()

	list, err := ReadProviders(f)
	if err != nil {
		return nil, fmt.Errorf("reading provider catalogue: %w", err)
	}
	return NewService(list), nil
}

// All returns every registered provider.
func (s *Service) All() []Provider {
	return s.providers
}

// Get returns a provider by code.
func (s *Service) Get(code string) (Provider, bool) {
	p, ok := s.byCode[code]
	return p, ok
}

// Exists reports whether a provider code is registered.
func (s *Service) Exists(code string) bool {
	_, ok := s.byCode[code]
	return ok
}
