// Package mock provides configurable in-memory implementations of the
// catalog capability interfaces for tests.
package mock

import (
	"context"
	"strings"

	"github.com/pshemk/tunehunt/internal/catalog"
)

// Compile-time assertions.
var (
	_ catalog.Provider      = (*Provider)(nil)
	_ catalog.VideoSearcher = (*Searcher)(nil)
)

// Provider is a catalog.Provider whose behaviour is driven by struct fields.
// Unset funcs fall back to zero-value behaviour.
type Provider struct {
	// Src is returned by Source. Defaults to catalog.SourceSpotify.
	Src catalog.Source

	// Prefix makes Recognizes return true for URLs starting with it.
	// Empty means "recognize everything".
	Prefix string

	// ResolveFunc handles ResolvePlaylist when set.
	ResolveFunc func(ctx context.Context, url string, limit int) (*catalog.Playlist, error)

	// Playlist is returned when ResolveFunc is nil.
	Playlist *catalog.Playlist

	// Calls records every URL passed to ResolvePlaylist.
	Calls []string
}

func (p *Provider) Source() catalog.Source {
	if p.Src == "" {
		return catalog.SourceSpotify
	}
	return p.Src
}

func (p *Provider) Recognizes(url string) bool {
	return p.Prefix == "" || strings.HasPrefix(url, p.Prefix)
}

func (p *Provider) ResolvePlaylist(ctx context.Context, url string, limit int) (*catalog.Playlist, error) {
	p.Calls = append(p.Calls, url)
	if p.ResolveFunc != nil {
		return p.ResolveFunc(ctx, url, limit)
	}
	return p.Playlist, nil
}

// Searcher is a catalog.VideoSearcher driven by struct fields.
type Searcher struct {
	// ScrapeResults and ScrapeErr drive Scrape.
	ScrapeResults []catalog.VideoResult
	ScrapeErr     error

	// OfficialResults and OfficialErr drive Official.
	OfficialResults []catalog.VideoResult
	OfficialErr     error

	// ScrapeCalls and OfficialCalls record queries.
	ScrapeCalls   []string
	OfficialCalls []string
}

func (s *Searcher) Scrape(_ context.Context, query string) ([]catalog.VideoResult, error) {
	s.ScrapeCalls = append(s.ScrapeCalls, query)
	return s.ScrapeResults, s.ScrapeErr
}

func (s *Searcher) Official(_ context.Context, query string) ([]catalog.VideoResult, error) {
	s.OfficialCalls = append(s.OfficialCalls, query)
	return s.OfficialResults, s.OfficialErr
}
