// Package catalog defines the music-catalog capability consumed by the rest
// of the server: playlist resolution for the REST surface and video search
// for the playback resolver.
//
// Concrete adapters live in the subpackages spotify and video; tests inject
// the implementations from mock. The server core never talks to a catalog
// endpoint directly.
package catalog

import (
	"context"
	"errors"
	"fmt"
)

// Source identifies the catalog a track or playlist came from.
type Source string

const (
	SourceSpotify Source = "spotify"
	SourceYouTube Source = "youtube"
)

// Common catalog errors.
var (
	// ErrUnrecognizedURL means no registered provider recognizes the
	// playlist URL.
	ErrUnrecognizedURL = errors.New("catalog: unrecognized playlist URL")

	// ErrQuotaExceeded is returned by the official video search API when the
	// daily request quota is exhausted. It trips the search circuit breaker.
	ErrQuotaExceeded = errors.New("catalog: search quota exceeded")

	// ErrMissingCredentials means the provider for a recognized URL has no
	// credentials configured.
	ErrMissingCredentials = errors.New("catalog: missing provider credentials")
)

// Track is one playable entry of a playlist. PreviewURL and VideoID are
// optional; the playback resolver fills the gaps at round time.
type Track struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	PreviewURL string `json:"previewUrl,omitempty"`
	VideoID    string `json:"videoId,omitempty"`
	Cover      string `json:"cover,omitempty"`
	Source     Source `json:"source"`
}

// Playlist is the result of resolving a playlist URL.
type Playlist struct {
	Source   Source  `json:"source"`
	ID       string  `json:"playlistId"`
	Name     string  `json:"playlistName"`
	Total    int     `json:"total"`
	Playable int     `json:"playable"`
	Tracks   []Track `json:"tracks"`
}

// Provider resolves playlist URLs for one catalog source.
type Provider interface {
	// Source returns the catalog this provider serves.
	Source() Source

	// Recognizes reports whether url belongs to this provider's catalog.
	Recognizes(url string) bool

	// ResolvePlaylist fetches the playlist behind url, returning at most
	// limit tracks (0 means the provider's own cap).
	ResolvePlaylist(ctx context.Context, url string, limit int) (*Playlist, error)
}

// VideoResult is one hit from a video search.
type VideoResult struct {
	VideoID string
	Title   string
}

// VideoSearcher finds playable videos for a "<title> <artist>" query.
// Scrape is the quota-free path; Official is the metered API and may fail
// with [ErrQuotaExceeded].
type VideoSearcher interface {
	Scrape(ctx context.Context, query string) ([]VideoResult, error)
	Official(ctx context.Context, query string) ([]VideoResult, error)
}

// Resolver dispatches playlist URLs to the first provider that recognizes
// them. The zero value is unusable; construct with [NewResolver].
type Resolver struct {
	providers []Provider
}

// NewResolver creates a Resolver over the given providers, consulted in order.
func NewResolver(providers ...Provider) *Resolver {
	return &Resolver{providers: providers}
}

// Resolve finds the provider for url and resolves the playlist through it.
// Returns [ErrUnrecognizedURL] when no provider claims the URL.
func (r *Resolver) Resolve(ctx context.Context, url string, limit int) (*Playlist, error) {
	for _, p := range r.providers {
		if p.Recognizes(url) {
			pl, err := p.ResolvePlaylist(ctx, url, limit)
			if err != nil {
				return nil, fmt.Errorf("catalog: resolve %s playlist: %w", p.Source(), err)
			}
			return pl, nil
		}
	}
	return nil, ErrUnrecognizedURL
}
