package catalog_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pshemk/tunehunt/internal/catalog"
	"github.com/pshemk/tunehunt/internal/catalog/mock"
)

func TestResolver_DispatchesByRecognition(t *testing.T) {
	spotify := &mock.Provider{
		Src:    catalog.SourceSpotify,
		Prefix: "https://open.spotify.com/",
		Playlist: &catalog.Playlist{
			Source: catalog.SourceSpotify,
			ID:     "pl-1",
			Name:   "Road Trip",
		},
	}
	youtube := &mock.Provider{
		Src:    catalog.SourceYouTube,
		Prefix: "https://www.youtube.com/",
		Playlist: &catalog.Playlist{
			Source: catalog.SourceYouTube,
			ID:     "PL123",
			Name:   "Mix",
		},
	}
	r := catalog.NewResolver(spotify, youtube)

	pl, err := r.Resolve(context.Background(), "https://www.youtube.com/playlist?list=PL123", 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if pl.Source != catalog.SourceYouTube {
		t.Errorf("source = %q, want %q", pl.Source, catalog.SourceYouTube)
	}
	if len(spotify.Calls) != 0 {
		t.Errorf("spotify provider called %d times, want 0", len(spotify.Calls))
	}
	if len(youtube.Calls) != 1 {
		t.Errorf("youtube provider called %d times, want 1", len(youtube.Calls))
	}
}

func TestResolver_FirstMatchWins(t *testing.T) {
	first := &mock.Provider{Playlist: &catalog.Playlist{ID: "first"}}
	second := &mock.Provider{Playlist: &catalog.Playlist{ID: "second"}}
	r := catalog.NewResolver(first, second)

	pl, err := r.Resolve(context.Background(), "https://anything.example/x", 0)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if pl.ID != "first" {
		t.Errorf("playlist id = %q, want %q", pl.ID, "first")
	}
}

func TestResolver_UnrecognizedURL(t *testing.T) {
	r := catalog.NewResolver(&mock.Provider{Prefix: "https://open.spotify.com/"})

	_, err := r.Resolve(context.Background(), "https://soundcloud.com/some/set", 0)
	if !errors.Is(err, catalog.ErrUnrecognizedURL) {
		t.Fatalf("err = %v, want ErrUnrecognizedURL", err)
	}
}

func TestResolver_WrapsProviderError(t *testing.T) {
	r := catalog.NewResolver(&mock.Provider{
		ResolveFunc: func(_ context.Context, _ string, _ int) (*catalog.Playlist, error) {
			return nil, catalog.ErrMissingCredentials
		},
	})

	_, err := r.Resolve(context.Background(), "https://open.spotify.com/playlist/abc", 0)
	if !errors.Is(err, catalog.ErrMissingCredentials) {
		t.Fatalf("err = %v, want wrapped ErrMissingCredentials", err)
	}
}
