// Package playback resolves a track into something a client can actually
// play: an audio preview URL from the catalog, or a video id found through
// search. Search prefers the quota-free scraper and falls back to the
// official API, which is guarded by the process-wide deadline breaker.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/pshemk/tunehunt/internal/catalog"
	"github.com/pshemk/tunehunt/internal/observe"
	"github.com/pshemk/tunehunt/internal/resilience"
)

// Mode selects where a room sources its playback from. Fixed for the life
// of a game.
type Mode string

const (
	// ModePreview plays catalog audio previews, with video search as a
	// fallback for tracks the catalog has no preview for.
	ModePreview Mode = "catalog-preview"

	// ModeVideo plays videos from the video site.
	ModeVideo Mode = "video-site"
)

// IsValid reports whether m is a recognised playback mode.
func (m Mode) IsValid() bool {
	return m == ModePreview || m == ModeVideo
}

// Handle is the opaque payload delivered to clients to start local playback.
type Handle struct {
	Type       string `json:"type"` // "audio" or "video"
	PreviewURL string `json:"previewUrl,omitempty"`
	Cover      string `json:"cover,omitempty"`
	VideoID    string `json:"videoId,omitempty"`
}

// Handle types.
const (
	TypeAudio = "audio"
	TypeVideo = "video"
)

// searchTimeout bounds one outbound search call.
const searchTimeout = 5 * time.Second

// Resolver turns tracks into playback handles.
type Resolver struct {
	search  catalog.VideoSearcher
	breaker *resilience.DeadlineBreaker
}

// NewResolver creates a Resolver. search may be nil when no video site is
// configured; resolution then only uses what is already on the track.
func NewResolver(search catalog.VideoSearcher, breaker *resilience.DeadlineBreaker) *Resolver {
	if breaker == nil {
		breaker = resilience.NewDeadlineBreaker(resilience.BreakerConfig{Name: "video-search"})
	}
	return &Resolver{search: search, breaker: breaker}
}

// SearchDown reports whether the official search API is currently suppressed.
func (r *Resolver) SearchDown() bool {
	return r.breaker.Down()
}

// Resolve returns a playback handle for track under mode. ok is false when
// no source yields anything playable; the caller skips the track. Upstream
// failures are swallowed here by design — a failed search must never fail
// a round, only skip a track.
func (r *Resolver) Resolve(ctx context.Context, track catalog.Track, mode Mode) (Handle, bool) {
	start := time.Now()
	h, ok := r.resolve(ctx, track, mode)

	outcome := "none"
	if ok {
		outcome = h.Type
	}
	observe.DefaultMetrics().RecordResolve(ctx, outcome, time.Since(start))
	return h, ok
}

func (r *Resolver) resolve(ctx context.Context, track catalog.Track, mode Mode) (Handle, bool) {
	if mode == ModeVideo {
		if track.Source == catalog.SourceYouTube && track.VideoID != "" {
			return Handle{Type: TypeVideo, VideoID: track.VideoID}, true
		}
		if id, ok := r.findVideo(ctx, track); ok {
			return Handle{Type: TypeVideo, VideoID: id}, true
		}
		return Handle{}, false
	}

	// Preview mode.
	if track.VideoID != "" {
		return Handle{Type: TypeVideo, VideoID: track.VideoID}, true
	}
	if track.PreviewURL != "" {
		return Handle{Type: TypeAudio, PreviewURL: track.PreviewURL, Cover: track.Cover}, true
	}
	if id, ok := r.findVideo(ctx, track); ok {
		return Handle{Type: TypeVideo, VideoID: id}, true
	}
	return Handle{}, false
}

// findVideo searches for the track, scraper first, official API second.
func (r *Resolver) findVideo(ctx context.Context, track catalog.Track) (string, bool) {
	if r.search == nil {
		return "", false
	}

	query := strings.TrimSpace(track.Title + " " + track.Artist)
	if query == "" {
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	results, err := r.search.Scrape(ctx, query)
	if err != nil {
		slog.Debug("scrape search failed", "query", query, "err", err)
	}
	if len(results) > 0 {
		return pickBest(results, query).VideoID, true
	}

	if r.breaker.Down() {
		return "", false
	}

	results, err = r.search.Official(ctx, query)
	if err != nil {
		if errors.Is(err, catalog.ErrQuotaExceeded) {
			r.breaker.Trip()
		} else {
			slog.Debug("official search failed", "query", query, "err", err)
		}
		return "", false
	}
	if len(results) == 0 {
		return "", false
	}
	return pickBest(results, query).VideoID, true
}

// pickBest ranks results against the query by Jaro-Winkler similarity of
// their titles and returns the best hit, rather than trusting the search
// engine's first result: scrape ordering is noisy and covers, remixes and
// reaction videos often outrank the track itself. Untitled results keep
// their original order, so the first result wins when nothing ranks higher.
func pickBest(results []catalog.VideoResult, query string) catalog.VideoResult {
	best := results[0]
	bestScore := titleScore(best.Title, query)
	for _, res := range results[1:] {
		if s := titleScore(res.Title, query); s > bestScore {
			best, bestScore = res, s
		}
	}
	return best
}

func titleScore(title, query string) float64 {
	if title == "" {
		return 0
	}
	return matchr.JaroWinkler(strings.ToLower(title), strings.ToLower(query), false)
}
