// Package video implements the video-site half of the catalog capability:
// playlist resolution through the official Data API and track search through
// both a quota-free results-page scraper and the metered API.
//
// The scraper parses video ids out of the initial-data JSON embedded in the
// results page, so it works without credentials and without consuming quota.
// The official search endpoint is only used as a fallback and surfaces
// catalog.ErrQuotaExceeded when the daily quota is gone, which the caller
// feeds into the search circuit breaker.
package video

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/pshemk/tunehunt/internal/catalog"
)

const (
	defaultAPIBase   = "https://www.googleapis.com/youtube/v3"
	defaultWatchBase = "https://www.youtube.com"

	requestTimeout = 5 * time.Second

	// playlistPageSize is the API maximum for playlistItems pages.
	playlistPageSize = 50

	// defaultTrackCap bounds resolve size, matching the spotify adapter.
	defaultTrackCap = 200
)

// Compile-time assertions.
var (
	_ catalog.Provider      = (*Provider)(nil)
	_ catalog.VideoSearcher = (*Provider)(nil)
)

// scrapeRe pulls videoId/title pairs out of the embedded initial-data JSON
// on a results page. The two fields always appear in this order inside a
// videoRenderer block.
var scrapeRe = regexp.MustCompile(`"videoRenderer":\{"videoId":"([\w-]{11})".*?"title":\{"runs":\[\{"text":"((?:[^"\\]|\\.)*)"`)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithAPIBase overrides the Data API base URL (tests).
func WithAPIBase(base string) Option {
	return func(p *Provider) { p.apiBase = strings.TrimRight(base, "/") }
}

// WithWatchBase overrides the public site base URL used by the scraper (tests).
func WithWatchBase(base string) Option {
	return func(p *Provider) { p.watchBase = strings.TrimRight(base, "/") }
}

// WithHTTPClient overrides the HTTP client used for all requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements catalog.Provider and catalog.VideoSearcher for the
// video site. The API key may be empty; then only the scraper works and
// playlist resolution fails with catalog.ErrMissingCredentials.
type Provider struct {
	apiKey     string
	apiBase    string
	watchBase  string
	httpClient *http.Client
}

// New creates a video Provider. An empty apiKey disables the official API
// paths but keeps the scraper available.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:     apiKey,
		apiBase:    defaultAPIBase,
		watchBase:  defaultWatchBase,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Source returns catalog.SourceYouTube.
func (p *Provider) Source() catalog.Source { return catalog.SourceYouTube }

// Recognizes reports whether u is a video-site playlist URL.
func (p *Provider) Recognizes(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	host := parsed.Hostname()
	if !strings.HasSuffix(host, "youtube.com") && host != "youtu.be" {
		return false
	}
	return parsed.Query().Get("list") != ""
}

// ── Playlist resolution ───────────────────────────────────────────────────────

type playlistItemsResponse struct {
	NextPageToken string `json:"nextPageToken"`
	PageInfo      struct {
		TotalResults int `json:"totalResults"`
	} `json:"pageInfo"`
	Items []struct {
		Snippet struct {
			Title                  string `json:"title"`
			VideoOwnerChannelTitle string `json:"videoOwnerChannelTitle"`
			ResourceID             struct {
				VideoID string `json:"videoId"`
			} `json:"resourceId"`
			Thumbnails struct {
				High struct {
					URL string `json:"url"`
				} `json:"high"`
			} `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

// ResolvePlaylist fetches playlist items through the official API. Tracks
// arrive with the video id pre-resolved, so playback never needs a search.
func (p *Provider) ResolvePlaylist(ctx context.Context, u string, limit int) (*catalog.Playlist, error) {
	if p.apiKey == "" {
		return nil, catalog.ErrMissingCredentials
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("video: parse url: %w", err)
	}
	listID := parsed.Query().Get("list")
	if listID == "" {
		return nil, fmt.Errorf("video: no list parameter in %q", u)
	}
	if limit <= 0 || limit > defaultTrackCap {
		limit = defaultTrackCap
	}

	pl := &catalog.Playlist{
		Source: catalog.SourceYouTube,
		ID:     listID,
		Name:   listID, // replaced below when the first page carries a title
	}

	pageToken := ""
	for {
		q := url.Values{
			"part":       {"snippet"},
			"playlistId": {listID},
			"maxResults": {fmt.Sprint(playlistPageSize)},
			"key":        {p.apiKey},
		}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var page playlistItemsResponse
		if err := p.getJSON(ctx, p.apiBase+"/playlistItems?"+q.Encode(), &page); err != nil {
			return nil, err
		}
		pl.Total = page.PageInfo.TotalResults

		for _, item := range page.Items {
			sn := item.Snippet
			if sn.ResourceID.VideoID == "" || sn.Title == "Deleted video" || sn.Title == "Private video" {
				continue
			}
			pl.Tracks = append(pl.Tracks, catalog.Track{
				ID:      sn.ResourceID.VideoID,
				Title:   sn.Title,
				Artist:  strings.TrimSuffix(sn.VideoOwnerChannelTitle, " - Topic"),
				VideoID: sn.ResourceID.VideoID,
				Cover:   sn.Thumbnails.High.URL,
				Source:  catalog.SourceYouTube,
			})
			if len(pl.Tracks) >= limit {
				pl.Playable = len(pl.Tracks)
				return pl, nil
			}
		}

		pageToken = page.NextPageToken
		if pageToken == "" {
			break
		}
	}

	pl.Playable = len(pl.Tracks)
	return pl, nil
}

// ── Search ────────────────────────────────────────────────────────────────────

// Scrape searches the public results page and extracts videoRenderer hits.
// It consumes no quota and needs no credentials.
func (p *Provider) Scrape(ctx context.Context, query string) ([]catalog.VideoResult, error) {
	u := p.watchBase + "/results?search_query=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("video: build scrape request: %w", err)
	}
	req.Header.Set("Accept-Language", "en")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("video: scrape request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("video: results page returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("video: read results page: %w", err)
	}

	matches := scrapeRe.FindAllStringSubmatch(string(body), 20)
	results := make([]catalog.VideoResult, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		id := m[1]
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		results = append(results, catalog.VideoResult{
			VideoID: id,
			Title:   unescapeJSON(m[2]),
		})
	}
	return results, nil
}

// Official searches through the metered Data API. A 403 whose body mentions
// quotaExceeded is mapped to catalog.ErrQuotaExceeded.
func (p *Provider) Official(ctx context.Context, query string) ([]catalog.VideoResult, error) {
	if p.apiKey == "" {
		return nil, catalog.ErrMissingCredentials
	}

	q := url.Values{
		"part":       {"snippet"},
		"type":       {"video"},
		"maxResults": {"5"},
		"q":          {query},
		"key":        {p.apiKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("video: build search request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("video: search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if strings.Contains(string(body), "quotaExceeded") {
			return nil, catalog.ErrQuotaExceeded
		}
		return nil, fmt.Errorf("video: search returned %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("video: search returned %s", resp.Status)
	}

	var out struct {
		Items []struct {
			ID struct {
				VideoID string `json:"videoId"`
			} `json:"id"`
			Snippet struct {
				Title string `json:"title"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("video: decode search response: %w", err)
	}

	results := make([]catalog.VideoResult, 0, len(out.Items))
	for _, item := range out.Items {
		if item.ID.VideoID == "" {
			continue
		}
		results = append(results, catalog.VideoResult{
			VideoID: item.ID.VideoID,
			Title:   item.Snippet.Title,
		})
	}
	return results, nil
}

func (p *Provider) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("video: build request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("video: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("video: api returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("video: decode response: %w", err)
	}
	return nil
}

// unescapeJSON undoes the escaping of a string captured out of raw JSON.
func unescapeJSON(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}
