// Package spotify implements the catalog.Provider interface for the Spotify
// Web API using the client-credentials flow.
//
// Access tokens are cached process-wide until shortly before expiry; refresh
// is deduplicated through singleflight so concurrent playlist requests never
// stampede the token endpoint.
package spotify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pshemk/tunehunt/internal/catalog"
)

const (
	defaultAPIBase      = "https://api.spotify.com/v1"
	defaultAccountsBase = "https://accounts.spotify.com"

	// tokenSafetyMargin is subtracted from the advertised token lifetime so
	// a token is never used in its final seconds.
	tokenSafetyMargin = 60 * time.Second

	// pageSize is the Spotify API maximum for playlist track pages.
	pageSize = 100

	// defaultTrackCap bounds how many tracks a single resolve returns when
	// the caller does not pass its own limit.
	defaultTrackCap = 200

	requestTimeout = 5 * time.Second
)

// Compile-time assertion that Provider satisfies catalog.Provider.
var _ catalog.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithAPIBase overrides the Web API base URL. Primarily used in tests to
// point at a local mock server.
func WithAPIBase(base string) Option {
	return func(p *Provider) { p.apiBase = strings.TrimRight(base, "/") }
}

// WithAccountsBase overrides the accounts (token) base URL.
func WithAccountsBase(base string) Option {
	return func(p *Provider) { p.accountsBase = strings.TrimRight(base, "/") }
}

// WithHTTPClient overrides the HTTP client used for all requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements catalog.Provider backed by the Spotify Web API.
type Provider struct {
	clientID     string
	clientSecret string
	apiBase      string
	accountsBase string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
	refresh     singleflight.Group
}

// New creates a Spotify Provider. Both credentials must be non-empty.
func New(clientID, clientSecret string, opts ...Option) (*Provider, error) {
	if clientID == "" || clientSecret == "" {
		return nil, errors.New("spotify: client credentials must not be empty")
	}
	p := &Provider{
		clientID:     clientID,
		clientSecret: clientSecret,
		apiBase:      defaultAPIBase,
		accountsBase: defaultAccountsBase,
		httpClient:   &http.Client{Timeout: requestTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Source returns catalog.SourceSpotify.
func (p *Provider) Source() catalog.Source { return catalog.SourceSpotify }

// Recognizes reports whether u is an open.spotify.com playlist or album URL.
func (p *Provider) Recognizes(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	if !strings.HasSuffix(parsed.Hostname(), "open.spotify.com") {
		return false
	}
	kind, _ := splitEntityPath(parsed.Path)
	return kind == "playlist" || kind == "album"
}

// ResolvePlaylist fetches the playlist or album behind u and flattens it to
// a catalog.Playlist. Tracks without a preview URL are still returned; the
// playback resolver handles them at round time.
func (p *Provider) ResolvePlaylist(ctx context.Context, u string, limit int) (*catalog.Playlist, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("spotify: parse url: %w", err)
	}
	kind, id := splitEntityPath(parsed.Path)
	if id == "" {
		return nil, fmt.Errorf("spotify: no entity id in %q", u)
	}
	if limit <= 0 || limit > defaultTrackCap {
		limit = defaultTrackCap
	}

	switch kind {
	case "playlist":
		return p.resolveEntity(ctx, "/playlists/"+id, id, limit)
	case "album":
		return p.resolveEntity(ctx, "/albums/"+id, id, limit)
	default:
		return nil, fmt.Errorf("spotify: unsupported entity kind %q", kind)
	}
}

// ── Token handling ────────────────────────────────────────────────────────────

// token returns a valid access token, refreshing through singleflight when
// the cached one is missing or about to expire.
func (p *Provider) token(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.accessToken != "" && time.Now().Before(p.tokenExpiry.Add(-tokenSafetyMargin)) {
		tok := p.accessToken
		p.mu.Unlock()
		return tok, nil
	}
	p.mu.Unlock()

	v, err, _ := p.refresh.Do("token", func() (any, error) {
		return p.fetchToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (p *Provider) fetchToken(ctx context.Context) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.accountsBase+"/api/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("spotify: build token request: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(p.clientID + ":" + p.clientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("spotify: token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("spotify: token endpoint returned %s", resp.Status)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("spotify: decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", errors.New("spotify: token endpoint returned empty token")
	}

	p.mu.Lock()
	p.accessToken = body.AccessToken
	p.tokenExpiry = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	p.mu.Unlock()

	return body.AccessToken, nil
}

// ── Entity resolution ─────────────────────────────────────────────────────────

// spotifyTrack is the subset of the track object both playlists and albums
// share. Album tracks carry no per-track album image; the entity cover is
// used instead.
type spotifyTrack struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PreviewURL string `json:"preview_url"`
	Artists    []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"album"`
}

type entityResponse struct {
	Name   string `json:"name"`
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	Tracks struct {
		Total int `json:"total"`
		Items []struct {
			// Playlist pages wrap the track; album pages are the track.
			Track *spotifyTrack `json:"track"`
			spotifyTrack
		} `json:"items"`
		Next string `json:"next"`
	} `json:"tracks"`
}

func (p *Provider) resolveEntity(ctx context.Context, path, id string, limit int) (*catalog.Playlist, error) {
	tok, err := p.token(ctx)
	if err != nil {
		return nil, err
	}

	var ent entityResponse
	if err := p.getJSON(ctx, p.apiBase+path, tok, &ent); err != nil {
		return nil, err
	}

	cover := ""
	if len(ent.Images) > 0 {
		cover = ent.Images[0].URL
	}

	pl := &catalog.Playlist{
		Source: catalog.SourceSpotify,
		ID:     id,
		Name:   ent.Name,
		Total:  ent.Tracks.Total,
	}

	next := ent.Tracks.Next
	items := ent.Tracks.Items
	for {
		for _, item := range items {
			tr := item.Track
			if tr == nil {
				tr = &item.spotifyTrack
			}
			if tr.ID == "" || tr.Name == "" {
				continue // local files and removed tracks
			}
			track := catalog.Track{
				ID:         tr.ID,
				Title:      tr.Name,
				Artist:     joinArtists(tr.Artists),
				PreviewURL: tr.PreviewURL,
				Cover:      cover,
				Source:     catalog.SourceSpotify,
			}
			if len(tr.Album.Images) > 0 {
				track.Cover = tr.Album.Images[0].URL
			}
			pl.Tracks = append(pl.Tracks, track)
			if len(pl.Tracks) >= limit {
				pl.Playable = len(pl.Tracks)
				return pl, nil
			}
		}
		if next == "" {
			break
		}
		var page struct {
			Items []struct {
				Track *spotifyTrack `json:"track"`
				spotifyTrack
			} `json:"items"`
			Next string `json:"next"`
		}
		if err := p.getJSON(ctx, next, tok, &page); err != nil {
			return nil, err
		}
		items, next = page.Items, page.Next
	}

	pl.Playable = len(pl.Tracks)
	return pl, nil
}

func (p *Provider) getJSON(ctx context.Context, rawURL, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("spotify: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("spotify: request %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("spotify: %s returned %s", rawURL, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("spotify: decode response: %w", err)
	}
	return nil
}

// splitEntityPath extracts ("playlist", id) style pairs from URL paths such
// as /playlist/37i9dQZF1DX4o1oenSJRJd or /intl-pl/album/xyz.
func splitEntityPath(path string) (kind, id string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "playlist" || parts[i] == "album" {
			return parts[i], strings.SplitN(parts[i+1], "?", 2)[0]
		}
	}
	return "", ""
}

func joinArtists(artists []struct {
	Name string `json:"name"`
}) string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		if a.Name != "" {
			names = append(names, a.Name)
		}
	}
	return strings.Join(names, ", ")
}
