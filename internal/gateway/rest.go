package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pshemk/tunehunt/internal/auth"
	"github.com/pshemk/tunehunt/internal/catalog"
	"github.com/pshemk/tunehunt/internal/store"
)

const leaderboardSize = 10

type parsePlaylistReq struct {
	URL       string `json:"url"`
	SongCount int    `json:"songCount,omitempty"`
	Token     string `json:"token,omitempty"`
}

// parsePlaylistResp embeds the playlist so its fields sit at the top level of
// the response body, next to the optional history.
type parsePlaylistResp struct {
	catalog.Playlist
	UpdatedHistory []store.PlaylistRef `json:"updatedHistory,omitempty"`
}

type errorResp struct {
	Error string `json:"error"`
}

func (g *Gateway) handleParsePlaylist(w http.ResponseWriter, r *http.Request) {
	var req parsePlaylistReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "missing or malformed playlist URL")
		return
	}

	pl, err := g.catalog.Resolve(r.Context(), req.URL, req.SongCount)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrUnrecognizedURL):
			writeError(w, http.StatusBadRequest, "unrecognized playlist URL")
		case errors.Is(err, catalog.ErrMissingCredentials):
			writeError(w, http.StatusBadRequest, "catalog provider not configured")
		case errors.Is(err, catalog.ErrQuotaExceeded):
			writeError(w, http.StatusServiceUnavailable, "catalog quota exhausted")
		default:
			slog.Error("playlist resolution failed", "url", req.URL, "err", err)
			writeError(w, http.StatusBadGateway, "upstream catalog error")
		}
		return
	}

	resp := parsePlaylistResp{Playlist: *pl}
	if id, ok := g.identity(r.Context(), req.Token); ok {
		history, err := g.store.AppendRecentPlaylist(r.Context(), id.UserID, store.PlaylistRef{
			URL:    req.URL,
			Name:   pl.Name,
			Source: pl.Source,
		})
		if err != nil {
			slog.Error("playlist history update failed", "user", id.UserID, "err", err)
		} else {
			resp.UpdatedHistory = history
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := g.store.GetLeaderboard(r.Context(), leaderboardSize)
	if err != nil {
		slog.Error("leaderboard query failed", "err", err)
		writeError(w, http.StatusInternalServerError, "leaderboard unavailable")
		return
	}
	if entries == nil {
		entries = []store.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (g *Gateway) handlePlaylistHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := g.identity(r.Context(), bearerToken(r))
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	history, err := g.store.GetRecentPlaylists(r.Context(), id.UserID)
	if err != nil {
		slog.Error("playlist history query failed", "user", id.UserID, "err", err)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if history == nil {
		history = []store.PlaylistRef{}
	}
	writeJSON(w, http.StatusOK, history)
}

// identity verifies token, reporting ok only for an authenticated user.
func (g *Gateway) identity(ctx context.Context, token string) (auth.Identity, bool) {
	if token == "" || g.verifier == nil {
		return auth.Identity{}, false
	}
	id, err := g.verifier.Verify(ctx, token)
	if err != nil {
		slog.Debug("token verification failed", "err", err)
		return auth.Identity{}, false
	}
	return id, true
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return after
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("response encoding failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResp{Error: msg})
}
