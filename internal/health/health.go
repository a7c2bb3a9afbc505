// Package health provides HTTP health and readiness check handlers.
//
// The package exposes two endpoints:
//
//   - /healthz — liveness probe; always returns 200 OK and basic process info.
//   - /readyz  — readiness probe; returns 200 only when all registered
//     [Check] functions pass.
//
// Responses are JSON objects with a top-level "status" field ("ok" or "fail"),
// an "uptime" field, and for readiness a "checks" map with per-check results.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout is the maximum time a single readiness check may take before
// the context is cancelled.
const checkTimeout = 5 * time.Second

// Check is a named readiness probe. Probe should return nil when the
// dependency is healthy and a descriptive error otherwise.
type Check struct {
	// Name is a short label for this check (e.g. "postgres", "spotify").
	// It appears as a key in the JSON response.
	Name string

	// Probe tests the dependency. It must respect context cancellation.
	Probe func(ctx context.Context) error
}

// result is the JSON response body for health endpoints.
type result struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Rooms  int               `json:"rooms"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz endpoints. It is safe for concurrent
// use; the check list is fixed at construction time.
type Handler struct {
	checks    []Check
	started   time.Time
	roomCount func() int
}

// New creates a [Handler] that evaluates the given checks on each /readyz
// request, sequentially in the order provided. roomCount reports the number
// of live rooms for the liveness response; it may be nil.
func New(roomCount func() int, checks ...Check) *Handler {
	c := make([]Check, len(checks))
	copy(c, checks)
	if roomCount == nil {
		roomCount = func() int { return 0 }
	}
	return &Handler{checks: c, started: time.Now(), roomCount: roomCount}
}

// Healthz is a liveness probe that always returns 200 OK. A running process
// that can serve HTTP is considered alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{
		Status: "ok",
		Uptime: time.Since(h.started).Round(time.Second).String(),
		Rooms:  h.roomCount(),
	})
}

// Readyz is a readiness probe that returns 200 only when every registered
// [Check] passes. Each probe is given a context with a [checkTimeout]
// deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checks))
	allOK := true

	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Probe(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := result{
		Status: "ok",
		Uptime: time.Since(h.started).Round(time.Second).String(),
		Rooms:  h.roomCount(),
		Checks: checks,
	}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON encodes v as JSON and writes it with the given status code. On
// encoding failure it falls back to a plain-text 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
