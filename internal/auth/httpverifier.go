package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// requestTimeout bounds one verification round-trip. Verification happens on
// the join path, so it must stay snappy.
const requestTimeout = 5 * time.Second

// Compile-time assertion that HTTPVerifier satisfies Verifier.
var _ Verifier = (*HTTPVerifier)(nil)

// HTTPVerifier validates tokens against an identity provider's token-info
// endpoint. The endpoint receives the token as a bearer header and answers
// with the subject id and picture claim.
type HTTPVerifier struct {
	endpoint   string
	httpClient *http.Client
}

// HTTPVerifierOption is a functional option for configuring an HTTPVerifier.
type HTTPVerifierOption func(*HTTPVerifier)

// WithHTTPClient overrides the HTTP client used for verification calls.
func WithHTTPClient(c *http.Client) HTTPVerifierOption {
	return func(v *HTTPVerifier) { v.httpClient = c }
}

// NewHTTPVerifier creates an HTTPVerifier for the given token-info endpoint.
func NewHTTPVerifier(endpoint string, opts ...HTTPVerifierOption) (*HTTPVerifier, error) {
	if endpoint == "" {
		return nil, errors.New("auth: endpoint must not be empty")
	}
	v := &HTTPVerifier{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
	}
	for _, o := range opts {
		o(v)
	}
	return v, nil
}

// Verify implements [Verifier].
func (v *HTTPVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrInvalidToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("auth: verify request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Identity{}, ErrInvalidToken
	default:
		return Identity{}, fmt.Errorf("auth: token endpoint returned %s", resp.Status)
	}

	var body struct {
		Sub     string `json:"sub"`
		UserID  string `json:"user_id"`
		Picture string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Identity{}, fmt.Errorf("auth: decode token response: %w", err)
	}

	uid := body.Sub
	if uid == "" {
		uid = body.UserID
	}
	if uid == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: uid, PhotoURL: body.Picture}, nil
}
