package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewHTTPVerifier_EmptyEndpoint(t *testing.T) {
	if _, err := NewHTTPVerifier(""); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}

func TestHTTPVerifier_Verify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"sub":"user-1","picture":"https://img.example/u1.png"}`))
		case "Bearer legacy":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"user_id":"user-2"}`))
		case "Bearer empty":
			w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	v, err := NewHTTPVerifier(srv.URL)
	if err != nil {
		t.Fatalf("NewHTTPVerifier: %v", err)
	}

	tests := []struct {
		name      string
		token     string
		want      Identity
		wantErr   error
		wantAnyEr bool
	}{
		{
			name:  "valid token",
			token: "good",
			want:  Identity{UserID: "user-1", PhotoURL: "https://img.example/u1.png"},
		},
		{
			name:  "user_id fallback claim",
			token: "legacy",
			want:  Identity{UserID: "user-2"},
		},
		{
			name:    "rejected token",
			token:   "bad",
			wantErr: ErrInvalidToken,
		},
		{
			name:    "empty token short-circuits",
			token:   "",
			wantErr: ErrInvalidToken,
		},
		{
			name:    "response without subject",
			token:   "empty",
			wantErr: ErrInvalidToken,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := v.Verify(context.Background(), tc.token)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if got != tc.want {
				t.Errorf("identity = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestHTTPVerifier_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	v, err := NewHTTPVerifier(srv.URL)
	if err != nil {
		t.Fatalf("NewHTTPVerifier: %v", err)
	}

	_, err = v.Verify(context.Background(), "whatever")
	if err == nil {
		t.Fatal("expected error on 500 response")
	}
	if errors.Is(err, ErrInvalidToken) {
		t.Error("server error must not be reported as an invalid token")
	}
}
