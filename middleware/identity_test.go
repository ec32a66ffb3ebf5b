// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielhkuo/real-hero/auth"
)

func TestRequireIdentity(t *testing.T) {
	resolver := auth.NewJWTResolver("secret", "real-hero")
	valid, err := resolver.IssueToken("user-1", time.Hour, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	expired, err := resolver.IssueToken("user-1", time.Hour, time.Now().Add(-2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		name           string
		header         string
		expectedStatus int
		expectedUser   string
	}{
		{"valid token", "Bearer " + valid, http.StatusOK, "user-1"},
		{"lowercase scheme", "bearer " + valid, http.StatusOK, "user-1"},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized, ""},
		{"expired token", "Bearer " + expired, http.StatusUnauthorized, ""},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			handler := RequireIdentity(resolver, func(w http.ResponseWriter, r *http.Request) {
				seen = UserID(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest("POST", "/api/requests/r1/claim", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()

			handler(w, req)

			if w.Code != tc.expectedStatus {
				t.Errorf("Expected status %d, got %d", tc.expectedStatus, w.Code)
			}
			if seen != tc.expectedUser {
				t.Errorf("Expected user '%s', got '%s'", tc.expectedUser, seen)
			}
		})
	}
}

func TestOptionalIdentity(t *testing.T) {
	resolver := auth.ResolverFunc(func(_ context.Context, token string) (string, error) {
		if token == "good" {
			return "user-2", nil
		}
		return "", auth.ErrInvalidToken
	})

	testCases := []struct {
		name           string
		header         string
		expectedStatus int
		expectedUser   string
	}{
		{"anonymous", "", http.StatusOK, ""},
		{"resolved", "Bearer good", http.StatusOK, "user-2"},
		{"bad token is still rejected", "Bearer bad", http.StatusUnauthorized, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			handler := OptionalIdentity(resolver, func(w http.ResponseWriter, r *http.Request) {
				seen = UserID(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest("POST", "/api/requests", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()

			handler(w, req)

			if w.Code != tc.expectedStatus {
				t.Errorf("Expected status %d, got %d", tc.expectedStatus, w.Code)
			}
			if seen != tc.expectedUser {
				t.Errorf("Expected user '%s', got '%s'", tc.expectedUser, seen)
			}
		})
	}
}

func TestUserID_Empty(t *testing.T) {
	if got := UserID(context.Background()); got != "" {
		t.Errorf("Expected empty user id, got '%s'", got)
	}
	if got := UserID(WithUserID(context.Background(), "u")); got != "u" {
		t.Errorf("Expected 'u', got '%s'", got)
	}
}
