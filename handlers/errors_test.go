// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/danielhkuo/real-hero/assign"
	"github.com/danielhkuo/real-hero/auth"
	"github.com/danielhkuo/real-hero/lifecycle"
	"github.com/danielhkuo/real-hero/middleware"
	"github.com/danielhkuo/real-hero/models"
	"github.com/danielhkuo/real-hero/store"
	"github.com/danielhkuo/real-hero/testutil"
)

// serve runs h with userID as the resolved identity. An empty userID is an
// anonymous caller.
func serve(h http.HandlerFunc, req *http.Request, userID string) *httptest.ResponseRecorder {
	if userID != "" {
		req = req.WithContext(middleware.WithUserID(req.Context(), userID))
	}
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

// withID sets the {id} path value the router would have extracted.
func withID(req *http.Request, id string) *http.Request {
	req.SetPathValue("id", id)
	return req
}

// followLink turns an emailed absolute link into a request against the
// handler, with {id} set to id.
func followLink(t *testing.T, raw, id string) *http.Request {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("Failed to parse link %q: %v", raw, err)
	}
	req := httptest.NewRequest("GET", u.RequestURI(), nil)
	if id != "" {
		req.SetPathValue("id", id)
	}
	return req
}

func TestStatusFor(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected int
	}{
		{"validation", fmt.Errorf("%w: missing required fields: name", lifecycle.ErrValidation), http.StatusBadRequest},
		{"invalid response", lifecycle.ErrInvalidResponse, http.StatusBadRequest},
		{"email required", lifecycle.ErrEmailRequired, http.StatusBadRequest},
		{"unknown user", lifecycle.ErrUnknownUser, http.StatusUnauthorized},
		{"forbidden", lifecycle.ErrForbidden, http.StatusForbidden},
		{"bad signature", auth.ErrInvalidSignature, http.StatusForbidden},
		{"request not found", lifecycle.ErrRequestNotFound, http.StatusNotFound},
		{"offer not found", lifecycle.ErrOfferNotFound, http.StatusNotFound},
		{"store not found", store.ErrNotFound, http.StatusNotFound},
		{"donor not found", assign.ErrDonorNotFound, http.StatusNotFound},
		{"closed", assign.ErrRequestClosed, http.StatusConflict},
		{"already responded", assign.ErrAlreadyResponded, http.StatusConflict},
		{"self donation", assign.ErrSelfDonation, http.StatusConflict},
		{"no primary", assign.ErrNoPrimary, http.StatusConflict},
		{"changed", lifecycle.ErrRequestChanged, http.StatusConflict},
		{"wrapped conflict", fmt.Errorf("claim: %w", assign.ErrRequestClosed), http.StatusConflict},
		{"unexpected", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusFor(tc.err); got != tc.expected {
				t.Errorf("Expected %d, got %d", tc.expected, got)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/requests", nil)

	t.Run("validation prefix stripped", func(t *testing.T) {
		w := httptest.NewRecorder()
		writeError(w, req, fmt.Errorf("%w: missing required fields: phone", lifecycle.ErrValidation), "fallback")

		if w.Code != http.StatusBadRequest {
			t.Fatalf("Expected 400, got %d", w.Code)
		}
		var resp models.ErrorResponse
		testutil.AssertJSON(t, w, &resp)
		if resp.Message != "missing required fields: phone" {
			t.Errorf("Unexpected message %q", resp.Message)
		}
		if resp.Error != http.StatusText(http.StatusBadRequest) {
			t.Errorf("Unexpected error %q", resp.Error)
		}
	})

	t.Run("internal error hidden", func(t *testing.T) {
		w := httptest.NewRecorder()
		writeError(w, req, errors.New("pq: connection refused"), "Failed to create request")

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("Expected 500, got %d", w.Code)
		}
		var resp models.ErrorResponse
		testutil.AssertJSON(t, w, &resp)
		if resp.Message != "Failed to create request" {
			t.Errorf("Expected fallback message, got %q", resp.Message)
		}
	})

	t.Run("conflict message passed through", func(t *testing.T) {
		w := httptest.NewRecorder()
		writeError(w, req, assign.ErrAlreadyResponded, "fallback")

		if w.Code != http.StatusConflict {
			t.Fatalf("Expected 409, got %d", w.Code)
		}
		var resp models.ErrorResponse
		testutil.AssertJSON(t, w, &resp)
		if resp.Message != assign.ErrAlreadyResponded.Error() {
			t.Errorf("Unexpected message %q", resp.Message)
		}
	})
}
