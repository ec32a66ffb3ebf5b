// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielhkuo/real-hero/assign"
	"github.com/danielhkuo/real-hero/auth"
	"github.com/danielhkuo/real-hero/lifecycle"
	"github.com/danielhkuo/real-hero/middleware"
	"github.com/danielhkuo/real-hero/models"
	"github.com/danielhkuo/real-hero/store"
)

// statusFor maps a lifecycle error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrValidation),
		errors.Is(err, lifecycle.ErrInvalidResponse),
		errors.Is(err, lifecycle.ErrEmailRequired):
		return http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrUnknownUser):
		return http.StatusUnauthorized
	case errors.Is(err, lifecycle.ErrForbidden),
		errors.Is(err, auth.ErrInvalidSignature):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, assign.ErrDonorNotFound):
		return http.StatusNotFound
	case errors.Is(err, assign.ErrRequestClosed),
		errors.Is(err, assign.ErrAlreadyResponded),
		errors.Is(err, assign.ErrSelfDonation),
		errors.Is(err, assign.ErrNoPrimary),
		errors.Is(err, lifecycle.ErrRequestChanged):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError writes err as a JSON error. Unexpected errors are logged and
// replaced by fallback so internals never reach the client.
func writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error(fallback, "method", r.Method, "path", r.URL.Path, "error", err)
		middleware.ErrorResponse(w, status, fallback)
		return
	}
	msg := err.Error()
	if errors.Is(err, lifecycle.ErrValidation) {
		msg = strings.TrimPrefix(msg, lifecycle.ErrValidation.Error()+": ")
	}
	middleware.ErrorResponse(w, status, msg)
}

func message(w http.ResponseWriter, msg string) {
	middleware.JSONResponse(w, http.StatusOK, models.MessageResponse{OK: true, Message: msg})
}
