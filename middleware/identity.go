// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielhkuo/real-hero/auth"
)

type ctxKey struct{}

// WithUserID returns ctx carrying the authenticated user id
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserID returns the authenticated user id, or "" for anonymous requests
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// RequireIdentity rejects requests without a valid bearer token
func RequireIdentity(resolver auth.IdentityResolver, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			ErrorResponse(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := resolver.Resolve(r.Context(), token)
		if err != nil {
			slog.Info("rejected bearer token", "path", r.URL.Path, "error", err)
			ErrorResponse(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next(w, r.WithContext(WithUserID(r.Context(), userID)))
	}
}

// OptionalIdentity resolves a bearer token when one is sent. A bad token is
// still rejected; a missing one passes through anonymously.
func OptionalIdentity(resolver auth.IdentityResolver, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if bearerToken(r) == "" {
			next(w, r)
			return
		}
		RequireIdentity(resolver, next)(w, r)
	}
}
