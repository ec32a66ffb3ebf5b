// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Logging

Wrap handlers with request logging:

	mux.HandleFunc("GET /health", middleware.WithLogging(handler))

Logs request start (method, path, client IP) and completion (status,
duration_ms).

# CORS Middleware

Enable cross-origin requests for the configured frontend origins:

	server := http.Server{
		Handler: middleware.CORS(cfg.AllowedOrigins)(mux),
	}

A "*" entry allows any origin. Allows methods GET, POST, PUT, DELETE,
OPTIONS with headers Content-Type and Authorization.

# Identity

Authentication is delegated. Handlers that need a user are wrapped with
RequireIdentity, which resolves the bearer token through an
auth.IdentityResolver and stores the user id on the request context:

	mux.HandleFunc("POST /api/requests/{id}/claim",
		middleware.WithLogging(middleware.RequireIdentity(resolver, h.Claim)))

	userID := middleware.UserID(r.Context())

OptionalIdentity lets anonymous requests through.

# Responses and Bodies

JSONResponse encodes any value with the given status. ErrorResponse wraps
a message in models.ErrorResponse, using the status text as the error
field. ParseJSONBody decodes at most 1 MiB into the target; handlers treat
any error as a 400.

# Client Address

GetClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then
the host part of RemoteAddr. It is used for logging only.
*/
package middleware
