// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the Real-Hero API server.

Real-Hero coordinates emergency blood donations. A requester posts a need,
nearby donors claim it as primary or backup, a primary who goes quiet is
replaced by the next backup, and verified donations earn coins and
leaderboard points.

# Starting the Server

The server requires environment variables or CLI flags for configuration:

	LINK_SECRET=... JWT_SECRET=... DATABASE_URL=realhero.db go run .

Or with flags:

	go run . -p 5000 -t postgres -d "postgres://..." -link-secret ... -jwt-secret ...

A .env file in the working directory is read first.

# Configuration

Required settings:

  - LINK_SECRET (-link-secret): HMAC secret for emailed decision links
  - JWT_SECRET (-jwt-secret): Secret for bearer token validation
  - DATABASE_URL (-d): Connection string, unless DATABASE_TYPE is memory

Optional settings:

  - PORT (-p): Server port (default: 5000)
  - DATABASE_TYPE (-t): sqlite, postgres or memory (default: sqlite)
  - SERVER_BASE (-base): Public URL placed in links
  - REDIS_URL (-redis): Publish notifications to a Redis stream
  - NOTIFY_STREAM (-notify-stream): Stream name (default: notifications)
  - GEOCODER_URL (-geocoder): Nominatim endpoint for hospital lookup
  - FRONTEND_ORIGINS (-origins): CORS allow-list (default: *)
  - SWEEP_INTERVAL (-sweep), RESPONSE_WINDOW (-window), EXPIRY_POLICY (-expiry)
  - LOG_LEVEL: debug, info, warn or error

# Architecture

  - assign: Pure primary/backup state machine
  - lifecycle: Flows over assign, storage and notifications
  - scheduler: Timeout, expiry and offer follow-up sweeps
  - store: Memory and SQL persistence with optimistic versions
  - notify: Log, Redis stream and async delivery
  - geo: Distances and Nominatim geocoding
  - auth: IDs, signed links and JWT identity
  - handlers, router, middleware: HTTP surface
  - db: Schema creation
  - cliparse: Configuration parsing

See package documentation for each component.
*/
package main
