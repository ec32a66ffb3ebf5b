// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

ParseFlags returns a Config struct with all settings:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

A .env file in the working directory is loaded first (github.com/joho/godotenv).
Variables already present in the environment win over the file.

# Flags and Environment Variables

	-p              PORT              server port (default 5000)
	-d              DATABASE_URL      database URL (not needed for memory)
	-t              DATABASE_TYPE     sqlite (default), postgres or memory
	-base           SERVER_BASE       public base URL for emailed links
	-redis          REDIS_URL         notification stream; empty logs only
	-notify-stream  NOTIFY_STREAM     stream name (default notifications)
	-geocoder       GEOCODER_URL      Nominatim base URL
	-origins        FRONTEND_ORIGINS  comma-separated CORS origins (default *)
	-sweep          SWEEP_INTERVAL    scheduler interval (default 5m)
	-window         RESPONSE_WINDOW   primary donor response window (default 2h)
	-expiry         EXPIRY_POLICY     all (default) or open_only
	-link-secret    LINK_SECRET       HMAC secret for decision links
	-jwt-secret     JWT_SECRET        bearer token secret

CLI flags take precedence over environment variables.

# Validation

ParseFlags returns an error if DATABASE_URL (unless memory), LINK_SECRET
or JWT_SECRET is missing, or if a duration or policy does not parse.
*/
package cliparse
