// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the Real-Hero API.

# Handler Types

Each handler is a thin struct over the lifecycle controller:

  - RequestHandler: Request creation, listing and every donor action
  - OfferHandler: Out-of-band offers and their follow-ups
  - RewardHandler: Leaderboard and personal reward history

Handlers are created via constructor functions:

	requestHandler := handlers.NewRequestHandler(ctrl)

The caller's identity is read from the request context, where
middleware.RequireIdentity or middleware.OptionalIdentity placed it.

# Donation Flow

	POST /api/requests            → CreateRequest
	POST /api/requests/{id}/claim → Claim (primary if free, else backup)
	POST /api/requests/{id}/arrived  → Arrived
	POST /api/requests/{id}/complete → Complete (emails the requester)
	GET  /api/requests/{id}/verify   → Verify (signed yes/no link)

A cancelling or timed-out primary is replaced by the earliest backup.

# Errors

Controller errors are mapped to status codes in errors.go:

	400 validation, bad answer, missing email
	401 unknown user
	403 not the requester, bad link signature
	404 missing request, offer or donor
	409 closed request, repeat claim, self donation, concurrent change

Anything else is logged and reported as a 500 with a generic message.
*/
package handlers
