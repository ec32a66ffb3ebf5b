// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the Real-Hero API.

# Route Registration

NewRouter creates a configured http.ServeMux with all endpoints:

	mux := router.NewRouter(ctrl, resolver, registry)

# Endpoints

Health and metrics:

	GET /health
	GET /metrics

Requests:

	POST /api/requests           - Create request (token optional)
	GET  /api/requests/recent    - Open requests, nearest first with ?lat&lng
	GET  /api/requests/mine      - Requester's own requests
	GET  /api/requests/donations - Donor's responses

Donor actions (bearer token required):

	POST /api/requests/{id}/claim    - Claim as primary or backup
	POST /api/requests/{id}/interest - Email the requester for confirmation
	POST /api/requests/{id}/arrived  - Primary reached the hospital
	POST /api/requests/{id}/complete - Primary reports donation done
	POST /api/requests/{id}/cancel   - Withdraw
	POST /api/requests/{id}/close    - Requester closes the request

Emailed decision links (HMAC signed, no token):

	GET /api/requests/{id}/confirm-interest?donor&response&sig
	GET /api/requests/{id}/verify?response&sig
	GET /api/offers/respond?token&resp
	GET /api/offers/{id}/followup?resp&sig

Offers and rewards:

	POST /api/offers              - Out-of-band donation offer
	GET  /api/rewards/leaderboard - Top donors
	GET  /api/rewards/mine        - Caller's reward history

# Identity

Protected routes are wrapped with middleware.RequireIdentity. Request and
offer creation use middleware.OptionalIdentity so anonymous callers are
accepted. The resolver is any auth.IdentityResolver.
*/
package router
