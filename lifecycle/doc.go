// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package lifecycle runs the request, offer and reward flows on top of the
assign engine and a store.Store.

Every flow that changes a request follows the same shape:

	lock request:<id>
	  WithTx: load request → assign.Transition → UpdateRequest (+ responses, ledger)
	  retry on store.ErrVersionConflict, up to 3 attempts
	unlock
	send notifications (best effort, after commit)

A failed notification is logged and counted. It never undoes the state
change that produced it.

# Decision links

Verification, interest confirmation and offer follow-up answers arrive from
emailed links. Each link carries an HMAC over its subject and ids, checked
with auth.LinkSigner before anything is loaded. Offer responses use the
offer's random token instead.

# Rewards

	verify yes     primary +50 coins/+10 points, requester +20/+3,
	               each remaining backup +10/+2
	follow-up yes  donor +50 coins per unit, requester +5

Grants go through the store's ledger inside the same transaction as the
status change, so a verified request is rewarded exactly once.

# Sweeps

TimeoutPrimary, ExpireRequest and SendOfferFollowUp are the per-item steps
of the background scheduler. Each is a safe no-op when the item has
already moved on.
*/
package lifecycle
