// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package assign decides donor roles and request status transitions.

Transition is a pure function over a *models.Request and is the only place
that writes Request.Status. Callers load a request, apply an event, then
persist the result together with the matching DonorResponse changes.

# Events

	Claim      open → primary_assigned, otherwise queue as backup
	Cancel     primary leaves → promote; backup leaves → removed from queue
	Timeout    stale primary that has not arrived → promote
	Promote    promote past an expected primary (no-op if already replaced)
	VerifyYes  → fulfilled
	VerifyNo   → failed
	Arrive     primary flagged at the hospital (exempt from timeout)
	Complete   current primary or a waiting backup; request unchanged

# Promotion

The first backup in insertion order with promoted=false becomes primary and
the request goes to primary_assigned. With no eligible backup the primary is
cleared and the request reopens.

# Errors

	ErrRequestClosed     terminal status
	ErrAlreadyResponded  donor already has a response for this request
	ErrSelfDonation      donor is the requester
	ErrDonorNotFound     donor is neither primary nor backup
	ErrNoPrimary         verification on an open request
*/
package assign
