// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, and domain types for the API.

# Domain Types

  - Request: a blood request with its primary donor and ordered backups
  - DonorResponse: one donor's role and status on one request (never deleted)
  - RewardEntry: append-only ledger line; User carries the running balances
  - Offer: out-of-band contact with a prospective donor, answered by token
  - DonorSnapshot: donor contact details captured at offer time
  - Notification: best-effort message for the external delivery worker

# Request Types

  - CreateRequestRequest: name, phone, blood_group, hospital, units, location
  - CreateOfferRequest: request_id, donor name/phone/email/age, units

# Response Types

  - CreateRequestResponse, ClaimResponse, MessageResponse, CreateOfferResponse
  - NearbyRequest: request plus distance_km when queried by location
  - ErrorResponse: error, message

# Constants

Request status values:

	StatusOpen                = "open"
	StatusPrimaryAssigned     = "primary_assigned"
	StatusBackupAssigned      = "backup_assigned"
	StatusPendingVerification = "pending_verification"
	StatusFulfilled           = "fulfilled"
	StatusFailed              = "failed"
	StatusCancelled           = "cancelled"

Donor roles:

	RolePrimary = "primary"
	RoleBackup  = "backup"

Donor response status:

	ResponseActive, ResponsePromoted, ResponseCompleted,
	ResponseFailed, ResponseCancelled

Ledger categories:

	CategoryDonationCompleted = "donation_completed"
	CategoryRequestFulfilled  = "request_fulfilled"
	CategoryBackupArrival     = "backup_arrival"
	CategoryOfferFollowUp     = "offer_followup"
*/
package models
