// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"errors"
	"time"

	"github.com/danielhkuo/real-hero/models"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicate       = errors.New("duplicate record")
	ErrVersionConflict = errors.New("request was modified concurrently")
)

// RequestStore persists donation requests.
type RequestStore interface {
	CreateRequest(ctx context.Context, r *models.Request) error
	GetRequest(ctx context.Context, id string) (*models.Request, error)
	// UpdateRequest writes r only if the stored version still equals
	// r.Version, then increments r.Version. A stale write returns
	// ErrVersionConflict.
	UpdateRequest(ctx context.Context, r *models.Request) error
	DeleteRequest(ctx context.Context, id string) error
	// ListRequestsByRequester matches the requester id or the legacy uid.
	ListRequestsByRequester(ctx context.Context, userID, uid string) ([]*models.Request, error)
	// ListActiveRequests returns requests in statuses, newest first.
	ListActiveRequests(ctx context.Context, statuses []string, limit int) ([]*models.Request, error)
	// NearRequests returns located requests in statuses within maxMeters of
	// center, nearest first.
	NearRequests(ctx context.Context, center models.GeoPoint, maxMeters float64, statuses []string, limit int) ([]*models.Request, error)
	// ListStalePrimaries returns primary_assigned and backup_assigned
	// requests whose primary accepted before cutoff and has not arrived.
	ListStalePrimaries(ctx context.Context, cutoff time.Time) ([]*models.Request, error)
	// ListCreatedBefore returns requests created before cutoff.
	ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]*models.Request, error)
}

// DonorResponseStore persists per-donor roles. Responses are never deleted.
type DonorResponseStore interface {
	// CreateResponse returns ErrDuplicate if (RequestID, DonorID) exists.
	CreateResponse(ctx context.Context, dr *models.DonorResponse) error
	GetResponse(ctx context.Context, requestID, donorID string) (*models.DonorResponse, error)
	UpdateResponse(ctx context.Context, dr *models.DonorResponse) error
	ListResponsesByRequest(ctx context.Context, requestID string) ([]*models.DonorResponse, error)
	// ListResponsesByDonor returns the donor's history, newest first.
	ListResponsesByDonor(ctx context.Context, donorID string) ([]*models.DonorResponse, error)
}

// RewardLedger appends grants and keeps user balances in step.
type RewardLedger interface {
	// Grant appends one entry and increments the user's balances. It
	// returns ErrNotFound if the user does not exist.
	Grant(ctx context.Context, g models.RewardGrant) (*models.RewardEntry, error)
	// ListRewards returns the user's entries, newest first.
	ListRewards(ctx context.Context, userID string) ([]*models.RewardEntry, error)
	// Leaderboard orders users by points, then coins, descending.
	Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
}

// UserStore persists users. Authentication itself is external.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByUID(ctx context.Context, uid string) (*models.User, error)
	// NearbyAvailableUsers returns available, located users within
	// maxMeters of center, nearest first.
	NearbyAvailableUsers(ctx context.Context, center models.GeoPoint, maxMeters float64, limit int) ([]*models.User, error)
}

// OfferStore persists out-of-band donor offers.
type OfferStore interface {
	CreateOffer(ctx context.Context, o *models.Offer) error
	GetOffer(ctx context.Context, id string) (*models.Offer, error)
	GetOfferByToken(ctx context.Context, token string) (*models.Offer, error)
	UpdateOffer(ctx context.Context, o *models.Offer) error
	// ListDueFollowUps returns unsent follow-ups due at or before now that
	// still make sense to send, oldest first.
	ListDueFollowUps(ctx context.Context, now time.Time, limit int) ([]*models.Offer, error)
}

// Tx is the set of operations available inside a transaction.
type Tx interface {
	RequestStore
	DonorResponseStore
	RewardLedger
	UserStore
	OfferStore
}

// Store is a Tx that can also open transactions. Inside fn only tx may be
// used; the outer Store must not be called until fn returns.
type Store interface {
	Tx
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
