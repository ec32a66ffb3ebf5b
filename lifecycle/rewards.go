// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/danielhkuo/real-hero/models"
	"github.com/danielhkuo/real-hero/notify"
	"github.com/danielhkuo/real-hero/store"
)

// RewardPolicy holds the amounts granted when a donation is verified or an
// offer follow-up is confirmed.
type RewardPolicy struct {
	PrimaryCoins    int
	PrimaryPoints   int
	RequesterCoins  int
	RequesterPoints int
	// Every backup entry other than the current primary gets this,
	// promoted or not.
	BackupCoins  int
	BackupPoints int

	FollowUpCoinsPerUnit   int
	FollowUpRequesterCoins int
}

var DefaultRewards = RewardPolicy{
	PrimaryCoins:           50,
	PrimaryPoints:          10,
	RequesterCoins:         20,
	RequesterPoints:        3,
	BackupCoins:            10,
	BackupPoints:           2,
	FollowUpCoinsPerUnit:   50,
	FollowUpRequesterCoins: 5,
}

// DefaultLeaderboardSize is used when the caller asks for no limit.
const (
	DefaultLeaderboardSize = 50
	maxLeaderboardSize     = 200
)

// verifiedGrants lists the grants owed for a verified request. The
// requester is skipped when requesterID is empty.
func (p RewardPolicy) verifiedGrants(r *models.Request, requesterID string, now time.Time) []models.RewardGrant {
	base := models.RewardGrant{
		RequestID:   r.ID,
		PatientName: r.Name,
		Hospital:    r.Hospital,
		GrantedAt:   now,
	}

	var grants []models.RewardGrant
	primary := ""
	if r.PrimaryDonor != nil {
		primary = r.PrimaryDonor.DonorID
		g := base
		g.UserID = primary
		g.Coins, g.Points = p.PrimaryCoins, p.PrimaryPoints
		g.Category = models.CategoryDonationCompleted
		g.CountsDonation = true
		grants = append(grants, g)
	}
	if requesterID != "" {
		g := base
		g.UserID = requesterID
		g.Coins, g.Points = p.RequesterCoins, p.RequesterPoints
		g.Category = models.CategoryRequestFulfilled
		grants = append(grants, g)
	}
	for _, b := range r.BackupDonors {
		if b.DonorID == primary {
			continue
		}
		g := base
		g.UserID = b.DonorID
		g.Coins, g.Points = p.BackupCoins, p.BackupPoints
		g.Category = models.CategoryBackupArrival
		grants = append(grants, g)
	}
	return grants
}

// applyGrants writes grants through the ledger inside tx. Grants for users
// that no longer exist are skipped.
func (c *Controller) applyGrants(ctx context.Context, tx store.Tx, grants []models.RewardGrant) ([]*models.RewardEntry, []models.Notification, error) {
	var (
		entries []*models.RewardEntry
		notes   []models.Notification
	)
	for _, g := range grants {
		u, err := tx.GetUser(ctx, g.UserID)
		if errors.Is(err, store.ErrNotFound) {
			slog.Warn("skipping reward for unknown user", "user_id", g.UserID, "request_id", g.RequestID, "category", g.Category)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("load user %s: %w", g.UserID, err)
		}

		entry, err := tx.Grant(ctx, g)
		if err != nil {
			return nil, nil, fmt.Errorf("grant %s to %s: %w", g.Category, g.UserID, err)
		}
		entries = append(entries, entry)

		notes = append(notes, models.Notification{
			UserID:   u.ID,
			Email:    u.Email,
			Template: notify.TemplateRewarded,
			Payload: map[string]string{
				"name":       u.Name,
				"category":   g.Category,
				"coins":      strconv.Itoa(g.Coins),
				"points":     strconv.Itoa(g.Points),
				"hospital":   g.Hospital,
				"request_id": g.RequestID,
			},
		})
	}
	return entries, notes, nil
}

// MyRewards returns the user's ledger entries, newest first.
func (c *Controller) MyRewards(ctx context.Context, userID string) ([]*models.RewardEntry, error) {
	entries, err := c.store.ListRewards(ctx, userID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*models.RewardEntry{}
	}
	return entries, nil
}

// Leaderboard returns the top users by points, then coins.
func (c *Controller) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}
	limit = min(limit, maxLeaderboardSize)
	return c.store.Leaderboard(ctx, limit)
}
