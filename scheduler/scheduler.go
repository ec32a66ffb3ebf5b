// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/danielhkuo/real-hero/assign"
	"github.com/danielhkuo/real-hero/models"
)

// Expiry policies.
const (
	// ExpiryAll deletes every request older than models.RequestTTL.
	ExpiryAll = "all"
	// ExpiryOpenOnly deletes only old requests that are still open.
	ExpiryOpenOnly = "open_only"
)

const (
	DefaultInterval = 5 * time.Minute
	// followUpBatch caps the offer follow-ups sent per sweep.
	followUpBatch = 50
)

// Lifecycle is the per-item work the sweeps delegate to. Each call must be
// a no-op when the item has already moved on.
type Lifecycle interface {
	TimeoutPrimary(ctx context.Context, requestID, expectedPrimary string) (assign.Outcome, error)
	ExpireRequest(ctx context.Context, requestID string, openOnly bool) (bool, error)
	SendOfferFollowUp(ctx context.Context, offerID string) (bool, error)
}

// Lister finds sweep candidates.
type Lister interface {
	ListStalePrimaries(ctx context.Context, cutoff time.Time) ([]*models.Request, error)
	ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]*models.Request, error)
	ListDueFollowUps(ctx context.Context, now time.Time, limit int) ([]*models.Offer, error)
}

type Config struct {
	Lifecycle Lifecycle
	Lister    Lister
	Interval  time.Duration
	// Window is the primary donor response window.
	Window       time.Duration
	ExpiryPolicy string
	Clock        func() time.Time
}

// Report summarizes one sweep.
type Report struct {
	TimedOut      int
	Promoted      int
	Reopened      int
	Expired       int
	Retained      int
	FollowUpsSent int
	Errors        int
}

func (r Report) empty() bool {
	return r == Report{}
}

type Scheduler struct {
	lifecycle Lifecycle
	lister    Lister
	interval  time.Duration
	window    time.Duration
	openOnly  bool
	now       func() time.Time
}

func New(cfg Config) (*Scheduler, error) {
	if cfg.Lifecycle == nil || cfg.Lister == nil {
		return nil, fmt.Errorf("scheduler: lifecycle and lister are required")
	}
	s := &Scheduler{
		lifecycle: cfg.Lifecycle,
		lister:    cfg.Lister,
		interval:  cfg.Interval,
		window:    cfg.Window,
		now:       cfg.Clock,
	}
	switch cfg.ExpiryPolicy {
	case "", ExpiryAll:
	case ExpiryOpenOnly:
		s.openOnly = true
	default:
		return nil, fmt.Errorf("scheduler: unknown expiry policy %q", cfg.ExpiryPolicy)
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.window <= 0 {
		return nil, fmt.Errorf("scheduler: response window must be positive")
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("starting scheduler",
		"interval", s.interval.String(),
		"window", s.window.String(),
		"open_only_expiry", s.openOnly,
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.SweepOnce(ctx)
	for {
		select {
		case <-ticker.C:
			s.SweepOnce(ctx)
		case <-ctx.Done():
			slog.Info("stopping scheduler")
			return nil
		}
	}
}

// SweepOnce runs the timeout, expiry and offer follow-up sweeps in order.
// A failure on one item is logged and does not stop the others.
func (s *Scheduler) SweepOnce(ctx context.Context) Report {
	var rep Report
	s.sweepTimeouts(ctx, &rep)
	s.sweepExpired(ctx, &rep)
	s.sweepFollowUps(ctx, &rep)

	if rep.empty() {
		slog.Debug("sweep finished, nothing to do")
	} else {
		slog.Info("sweep finished",
			"timed_out", rep.TimedOut,
			"promoted", rep.Promoted,
			"reopened", rep.Reopened,
			"expired", rep.Expired,
			"retained", rep.Retained,
			"follow_ups_sent", rep.FollowUpsSent,
			"errors", rep.Errors,
		)
	}
	return rep
}

func (s *Scheduler) sweepTimeouts(ctx context.Context, rep *Report) {
	stale, err := s.lister.ListStalePrimaries(ctx, s.now().Add(-s.window))
	if err != nil {
		rep.Errors++
		slog.Error("failed to list stale primaries", "error", err)
		return
	}
	for _, r := range stale {
		if ctx.Err() != nil {
			return
		}
		if r.PrimaryDonor == nil {
			continue
		}
		out, err := s.lifecycle.TimeoutPrimary(ctx, r.ID, r.PrimaryDonor.DonorID)
		if err != nil {
			rep.Errors++
			slog.Error("timeout failed", "request_id", r.ID, "donor_id", r.PrimaryDonor.DonorID, "error", err)
			continue
		}
		if !out.Changed {
			continue
		}
		rep.TimedOut++
		if out.Reopened {
			rep.Reopened++
		} else {
			rep.Promoted++
		}
		slog.Info("primary donor timed out",
			"request_id", r.ID,
			"donor_id", out.Displaced,
			"promoted", out.Promoted,
			"reopened", out.Reopened,
		)
	}
}

func (s *Scheduler) sweepExpired(ctx context.Context, rep *Report) {
	old, err := s.lister.ListCreatedBefore(ctx, s.now().Add(-models.RequestTTL))
	if err != nil {
		rep.Errors++
		slog.Error("failed to list expired requests", "error", err)
		return
	}
	for _, r := range old {
		if ctx.Err() != nil {
			return
		}
		deleted, err := s.lifecycle.ExpireRequest(ctx, r.ID, s.openOnly)
		if err != nil {
			rep.Errors++
			slog.Error("expiry failed", "request_id", r.ID, "error", err)
			continue
		}
		if deleted {
			rep.Expired++
			slog.Info("request expired", "request_id", r.ID, "status", r.Status)
			continue
		}
		rep.Retained++
		slog.Info("retaining expired request", "request_id", r.ID, "status", r.Status)
	}
}

func (s *Scheduler) sweepFollowUps(ctx context.Context, rep *Report) {
	due, err := s.lister.ListDueFollowUps(ctx, s.now(), followUpBatch)
	if err != nil {
		rep.Errors++
		slog.Error("failed to list due offer follow-ups", "error", err)
		return
	}
	for _, o := range due {
		if ctx.Err() != nil {
			return
		}
		sent, err := s.lifecycle.SendOfferFollowUp(ctx, o.ID)
		if err != nil {
			rep.Errors++
			slog.Error("offer follow-up failed", "offer_id", o.ID, "error", err)
			continue
		}
		if sent {
			rep.FollowUpsSent++
		}
	}
}
