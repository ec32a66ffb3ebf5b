// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/danielhkuo/real-hero/models"
)

// Templates understood by the delivery worker.
const (
	TemplateDonorNeeded        = "donor_needed"
	TemplatePrimaryAssigned    = "primary_assigned"
	TemplateBackupAssigned     = "backup_assigned"
	TemplateDonorFound         = "donor_found"
	TemplatePromoted           = "promoted_to_primary"
	TemplateDonorChanged       = "donor_changed"
	TemplateRequestReopened    = "request_reopened"
	TemplateTimedOut           = "primary_timed_out"
	TemplateVerifyDonation     = "verify_donation"
	TemplateRewarded           = "donation_rewarded"
	TemplateVerificationFailed = "verification_failed"
	TemplateRequestClosed      = "request_closed"
	TemplateConfirmInterest    = "confirm_interest"
	TemplateOfferRequest       = "offer_request"
	TemplateOfferAccepted      = "offer_accepted"
	TemplateOfferFollowUp      = "offer_followup"
)

var ErrQueueFull = errors.New("notification queue full")

// Notifier hands a notification to an external delivery channel.
// Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n models.Notification) error

func (f Func) Notify(ctx context.Context, n models.Notification) error {
	return f(ctx, n)
}

// Log writes notifications to slog instead of delivering them.
type Log struct{}

func (Log) Notify(_ context.Context, n models.Notification) error {
	slog.Info("notification",
		"template", n.Template,
		"user_id", n.UserID,
		"email", n.Email,
		"request_id", n.Payload["request_id"],
	)
	return nil
}

// Multi sends to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n models.Notification) error {
	var errs []error
	for _, next := range m {
		if err := next.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
