// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/danielhkuo/real-hero/assign"
	"github.com/danielhkuo/real-hero/auth"
	"github.com/danielhkuo/real-hero/models"
	"github.com/danielhkuo/real-hero/notify"
	"github.com/danielhkuo/real-hero/store"
)

// OfferFollowUpDelay is how long after an offer the requester is asked
// whether the donor actually donated.
const OfferFollowUpDelay = 24 * time.Hour

// whatsAppLink builds a wa.me link with prefilled text. It returns "" when
// phone has no digits.
func whatsAppLink(phone, text string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "https://wa.me/" + b.String() + "?text=" + url.QueryEscape(text)
}

func (c *Controller) withOffer(ctx context.Context, offerID string, fn func(tx store.Tx, o *models.Offer) ([]models.Notification, error)) error {
	unlock := c.locks.Lock("offer:" + offerID)
	defer unlock()

	var notes []models.Notification
	err := c.store.WithTx(ctx, func(tx store.Tx) error {
		o, err := tx.GetOffer(ctx, offerID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrOfferNotFound
		}
		if err != nil {
			return err
		}
		notes, err = fn(tx, o)
		return err
	})
	if err != nil {
		return err
	}
	c.send(ctx, notes)
	return nil
}

// CreateOffer records a prospective donor for a request and emails them a
// yes/no link. donorUserID is empty for donors outside the app; their
// contact details come from in.
func (c *Controller) CreateOffer(ctx context.Context, in models.CreateOfferRequest, donorUserID string) (models.CreateOfferResponse, error) {
	if strings.TrimSpace(in.RequestID) == "" {
		return models.CreateOfferResponse{}, fmt.Errorf("%w: request_id is required", ErrValidation)
	}
	if in.Units < 0 {
		return models.CreateOfferResponse{}, fmt.Errorf("%w: units must be positive", ErrValidation)
	}
	if in.Units == 0 {
		in.Units = 1
	}
	r, err := c.getRequest(ctx, in.RequestID)
	if err != nil {
		return models.CreateOfferResponse{}, err
	}

	snap := models.DonorSnapshot{
		Name:  strings.TrimSpace(in.Name),
		Phone: strings.TrimSpace(in.Phone),
		Email: strings.TrimSpace(in.Email),
		Age:   in.Age,
	}
	var donor *models.User
	if donorUserID != "" {
		u, err := c.user(ctx, donorUserID)
		switch {
		case err == nil:
			donor = u
			snap = snap.Merge(u)
		case !errors.Is(err, ErrUnknownUser):
			return models.CreateOfferResponse{}, err
		}
	}
	if snap.Phone == "" {
		return models.CreateOfferResponse{}, fmt.Errorf("%w: donor phone is required to create an offer", ErrValidation)
	}

	token, err := auth.GenerateOfferToken()
	if err != nil {
		return models.CreateOfferResponse{}, err
	}
	now := c.now()
	o := &models.Offer{
		ID:         auth.NewID(),
		RequestID:  r.ID,
		Donor:      snap,
		Token:      token,
		Units:      in.Units,
		Status:     models.OfferPending,
		FollowUpAt: now.Add(OfferFollowUpDelay),
		CreatedAt:  now,
	}
	if donor != nil {
		id := donor.ID
		o.DonorUserID = &id
	}
	if err := c.store.CreateOffer(ctx, o); err != nil {
		return models.CreateOfferResponse{}, fmt.Errorf("create offer: %w", err)
	}

	if snap.Email != "" {
		n := models.Notification{
			Email:    snap.Email,
			Template: notify.TemplateOfferRequest,
			Payload: requestPayload(r, map[string]string{
				"name":     snap.Name,
				"offer_id": o.ID,
				"yes_url":  c.link("/api/offers/respond", "token", token, "resp", models.AnswerYes),
				"no_url":   c.link("/api/offers/respond", "token", token, "resp", models.AnswerNo),
			}),
		}
		if donor != nil {
			n.UserID = donor.ID
		}
		c.send(ctx, []models.Notification{n})
	}

	slog.Info("offer created", "offer_id", o.ID, "request_id", r.ID, "known_donor", donor != nil)
	return models.CreateOfferResponse{
		OfferID: o.ID,
		WhatsApp: whatsAppLink(snap.Phone, fmt.Sprintf(
			"Hi %s, are you willing to donate blood to %s? Please reply YES or NO.", snap.Name, r.Name)),
		Message: "Offer created. Email sent to donor if available. WhatsApp link included if donor phone known.",
	}, nil
}

// RespondOffer records the donor's answer to an offer. Only the first
// answer counts. A yes from a registered donor also claims the request.
func (c *Controller) RespondOffer(ctx context.Context, token, resp string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: token is required", ErrValidation)
	}
	if !validAnswer(resp) {
		return "", ErrInvalidResponse
	}
	found, err := c.store.GetOfferByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrOfferNotFound
	}
	if err != nil {
		return "", err
	}

	var (
		offer    *models.Offer
		repeated bool
	)
	err = c.withOffer(ctx, found.ID, func(tx store.Tx, o *models.Offer) ([]models.Notification, error) {
		if o.Response != "" {
			repeated = true
			return nil, nil
		}
		now := c.now()
		o.Response = resp
		o.RespondedAt = &now
		o.Status = models.OfferDeclined
		if resp == models.AnswerYes {
			o.Status = models.OfferAccepted
		}
		offer = o
		return nil, tx.UpdateOffer(ctx, o)
	})
	if err != nil {
		return "", err
	}
	if repeated {
		return "Offer already responded.", nil
	}

	slog.Info("offer answered", "offer_id", offer.ID, "response", resp)
	if resp == models.AnswerYes {
		c.offerAccepted(ctx, offer)
	}
	return fmt.Sprintf("Thanks, your response was recorded as %q.", resp), nil
}

// offerAccepted claims the request for a registered donor and tells the
// requester how to reach them. Failures here are logged; the answer itself
// is already recorded.
func (c *Controller) offerAccepted(ctx context.Context, o *models.Offer) {
	var donor *models.User
	if o.DonorUserID != nil {
		u, err := c.store.GetUser(ctx, *o.DonorUserID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			slog.Warn("failed to load offer donor", "offer_id", o.ID, "error", err)
		}
		donor = u
	}

	if donor != nil {
		_, err := c.Claim(ctx, o.RequestID, donor.ID)
		switch {
		case err == nil:
		case errors.Is(err, assign.ErrAlreadyResponded), errors.Is(err, assign.ErrRequestClosed),
			errors.Is(err, assign.ErrSelfDonation), errors.Is(err, ErrRequestNotFound):
			slog.Info("offer did not claim request", "offer_id", o.ID, "reason", err)
		default:
			slog.Error("offer claim failed", "offer_id", o.ID, "error", err)
		}
	}

	var notes []models.Notification
	err := c.store.WithTx(ctx, func(tx store.Tx) error {
		r, err := tx.GetRequest(ctx, o.RequestID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		requester, err := requesterOf(ctx, tx, r)
		if err != nil {
			return err
		}

		d := o.Donor.Merge(donor)
		age := ""
		if d.Age > 0 {
			age = strconv.Itoa(d.Age)
		}
		sig := c.signer.Sign(linkFollowUp, o.ID)
		path := "/api/offers/" + url.PathEscape(o.ID) + "/followup"
		payload := map[string]string{
			"offer_id":    o.ID,
			"donor_name":  d.Name,
			"donor_phone": d.Phone,
			"donor_email": d.Email,
			"donor_age":   age,
			"yes_url":     c.link(path, "resp", models.AnswerYes, "sig", sig),
			"no_url":      c.link(path, "resp", models.AnswerNo, "sig", sig),
		}
		if wa := whatsAppLink(r.Phone, fmt.Sprintf(
			"Hi %s, donor %s (Phone: %s) has confirmed they will donate for your request.", r.Name, d.Name, d.Phone)); wa != "" {
			payload["whatsapp"] = wa
		}
		notes = append(notes, requesterNote(r, requester, notify.TemplateOfferAccepted, payload))
		return nil
	})
	if err != nil {
		slog.Warn("failed to notify requester of accepted offer", "offer_id", o.ID, "error", err)
		return
	}
	c.send(ctx, notes)
}

// FollowUpRespond records the requester's follow-up answer from a signed
// link. Yes credits the donor per unit and the requester a small thank-you.
func (c *Controller) FollowUpRespond(ctx context.Context, offerID, resp, sig string) (string, error) {
	if !validAnswer(resp) {
		return "", ErrInvalidResponse
	}
	if err := c.signer.Verify(sig, linkFollowUp, offerID); err != nil {
		return "", err
	}

	var (
		repeated bool
		applied  []*models.RewardEntry
	)
	err := c.withOffer(ctx, offerID, func(tx store.Tx, o *models.Offer) ([]models.Notification, error) {
		if o.FollowUpResponse != "" {
			repeated = true
			return nil, nil
		}
		now := c.now()
		o.FollowUpResponse = resp
		o.FollowUpRespondedAt = &now
		if err := tx.UpdateOffer(ctx, o); err != nil {
			return nil, err
		}
		if resp == models.AnswerNo {
			return nil, nil
		}

		base := models.RewardGrant{
			RequestID: o.RequestID,
			Category:  models.CategoryOfferFollowUp,
			GrantedAt: now,
		}
		var requesterID string
		r, err := tx.GetRequest(ctx, o.RequestID)
		switch {
		case err == nil:
			base.PatientName = r.Name
			base.Hospital = r.Hospital
			requester, err := requesterOf(ctx, tx, r)
			if err != nil {
				return nil, err
			}
			if requester != nil {
				requesterID = requester.ID
			}
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}

		var grants []models.RewardGrant
		if o.DonorUserID != nil {
			g := base
			g.UserID = *o.DonorUserID
			g.Coins = c.rewards.FollowUpCoinsPerUnit * max(o.Units, 1)
			g.CountsDonation = true
			grants = append(grants, g)
		}
		if requesterID != "" {
			g := base
			g.UserID = requesterID
			g.Coins = c.rewards.FollowUpRequesterCoins
			grants = append(grants, g)
		}
		entries, notes, err := c.applyGrants(ctx, tx, grants)
		if err != nil {
			return nil, err
		}
		applied = entries
		return notes, nil
	})
	if err != nil {
		return "", err
	}
	if repeated {
		return "Already responded.", nil
	}

	for _, e := range applied {
		c.metrics.granted(e.Category, e.Coins)
	}
	slog.Info("offer follow-up answered", "offer_id", offerID, "response", resp, "grants", len(applied))
	return fmt.Sprintf("Thanks, your follow-up response %q was recorded.", resp), nil
}

// SendOfferFollowUp asks the requester whether the offered donor donated.
// The offer is marked sent exactly once, also when there is nobody to ask.
// It reports whether a notification was queued.
func (c *Controller) SendOfferFollowUp(ctx context.Context, offerID string) (bool, error) {
	sent := false
	err := c.withOffer(ctx, offerID, func(tx store.Tx, o *models.Offer) ([]models.Notification, error) {
		now := c.now()
		if o.FollowUpSent || o.FollowUpAt.After(now) {
			return nil, nil
		}
		o.FollowUpSent = true

		var notes []models.Notification
		r, err := tx.GetRequest(ctx, o.RequestID)
		switch {
		case err == nil:
			requester, err := requesterOf(ctx, tx, r)
			if err != nil {
				return nil, err
			}
			sig := c.signer.Sign(linkFollowUp, o.ID)
			path := "/api/offers/" + url.PathEscape(o.ID) + "/followup"
			n := requesterNote(r, requester, notify.TemplateOfferFollowUp, map[string]string{
				"offer_id":   o.ID,
				"donor_name": o.Donor.Name,
				"yes_url":    c.link(path, "resp", models.AnswerYes, "sig", sig),
				"no_url":     c.link(path, "resp", models.AnswerNo, "sig", sig),
			})
			if n.Email != "" || n.UserID != "" {
				notes = append(notes, n)
				o.FollowUpSentAt = &now
				sent = true
			} else {
				slog.Info("no requester contact for offer follow-up", "offer_id", o.ID)
			}
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
		return notes, tx.UpdateOffer(ctx, o)
	})
	return sent, err
}
