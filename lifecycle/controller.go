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

	"github.com/dustin/go-humanize"

	"github.com/danielhkuo/real-hero/assign"
	"github.com/danielhkuo/real-hero/auth"
	"github.com/danielhkuo/real-hero/geo"
	"github.com/danielhkuo/real-hero/models"
	"github.com/danielhkuo/real-hero/notify"
	"github.com/danielhkuo/real-hero/store"
)

var (
	ErrInvalidResponse = errors.New("response must be yes or no")
	ErrValidation      = errors.New("validation failed")
	ErrRequestChanged  = errors.New("request changed concurrently, please retry")
	ErrForbidden       = errors.New("only the requester may do this")
	ErrEmailRequired   = errors.New("email required to confirm donation")
	ErrUnknownUser     = errors.New("user not identified")

	ErrRequestNotFound = fmt.Errorf("request %w", store.ErrNotFound)
	ErrOfferNotFound   = fmt.Errorf("offer %w", store.ErrNotFound)
)

const (
	DefaultResponseWindow = 2 * time.Hour

	maxAttempts         = 3
	maxNotifiedDonors   = 200
	defaultRecentLimit  = 6
	maxRecentLimit      = 100
	defaultRecentRadius = 20000.0
)

// Link subjects signed into emailed decision links.
const (
	linkVerify   = "verify"
	linkInterest = "interest"
	linkFollowUp = "followup"
)

type Config struct {
	Store    store.Store
	Notifier notify.Notifier
	// Geocoder is optional. Requests without coordinates stay unlocated
	// when it is nil or fails.
	Geocoder geo.Geocoder
	Signer   *auth.LinkSigner
	// BaseURL prefixes links placed in notifications.
	BaseURL        string
	ResponseWindow time.Duration
	Rewards        *RewardPolicy
	Clock          func() time.Time
	Metrics        *Metrics
}

// Controller runs every request lifecycle flow: it loads a request, applies
// an assign event, persists the result in one transaction and then hands
// notifications to the notifier.
type Controller struct {
	store    store.Store
	notifier notify.Notifier
	geocoder geo.Geocoder
	signer   *auth.LinkSigner
	baseURL  string
	window   time.Duration
	rewards  RewardPolicy
	now      func() time.Time
	metrics  *Metrics
	locks    *keyedMutex
}

// New builds a controller. Store and Signer are required.
func New(cfg Config) (*Controller, error) {
	if cfg.Store == nil || cfg.Signer == nil {
		return nil, fmt.Errorf("lifecycle: store and link signer are required")
	}
	c := &Controller{
		store:    cfg.Store,
		notifier: cfg.Notifier,
		geocoder: cfg.Geocoder,
		signer:   cfg.Signer,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		window:   cfg.ResponseWindow,
		rewards:  DefaultRewards,
		now:      cfg.Clock,
		metrics:  cfg.Metrics,
		locks:    newKeyedMutex(),
	}
	if c.notifier == nil {
		c.notifier = notify.Log{}
	}
	if c.window <= 0 {
		c.window = DefaultResponseWindow
	}
	if cfg.Rewards != nil {
		c.rewards = *cfg.Rewards
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// ResponseWindow is how long a primary donor has before the timeout sweep
// replaces them.
func (c *Controller) ResponseWindow() time.Duration {
	return c.window
}

type txFunc func(tx store.Tx, r *models.Request) ([]models.Notification, error)

// withRequest runs fn on a fresh copy of the request inside a transaction,
// holding the request's lock. Version conflicts are retried; notifications
// returned by fn are sent only after a successful commit.
func (c *Controller) withRequest(ctx context.Context, requestID string, fn txFunc) error {
	unlock := c.locks.Lock("request:" + requestID)
	defer unlock()

	var notes []models.Notification
	for attempt := 1; ; attempt++ {
		err := c.store.WithTx(ctx, func(tx store.Tx) error {
			r, err := tx.GetRequest(ctx, requestID)
			if errors.Is(err, store.ErrNotFound) {
				return ErrRequestNotFound
			}
			if err != nil {
				return err
			}
			notes, err = fn(tx, r)
			return err
		})
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return err
		}
		c.metrics.conflict()
		if attempt == maxAttempts {
			slog.Warn("giving up after version conflicts", "request_id", requestID, "attempts", attempt)
			return ErrRequestChanged
		}
		slog.Info("retrying after version conflict", "request_id", requestID, "attempt", attempt)
	}

	c.send(ctx, notes)
	return nil
}

// send hands notes to the notifier. Failures are logged and never undo the
// state change that produced them.
func (c *Controller) send(ctx context.Context, notes []models.Notification) {
	for _, n := range notes {
		if n.UserID == "" && n.Email == "" {
			slog.Debug("notification has no recipient", "template", n.Template)
			continue
		}
		if err := c.notifier.Notify(ctx, n); err != nil {
			c.metrics.notifyFailed()
			slog.Warn("failed to queue notification",
				"template", n.Template,
				"user_id", n.UserID,
				"error", err,
			)
		}
	}
}

// user resolves an authenticated identity by id, then by external uid.
func (c *Controller) user(ctx context.Context, id string) (*models.User, error) {
	if id == "" {
		return nil, ErrUnknownUser
	}
	u, err := c.store.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		u, err = c.store.GetUserByUID(ctx, id)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownUser
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

func (c *Controller) getRequest(ctx context.Context, id string) (*models.Request, error) {
	r, err := c.store.GetRequest(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRequestNotFound
	}
	return r, err
}

// requesterOf returns the requester's user record, or nil when the request
// has none or it no longer exists.
func requesterOf(ctx context.Context, tx store.Tx, r *models.Request) (*models.User, error) {
	var (
		u   *models.User
		err error
	)
	switch {
	case r.RequesterID != nil:
		u, err = tx.GetUser(ctx, *r.RequesterID)
	case r.RequesterUID != "":
		u, err = tx.GetUserByUID(ctx, r.RequesterUID)
	default:
		return nil, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load requester: %w", err)
	}
	return u, nil
}

func requestPayload(r *models.Request, extra map[string]string) map[string]string {
	p := map[string]string{
		"request_id":  r.ID,
		"patient":     r.Name,
		"hospital":    r.Hospital,
		"blood_group": r.BloodGroup,
	}
	for k, v := range extra {
		p[k] = v
	}
	return p
}

func requesterNote(r *models.Request, u *models.User, template string, extra map[string]string) models.Notification {
	n := models.Notification{Email: r.Email, Template: template, Payload: requestPayload(r, extra)}
	if u != nil {
		n.UserID = u.ID
		if u.Email != "" {
			n.Email = u.Email
		}
		n.Payload["name"] = u.Name
	}
	return n
}

func userNote(u *models.User, r *models.Request, template string, extra map[string]string) models.Notification {
	n := models.Notification{UserID: u.ID, Email: u.Email, Template: template, Payload: requestPayload(r, extra)}
	n.Payload["name"] = u.Name
	return n
}

// link builds an absolute URL from alternating query keys and values.
func (c *Controller) link(path string, kv ...string) string {
	q := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		q.Set(kv[i], kv[i+1])
	}
	return c.baseURL + path + "?" + q.Encode()
}

func windowText(d time.Duration) string {
	if d%time.Hour == 0 {
		if d == time.Hour {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", d/time.Hour)
	}
	return fmt.Sprintf("%d minutes", d/time.Minute)
}

func (c *Controller) claimMessage(role string) string {
	if role == models.RolePrimary {
		return fmt.Sprintf("You are the Primary Donor! Please arrive within %s.", windowText(c.window))
	}
	return "You are a Backup Donor. Standby!"
}

func validAnswer(s string) bool {
	return s == models.AnswerYes || s == models.AnswerNo
}

// CreateRequest validates and stores a new open request, then alerts
// available donors nearby. requesterID may be empty for anonymous requests.
func (c *Controller) CreateRequest(ctx context.Context, in models.CreateRequestRequest, requesterID string) (*models.Request, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.BloodGroup = strings.TrimSpace(in.BloodGroup)
	in.Hospital = strings.TrimSpace(in.Hospital)

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"name", in.Name},
		{"phone", in.Phone},
		{"blood_group", in.BloodGroup},
		{"hospital", in.Hospital},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required fields: %s", ErrValidation, strings.Join(missing, ", "))
	}
	if in.Units < 0 {
		return nil, fmt.Errorf("%w: units must be positive", ErrValidation)
	}
	if in.Units == 0 {
		in.Units = 1
	}
	if in.Location != nil && !geo.Valid(*in.Location) {
		return nil, fmt.Errorf("%w: location is out of range", ErrValidation)
	}

	var requester *models.User
	if requesterID != "" {
		u, err := c.user(ctx, requesterID)
		if err != nil {
			return nil, err
		}
		requester = u
	}

	now := c.now()
	r := &models.Request{
		ID:          auth.NewID(),
		Name:        in.Name,
		Age:         in.Age,
		Phone:       in.Phone,
		Email:       strings.TrimSpace(in.Email),
		BloodGroup:  in.BloodGroup,
		Hospital:    in.Hospital,
		Description: strings.TrimSpace(in.Description),
		Units:       in.Units,
		Location:    in.Location,
		Status:      models.StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(models.RequestTTL),
	}
	if requester != nil {
		id := requester.ID
		r.RequesterID = &id
		r.RequesterUID = requester.UID
		if r.Email == "" {
			r.Email = requester.Email
		}
	}

	if r.Location == nil && c.geocoder != nil {
		pt, err := c.geocoder.Geocode(ctx, r.Hospital)
		if err != nil {
			slog.Warn("failed to geocode hospital", "hospital", r.Hospital, "error", err)
		} else {
			r.Location = &pt
		}
	}

	if err := c.store.CreateRequest(ctx, r); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.metrics.requestCreated()
	slog.Info("request created",
		"request_id", r.ID,
		"blood_group", r.BloodGroup,
		"located", r.Location != nil,
	)

	c.alertNearbyDonors(ctx, r)
	return r, nil
}

func (c *Controller) alertNearbyDonors(ctx context.Context, r *models.Request) {
	if r.Location == nil {
		return
	}
	users, err := c.store.NearbyAvailableUsers(ctx, *r.Location, geo.DonorSearchRadiusMeters, maxNotifiedDonors)
	if err != nil {
		slog.Warn("failed to find nearby donors", "request_id", r.ID, "error", err)
		return
	}

	notes := make([]models.Notification, 0, len(users))
	for _, u := range users {
		if r.IsRequester(u.ID, u.UID) || u.Location == nil {
			continue
		}
		km := geo.Distance(*r.Location, *u.Location) / 1000
		notes = append(notes, userNote(u, r, notify.TemplateDonorNeeded, map[string]string{
			"units":       strconv.Itoa(r.Units),
			"distance_km": strconv.FormatFloat(km, 'f', 1, 64),
		}))
	}
	c.send(ctx, notes)
	slog.Info("alerted nearby donors", "request_id", r.ID, "count", len(notes))
}

// RecentRequests lists requests still looking for donors, nearest first
// when near is given and newest first otherwise.
func (c *Controller) RecentRequests(ctx context.Context, near *models.GeoPoint, maxMeters float64, limit int) ([]models.NearbyRequest, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	limit = min(limit, maxRecentLimit)

	if near == nil {
		reqs, err := c.store.ListActiveRequests(ctx, models.ActiveStatuses, limit)
		if err != nil {
			return nil, fmt.Errorf("list requests: %w", err)
		}
		out := make([]models.NearbyRequest, 0, len(reqs))
		for _, r := range reqs {
			out = append(out, models.NearbyRequest{Request: *r})
		}
		return out, nil
	}

	if !geo.Valid(*near) {
		return nil, fmt.Errorf("%w: location is out of range", ErrValidation)
	}
	if maxMeters <= 0 {
		maxMeters = defaultRecentRadius
	}
	reqs, err := c.store.NearRequests(ctx, *near, maxMeters, models.ActiveStatuses, limit)
	if err != nil {
		return nil, fmt.Errorf("list nearby requests: %w", err)
	}
	out := make([]models.NearbyRequest, 0, len(reqs))
	for _, r := range reqs {
		km := float64(int(geo.Distance(*near, *r.Location)/100+0.5)) / 10
		out = append(out, models.NearbyRequest{Request: *r, DistanceKm: &km})
	}
	return out, nil
}

// claimTx assigns donor to r and records the DonorResponse.
func (c *Controller) claimTx(ctx context.Context, tx store.Tx, r *models.Request, donor *models.User, now time.Time) (assign.Outcome, []models.Notification, error) {
	already := false
	_, err := tx.GetResponse(ctx, r.ID, donor.ID)
	switch {
	case err == nil:
		already = true
	case !errors.Is(err, store.ErrNotFound):
		return assign.Outcome{}, nil, err
	}

	out, err := assign.Assign(r, donor.ID, donor.UID, already, now)
	if err != nil {
		return out, nil, err
	}
	r.UpdatedAt = now
	if err := tx.UpdateRequest(ctx, r); err != nil {
		return out, nil, err
	}
	err = tx.CreateResponse(ctx, &models.DonorResponse{
		ID:        auth.NewID(),
		RequestID: r.ID,
		DonorID:   donor.ID,
		Role:      out.Role,
		Status:    models.ResponseActive,
		Hospital:  r.Hospital,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if errors.Is(err, store.ErrDuplicate) {
		return out, nil, assign.ErrAlreadyResponded
	}
	if err != nil {
		return out, nil, fmt.Errorf("create donor response: %w", err)
	}

	template := notify.TemplateBackupAssigned
	if out.Role == models.RolePrimary {
		template = notify.TemplatePrimaryAssigned
	}
	requester, err := requesterOf(ctx, tx, r)
	if err != nil {
		return out, nil, err
	}
	notes := []models.Notification{
		userNote(donor, r, template, map[string]string{"window": windowText(c.window)}),
		requesterNote(r, requester, notify.TemplateDonorFound, map[string]string{
			"donor_name": donor.Name,
			"role":       out.Role,
		}),
	}
	return out, notes, nil
}

// Claim assigns the donor as primary, or as backup when a primary exists.
func (c *Controller) Claim(ctx context.Context, requestID, donorID string) (models.ClaimResponse, error) {
	donor, err := c.user(ctx, donorID)
	if err != nil {
		return models.ClaimResponse{}, err
	}

	var out assign.Outcome
	err = c.withRequest(ctx, requestID, func(tx store.Tx, r *models.Request) ([]models.Notification, error) {
		var (
			notes []models.Notification
			err   error
		)
		out, notes, err = c.claimTx(ctx, tx, r, donor, c.now())
		return notes, err
	})
	if err != nil {
		return models.ClaimResponse{}, err
	}

	c.metrics.claimed(out.Role)
	slog.Info("donor claimed request",
		"request_id", requestID,
		"donor_id", donor.ID,
		"role", out.Role,
		"status", out.To,
	)
	return models.ClaimResponse{Role: out.Role, Message: c.claimMessage(out.Role)}, nil
}

// setResponseStatus updates the donor's response. A missing response is
// logged and ignored.
func setResponseStatus(ctx context.Context, tx store.Tx, requestID, donorID, status string, now time.Time) error {
	dr, err := tx.GetResponse(ctx, requestID, donorID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("donor response missing", "request_id", requestID, "donor_id", donorID, "status", status)
		return nil
	}
	if err != nil {
		return err
	}
	dr.Status = status
	dr.UpdatedAt = now
	return tx.UpdateResponse(ctx, dr)
}

// afterReplacement records a promotion on the promoted donor's response and
// builds the notifications for a replaced primary.
func (c *Controller) afterReplacement(ctx context.Context, tx store.Tx, r *models.Request, out assign.Outcome, now time.Time) ([]models.Notification, error) {
	if out.Displaced == "" {
		return nil, nil
	}
	requester, err := requesterOf(ctx, tx, r)
	if err != nil {
		return nil, err
	}
	if out.Reopened {
		return []models.Notification{requesterNote(r, requester, notify.TemplateRequestReopened, nil)}, nil
	}

	dr, err := tx.GetResponse(ctx, r.ID, out.Promoted)
	switch {
	case err == nil:
		dr.Role = models.RolePrimary
		dr.Status = models.ResponsePromoted
		dr.UpdatedAt = now
		if err := tx.UpdateResponse(ctx, dr); err != nil {
			return nil, err
		}
	case errors.Is(err, store.ErrNotFound):
		slog.Warn("promoted donor has no response", "request_id", r.ID, "donor_id", out.Promoted)
	default:
		return nil, err
	}

	var notes []models.Notification
	name := ""
	promoted, err := tx.GetUser(ctx, out.Promoted)
	switch {
	case err == nil:
		name = promoted.Name
		notes = append(notes, userNote(promoted, r, notify.TemplatePromoted, map[string]string{"window": windowText(c.window)}))
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}
	notes = append(notes, requesterNote(r, requester, notify.TemplateDonorChanged, map[string]string{"donor_name": name}))
	return notes, nil
}

// Cancel withdraws the donor. A cancelling primary is replaced by the
// earliest unpromoted backup, or the request reopens.
func (c *Controller) Cancel(ctx context.Context, requestID, donorID string) (string, error) {
	donor, err := c.user(ctx, donorID)
	if err != nil {
		return "", err
	}

	var out assign.Outcome
	err = c.withRequest(ctx, requestID, func(tx store.Tx, r *models.Request) ([]models.Notification, error) {
		now := c.now()
		var err error
		out, err = assign.CancelDonor(r, donor.ID, now)
		if err != nil {
			return nil, err
		}
		r.UpdatedAt = now
		if err := tx.UpdateRequest(ctx, r); err != nil {
			return nil, err
		}
		if err := setResponseStatus(ctx, tx, r.ID, donor.ID, models.ResponseCancelled, now); err != nil {
			return nil, err
		}
		return c.afterReplacement(ctx, tx, r, out, now)
	})
	if err != nil {
		return "", err
	}

	slog.Info("donor cancelled",
		"request_id", requestID,
		"donor_id", donor.ID,
		"promoted", out.Promoted,
		"status", out.To,
	)
	switch {
	case out.Promoted != "":
		c.metrics.replaced("cancel", false)
		return "Donation cancelled. Backup donor promoted to primary.", nil
	case out.Reopened:
		c.metrics.replaced("cancel", true)
		return "Donation cancelled. Request is now open for new donors.", nil
	}
	return "Donation cancelled.", nil
}

// Complete marks the donor's part done and asks the requester to verify.
// The request status is unchanged until the requester answers.
func (c *Controller) Complete(ctx context.Context, requestID, donorID string) (string, error) {
	donor, err := c.user(ctx, donorID)
	if err != nil {
		return "", err
	}

	err = c.withRequest(ctx, requestID, func(tx store.Tx, r *models.Request) ([]models.Notification, error) {
		now := c.now()
		if _, err := assign.Transition(r, assign.Complete{DonorID: donor.ID}, now); err != nil {
			return nil, err
		}
		dr, err := tx.GetResponse(ctx, r.ID, donor.ID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, assign.ErrDonorNotFound
		}
		if err != nil {
			return nil, err
		}
		if dr.Status == models.ResponseCancelled || dr.Status == models.ResponseFailed {
			return nil, assign.ErrDonorNotFound
		}
		dr.Status = models.ResponseCompleted
		dr.UpdatedAt = now
		if err := tx.UpdateResponse(ctx, dr); err != nil {
			return nil, err
		}

		requester, err := requesterOf(ctx, tx, r)
		if err != nil {
			return nil, err
		}
		sig := c.signer.Sign(linkVerify, r.ID)
		path := "/api/requests/" + url.PathEscape(r.ID) + "/verify"
		note := requesterNote(r, requester, notify.TemplateVerifyDonation, map[string]string{
			"donor_name": donor.Name,
			"yes_url":    c.link(path, "response", models.AnswerYes, "sig", sig),
			"no_url":     c.link(path, "response", models.AnswerNo, "sig", sig),
		})
		if note.UserID == "" && note.Email == "" {
			slog.Warn("no requester contact for verification", "request_id", r.ID)
		}
		return []models.Notification{note}, nil
	})
	if err != nil {
		return "", err
	}

	slog.Info("donation marked complete", "request_id", requestID, "donor_id", donor.ID)
	return "Verification email sent to requester. Rewards pending confirmation.", nil
}

// VerifyDonation applies the requester's answer from a signed link. Yes
// distributes rewards and deletes the request; no marks it failed.
func (c *Controller) VerifyDonation(ctx context.Context, requestID, response, sig string) (string, error) {
	if !validAnswer(response) {
		return "", ErrInvalidResponse
	}
	if err := c.signer.Verify(sig, linkVerify, requestID); err != nil {
		return "", err
	}

	var applied []*models.RewardEntry
	err := c.withRequest(ctx, requestID, func(tx store.Tx, r *models.Request) ([]models.Notification, error) {
		now := c.now()
		if response == models.AnswerNo {
			return c.verifyFailed(ctx, tx, r, now)
		}
		var (
			notes []models.Notification
			err   error
		)
		applied, notes, err = c.verifyFulfilled(ctx, tx, r, now)
		return notes, err
	})
	if err != nil {
		return "", err
	}

	c.metrics.verified(response)
	for _, e := range applied {
		c.metrics.granted(e.Category, e.Coins)
	}
	slog.Info("donation verified", "request_id", requestID, "answer", response, "grants", len(applied))
	if response == models.AnswerNo {
		return "Thanks for letting us know. The request has been marked as failed.", nil
	}
	return "Donation verified. Rewards have been credited.", nil
}

func (c *Controller) verifyFulfilled(ctx context.Context, tx store.Tx, r *models.Request, now time.Time) ([]*models.RewardEntry, []models.Notification, error) {
	if _, err := assign.Transition(r, assign.VerifyYes{}, now); err != nil {
		return nil, nil, err
	}

	responses, err := tx.ListResponsesByRequest(ctx, r.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list responses: %w", err)
	}
	// Backups who withdrew or timed out get no willingness reward.
	withdrawn := make(map[string]bool)
	for _, dr := range responses {
		if dr.Status == models.ResponseCancelled || dr.Status == models.ResponseFailed {
			withdrawn[dr.DonorID] = true
		}
	}
	rewarded := *r
	rewarded.BackupDonors = nil
	for _, b := range r.BackupDonors {
		if !withdrawn[b.DonorID] {
			rewarded.BackupDonors = append(rewarded.BackupDonors, b)
		}
	}

	requester, err := requesterOf(ctx, tx, r)
	if err != nil {
		return nil, nil, err
	}
	requesterID := ""
	if requester != nil {
		requesterID = requester.ID
	}
	grants := c.rewards.verifiedGrants(&rewarded, requesterID, now)
	entries, notes, err := c.applyGrants(ctx, tx, grants)
	if err != nil {
		return nil, nil, err
	}
	for _, dr := range responses {
		dr.Hospital = r.Hospital
		dr.UpdatedAt = now
		switch {
		case r.PrimaryDonor.DonorID == dr.DonorID:
			dr.RewardPoints = c.rewards.PrimaryPoints
			if dr.Status == models.ResponseActive || dr.Status == models.ResponsePromoted {
				dr.Status = models.ResponseCompleted
			}
		case rewarded.BackupIndex(dr.DonorID) >= 0:
			dr.RewardPoints = c.rewards.BackupPoints
		}
		if err := tx.UpdateResponse(ctx, dr); err != nil {
			return nil, nil, fmt.Errorf("snapshot response: %w", err)
		}
	}

	if err := tx.DeleteRequest(ctx, r.ID); err != nil {
		return nil, nil, fmt.Errorf("delete request: %w", err)
	}
	return entries, notes, nil
}

func (c *Controller) verifyFailed(ctx context.Context, tx store.Tx, r *models.Request, now time.Time) ([]models.Notification, error) {
	if _, err := assign.Transition(r, assign.VerifyNo{}, now); err != nil {
		return nil, err
	}
	r.UpdatedAt = now
	if err := tx.UpdateRequest(ctx, r); err != nil {
		return nil, err
	}
	primary := r.PrimaryDonor.DonorID
	if err := setResponseStatus(ctx, tx, r.ID, primary, models.ResponseFailed, now); err != nil {
		return nil, err
	}

	u, err := tx.GetUser(ctx, primary)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []models.Notification{userNote(u, r, notify.TemplateVerificationFailed, nil)}, nil
}

// RegisterInterest emails the donor a signed link to confirm the claim.
// Nothing is assigned until they confirm.
func (c *Controller) RegisterInterest(ctx context.Context, requestID, donorID string) (string, error) {
	donor, err := c.user(ctx, donorID)
	if err != nil {
		return "", err
	}
	r, err := c.getRequest(ctx, requestID)
	if err != nil {
		return "", err
	}

	already := false
	_, err = c.store.GetResponse(ctx, r.ID, donor.ID)
	switch {
	case err == nil:
		already = true
	case !errors.Is(err, store.ErrNotFound):
		return "", err
	}
	// Dry run on a copy so interest fails for the same reasons a claim would.
	if _, err := assign.Assign(r.Clone(), donor.ID, donor.UID, already, c.now()); err != nil {
		return "", err
	}
	if donor.Email == "" {
		return "", ErrEmailRequired
	}

	sig := c.signer.Sign(linkInterest, r.ID, donor.ID)
	path := "/api/requests/" + url.PathEscape(r.ID) + "/confirm-interest"
	c.send(ctx, []models.Notification{userNote(donor, r, notify.TemplateConfirmInterest, map[string]string{
		"yes_url": c.link(path, "donor", donor.ID, "response", models.AnswerYes, "sig", sig),
		"no_url":  c.link(path, "donor", donor.ID, "response", models.AnswerNo, "sig", sig),
	})})

	slog.Info("interest registered", "request_id", r.ID, "donor_id", donor.ID)
	return "Confirmation email sent. Please check your inbox.", nil
}

// ConfirmInterest completes a RegisterInterest link. Yes runs the claim;
// a repeated yes reports the existing role.
func (c *Controller) ConfirmInterest(ctx context.Context, requestID, donorID, response, sig string) (models.ClaimResponse, error) {
	if !validAnswer(response) {
		return models.ClaimResponse{}, ErrInvalidResponse
	}
	if err := c.signer.Verify(sig, linkInterest, requestID, donorID); err != nil {
		return models.ClaimResponse{}, err
	}
	if response == models.AnswerNo {
		return models.ClaimResponse{Message: "Donation pledge cancelled. You have not been assigned to this request."}, nil
	}

	resp, err := c.Claim(ctx, requestID, donorID)
	if errors.Is(err, assign.ErrAlreadyResponded) {
		if dr, gerr := c.store.GetResponse(ctx, requestID, donorID); gerr == nil {
			return models.ClaimResponse{
				Role:    dr.Role,
				Message: fmt.Sprintf("You are already registered as a %s donor.", dr.Role),
			}, nil
		}
	}
	return resp, err
}

// MarkArrived records that the primary donor reached the hospital, which
// exempts the request from the timeout sweep.
func (c *Controller) MarkArrived(ctx context.Context, requestID, donorID string) error {
	donor, err := c.user(ctx, donorID)
	if err != nil {
		return err
	}
	return c.withRequest(ctx, requestID, func(tx store.Tx, r *models.Request) ([]models.Notification, error) {
		now := c.now()
		out, err := assign.Transition(r, assign.Arrive{DonorID: donor.ID}, now)
		if err != nil || !out.Changed {
			return nil, err
		}
		r.UpdatedAt = now
		return nil, tx.UpdateRequest(ctx, r)
	})
}

// CloseRequest deletes a request the requester no longer needs. Active
// donors are released.
func (c *Controller) CloseRequest(ctx context.Context, requestID, userID string) error {
	user, err := c.user(ctx, userID)
	if err != nil {
		return err
	}

	err = c.withRequest(ctx, requestID, func(tx store.Tx, r *models.Request) ([]models.Notification, error) {
		if !r.IsRequester(user.ID, user.UID) {
			return nil, ErrForbidden
		}
		if r.IsTerminal() {
			return nil, assign.ErrRequestClosed
		}

		now := c.now()
		responses, err := tx.ListResponsesByRequest(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		var notes []models.Notification
		for _, dr := range responses {
			if dr.Status != models.ResponseActive && dr.Status != models.ResponsePromoted {
				continue
			}
			dr.Status = models.ResponseCancelled
			dr.UpdatedAt = now
			if err := tx.UpdateResponse(ctx, dr); err != nil {
				return nil, err
			}
			u, err := tx.GetUser(ctx, dr.DonorID)
			if err == nil {
				notes = append(notes, userNote(u, r, notify.TemplateRequestClosed, nil))
			} else if !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
		}
		return notes, tx.DeleteRequest(ctx, r.ID)
	})
	if err != nil {
		return err
	}
	slog.Info("request closed by requester", "request_id", requestID, "user_id", user.ID)
	return nil
}

// ListMyRequests returns the user's requests, newest first.
func (c *Controller) ListMyRequests(ctx context.Context, userID string) ([]*models.Request, error) {
	user, err := c.user(ctx, userID)
	if errors.Is(err, ErrUnknownUser) {
		return []*models.Request{}, nil
	}
	if err != nil {
		return nil, err
	}
	reqs, err := c.store.ListRequestsByRequester(ctx, user.ID, user.UID)
	if err != nil {
		return nil, err
	}
	if reqs == nil {
		reqs = []*models.Request{}
	}
	return reqs, nil
}

// ListMyDonations returns the donor's responses, newest first, each joined
// with its request while the request still exists.
func (c *Controller) ListMyDonations(ctx context.Context, userID string) ([]models.DonationRecord, error) {
	user, err := c.user(ctx, userID)
	if errors.Is(err, ErrUnknownUser) {
		return []models.DonationRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	responses, err := c.store.ListResponsesByDonor(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	out := make([]models.DonationRecord, 0, len(responses))
	for _, dr := range responses {
		rec := models.DonationRecord{DonorResponse: *dr}
		r, err := c.store.GetRequest(ctx, dr.RequestID)
		switch {
		case err == nil:
			rec.Request = r
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// TimeoutPrimary replaces expectedPrimary if it is still primary and has
// missed the response window. It is a no-op otherwise.
func (c *Controller) TimeoutPrimary(ctx context.Context, requestID, expectedPrimary string) (assign.Outcome, error) {
	var out assign.Outcome
	err := c.withRequest(ctx, requestID, func(tx store.Tx, r *models.Request) ([]models.Notification, error) {
		now := c.now()
		var accepted time.Time
		if r.PrimaryDonor != nil {
			accepted = r.PrimaryDonor.AcceptedAt
		}

		var err error
		out, err = assign.Transition(r, assign.Timeout{ExpectedPrimary: expectedPrimary, Window: c.window}, now)
		if err != nil || !out.Changed {
			return nil, err
		}
		r.UpdatedAt = now
		if err := tx.UpdateRequest(ctx, r); err != nil {
			return nil, err
		}
		if err := setResponseStatus(ctx, tx, r.ID, out.Displaced, models.ResponseFailed, now); err != nil {
			return nil, err
		}

		notes, err := c.afterReplacement(ctx, tx, r, out, now)
		if err != nil {
			return nil, err
		}
		stale, err := tx.GetUser(ctx, out.Displaced)
		switch {
		case err == nil:
			notes = append(notes, userNote(stale, r, notify.TemplateTimedOut, map[string]string{
				"accepted": humanize.RelTime(accepted, now, "ago", "from now"),
			}))
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
		return notes, nil
	})
	if err != nil {
		return out, err
	}
	if out.Changed {
		c.metrics.replaced("timeout", out.Reopened)
	}
	return out, nil
}

// ExpireRequest deletes a request past its retention bound. With openOnly
// set, requests that have left open are kept. It reports whether the
// request was deleted.
func (c *Controller) ExpireRequest(ctx context.Context, requestID string, openOnly bool) (bool, error) {
	deleted := false
	err := c.withRequest(ctx, requestID, func(tx store.Tx, r *models.Request) ([]models.Notification, error) {
		if !r.CreatedAt.Before(c.now().Add(-models.RequestTTL)) {
			return nil, nil
		}
		if openOnly && r.Status != models.StatusOpen {
			return nil, nil
		}
		deleted = true
		return nil, tx.DeleteRequest(ctx, r.ID)
	})
	if errors.Is(err, ErrRequestNotFound) {
		return false, nil
	}
	return deleted, err
}
