// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package assign

import (
	"errors"
	"fmt"
	"time"

	"github.com/danielhkuo/real-hero/models"
)

var (
	ErrRequestClosed    = errors.New("request is closed")
	ErrAlreadyResponded = errors.New("donor already responded to this request")
	ErrSelfDonation     = errors.New("cannot donate to your own request")
	ErrDonorNotFound    = errors.New("donor is not assigned to this request")
	ErrNoPrimary        = errors.New("request has no primary donor")
	ErrInvalidEvent     = errors.New("invalid event")
	ErrInconsistent     = errors.New("inconsistent request state")
)

// Event is one of Claim, Cancel, Timeout, VerifyYes, VerifyNo, Arrive, Complete.
type Event interface {
	event()
}

// Claim asks for the donor to be assigned as primary or backup.
type Claim struct {
	DonorID  string
	DonorUID string // legacy identifier, checked against RequesterUID
	// AlreadyResponded is true when a DonorResponse exists for (request, donor).
	AlreadyResponded bool
}

// Cancel withdraws a primary or backup donor.
type Cancel struct {
	DonorID string
}

// Timeout promotes past ExpectedPrimary if it is still primary, has not
// arrived, and accepted more than Window ago. Otherwise it is a no-op.
type Timeout struct {
	ExpectedPrimary string
	Window          time.Duration
}

// Promote unconditionally promotes past ExpectedPrimary if it is still primary.
type Promote struct {
	ExpectedPrimary string
}

type VerifyYes struct{}

type VerifyNo struct{}

// Arrive flags the primary donor as at the hospital.
type Arrive struct {
	DonorID string
}

// Complete validates that the donor may mark the donation complete. The
// request itself is not changed until the requester verifies.
type Complete struct {
	DonorID string
}

func (Claim) event()     {}
func (Cancel) event()    {}
func (Timeout) event()   {}
func (Promote) event()   {}
func (VerifyYes) event() {}
func (VerifyNo) event()  {}
func (Arrive) event()    {}
func (Complete) event()  {}

// Outcome describes what a transition did.
type Outcome struct {
	From string
	To   string
	// Role assigned by a Claim.
	Role string
	// Promoted is the backup that became primary, if any.
	Promoted string
	// Displaced is the primary removed by a cancel, timeout or promotion.
	Displaced string
	// Reopened is true when no backup was eligible and the request went back to open.
	Reopened bool
	// Changed is false when the event was a valid no-op.
	Changed bool
}

// Transition applies ev to r in place. It is the only code that writes
// r.Status. On error r is left untouched.
func Transition(r *models.Request, ev Event, now time.Time) (Outcome, error) {
	out := Outcome{From: r.Status, To: r.Status}

	switch e := ev.(type) {
	case Claim:
		return claim(r, e, now, out)

	case Cancel:
		if r.IsTerminal() {
			return out, ErrRequestClosed
		}
		if r.PrimaryDonor != nil && r.PrimaryDonor.DonorID == e.DonorID {
			return promote(r, now, out), nil
		}
		idx := r.BackupIndex(e.DonorID)
		if idx < 0 || r.BackupDonors[idx].Promoted {
			return out, ErrDonorNotFound
		}
		r.BackupDonors = append(r.BackupDonors[:idx:idx], r.BackupDonors[idx+1:]...)
		out.Changed = true
		return out, nil

	case Timeout:
		assigned := r.Status == models.StatusPrimaryAssigned || r.Status == models.StatusBackupAssigned
		if !assigned || r.PrimaryDonor == nil {
			return out, nil
		}
		p := r.PrimaryDonor
		if p.DonorID != e.ExpectedPrimary || p.Arrived || now.Sub(p.AcceptedAt) < e.Window {
			return out, nil
		}
		return promote(r, now, out), nil

	case Promote:
		if r.IsTerminal() {
			return out, ErrRequestClosed
		}
		if r.PrimaryDonor == nil || r.PrimaryDonor.DonorID != e.ExpectedPrimary {
			return out, nil
		}
		return promote(r, now, out), nil

	case VerifyYes:
		return verify(r, models.StatusFulfilled, out)

	case VerifyNo:
		return verify(r, models.StatusFailed, out)

	case Arrive:
		if r.IsTerminal() {
			return out, ErrRequestClosed
		}
		if r.PrimaryDonor == nil || r.PrimaryDonor.DonorID != e.DonorID {
			return out, ErrDonorNotFound
		}
		if r.PrimaryDonor.Arrived {
			return out, nil
		}
		t := now
		r.PrimaryDonor.Arrived = true
		r.PrimaryDonor.ConfirmedAt = &t
		out.Changed = true
		return out, nil

	case Complete:
		if r.IsTerminal() {
			return out, ErrRequestClosed
		}
		if r.PrimaryDonor != nil && r.PrimaryDonor.DonorID == e.DonorID {
			return out, nil
		}
		// A promoted entry that is not the current primary was displaced.
		if idx := r.BackupIndex(e.DonorID); idx >= 0 && !r.BackupDonors[idx].Promoted {
			return out, nil
		}
		return out, ErrDonorNotFound
	}

	return out, fmt.Errorf("%w: %T", ErrInvalidEvent, ev)
}

func claim(r *models.Request, e Claim, now time.Time, out Outcome) (Outcome, error) {
	if r.IsTerminal() {
		return out, ErrRequestClosed
	}
	if e.AlreadyResponded || (r.PrimaryDonor != nil && r.PrimaryDonor.DonorID == e.DonorID) || r.BackupIndex(e.DonorID) >= 0 {
		return out, ErrAlreadyResponded
	}
	if r.IsRequester(e.DonorID, e.DonorUID) {
		return out, ErrSelfDonation
	}

	out.Changed = true
	if r.PrimaryDonor == nil {
		r.PrimaryDonor = &models.PrimaryDonor{DonorID: e.DonorID, AcceptedAt: now}
		r.Status = models.StatusPrimaryAssigned
		out.Role = models.RolePrimary
		out.To = r.Status
		return out, nil
	}

	r.BackupDonors = append(r.BackupDonors, models.BackupDonor{DonorID: e.DonorID, AcceptedAt: now})
	if r.Status == models.StatusPrimaryAssigned {
		r.Status = models.StatusBackupAssigned
	}
	out.Role = models.RoleBackup
	out.To = r.Status
	return out, nil
}

// promote replaces the current primary with the earliest unpromoted backup,
// or reopens the request when none is left. A promotion always lands in
// primary_assigned.
func promote(r *models.Request, now time.Time, out Outcome) Outcome {
	if r.PrimaryDonor != nil {
		out.Displaced = r.PrimaryDonor.DonorID
	}
	out.Changed = true

	for i := range r.BackupDonors {
		if r.BackupDonors[i].Promoted {
			continue
		}
		r.BackupDonors[i].Promoted = true
		r.PrimaryDonor = &models.PrimaryDonor{DonorID: r.BackupDonors[i].DonorID, AcceptedAt: now}
		r.Status = models.StatusPrimaryAssigned
		out.Promoted = r.PrimaryDonor.DonorID
		out.To = r.Status
		return out
	}

	r.PrimaryDonor = nil
	r.Status = models.StatusOpen
	out.Reopened = true
	out.To = r.Status
	return out
}

func verify(r *models.Request, to string, out Outcome) (Outcome, error) {
	if r.IsTerminal() {
		return out, ErrRequestClosed
	}
	if r.PrimaryDonor == nil {
		return out, ErrNoPrimary
	}
	r.Status = to
	out.To = to
	out.Changed = true
	return out, nil
}

// Assign runs a Claim for donorID.
func Assign(r *models.Request, donorID, donorUID string, alreadyResponded bool, now time.Time) (Outcome, error) {
	return Transition(r, Claim{DonorID: donorID, DonorUID: donorUID, AlreadyResponded: alreadyResponded}, now)
}

// PromoteFrom promotes past expectedPrimary. Calling it again after the
// primary has been replaced is a no-op.
func PromoteFrom(r *models.Request, expectedPrimary string, now time.Time) (Outcome, error) {
	return Transition(r, Promote{ExpectedPrimary: expectedPrimary}, now)
}

// CancelDonor runs a Cancel for donorID.
func CancelDonor(r *models.Request, donorID string, now time.Time) (Outcome, error) {
	return Transition(r, Cancel{DonorID: donorID}, now)
}

// Check reports whether the request's status agrees with its donor fields.
func Check(r *models.Request) error {
	switch r.Status {
	case models.StatusOpen:
		if r.PrimaryDonor != nil {
			return fmt.Errorf("%w: open request has a primary donor", ErrInconsistent)
		}
	case models.StatusPrimaryAssigned, models.StatusBackupAssigned, models.StatusPendingVerification:
		if r.PrimaryDonor == nil {
			return fmt.Errorf("%w: %s request has no primary donor", ErrInconsistent, r.Status)
		}
	case models.StatusFulfilled, models.StatusFailed, models.StatusCancelled:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInconsistent, r.Status)
	}

	seen := make(map[string]bool, len(r.BackupDonors))
	for _, b := range r.BackupDonors {
		if seen[b.DonorID] {
			return fmt.Errorf("%w: donor %s queued twice", ErrInconsistent, b.DonorID)
		}
		seen[b.DonorID] = true
		if r.PrimaryDonor != nil && b.DonorID == r.PrimaryDonor.DonorID && !b.Promoted {
			return fmt.Errorf("%w: donor %s is both primary and backup", ErrInconsistent, b.DonorID)
		}
	}
	return nil
}
