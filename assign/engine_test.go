// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package assign

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/real-hero/models"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func openRequest() *models.Request {
	requester := "requester"
	return &models.Request{
		ID:          "req-1",
		RequesterID: &requester,
		Status:      models.StatusOpen,
		CreatedAt:   t0,
	}
}

func mustAssign(t *testing.T, r *models.Request, donor string, at time.Time) Outcome {
	t.Helper()
	out, err := Assign(r, donor, "", false, at)
	require.NoError(t, err)
	require.NoError(t, Check(r))
	return out
}

func TestClaim_PrimaryThenBackup(t *testing.T) {
	r := openRequest()

	out := mustAssign(t, r, "d1", t0)
	assert.Equal(t, models.RolePrimary, out.Role)
	assert.Equal(t, models.StatusPrimaryAssigned, r.Status)
	require.NotNil(t, r.PrimaryDonor)
	assert.Equal(t, "d1", r.PrimaryDonor.DonorID)
	assert.Equal(t, t0, r.PrimaryDonor.AcceptedAt)
	assert.Nil(t, r.PrimaryDonor.ConfirmedAt)
	assert.False(t, r.PrimaryDonor.Arrived)

	out = mustAssign(t, r, "d2", t0.Add(time.Minute))
	assert.Equal(t, models.RoleBackup, out.Role)
	assert.Equal(t, models.StatusBackupAssigned, r.Status)

	out = mustAssign(t, r, "d3", t0.Add(2*time.Minute))
	assert.Equal(t, models.RoleBackup, out.Role)
	assert.Equal(t, models.StatusBackupAssigned, r.Status)
	require.Len(t, r.BackupDonors, 2)
	assert.Equal(t, "d2", r.BackupDonors[0].DonorID)
	assert.Equal(t, "d3", r.BackupDonors[1].DonorID)
}

func TestClaim_Rejections(t *testing.T) {
	uidRequest := func() *models.Request {
		r := openRequest()
		r.RequesterID = nil
		r.RequesterUID = "legacy-uid"
		return r
	}

	tests := []struct {
		name    string
		req     func() *models.Request
		claim   Claim
		wantErr error
	}{
		{
			name: "fulfilled",
			req: func() *models.Request {
				r := openRequest()
				r.Status = models.StatusFulfilled
				return r
			},
			claim:   Claim{DonorID: "d1"},
			wantErr: ErrRequestClosed,
		},
		{
			name: "failed",
			req: func() *models.Request {
				r := openRequest()
				r.Status = models.StatusFailed
				r.PrimaryDonor = &models.PrimaryDonor{DonorID: "d0"}
				return r
			},
			claim:   Claim{DonorID: "d1"},
			wantErr: ErrRequestClosed,
		},
		{
			name:    "existing response",
			req:     openRequest,
			claim:   Claim{DonorID: "d1", AlreadyResponded: true},
			wantErr: ErrAlreadyResponded,
		},
		{
			name:    "self donation by id",
			req:     openRequest,
			claim:   Claim{DonorID: "requester"},
			wantErr: ErrSelfDonation,
		},
		{
			name:    "self donation by legacy uid",
			req:     uidRequest,
			claim:   Claim{DonorID: "u-1", DonorUID: "legacy-uid"},
			wantErr: ErrSelfDonation,
		},
		{
			name: "closed wins over already responded",
			req: func() *models.Request {
				r := openRequest()
				r.Status = models.StatusCancelled
				return r
			},
			claim:   Claim{DonorID: "d1", AlreadyResponded: true},
			wantErr: ErrRequestClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.req()
			before := r.Clone()

			_, err := Transition(r, tt.claim, t0)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, r, "request must be untouched on error")
		})
	}
}

func TestClaim_DonorAlreadyQueued(t *testing.T) {
	r := openRequest()
	mustAssign(t, r, "d1", t0)
	mustAssign(t, r, "d2", t0)

	_, err := Assign(r, "d1", "", false, t0)
	assert.ErrorIs(t, err, ErrAlreadyResponded)
	_, err = Assign(r, "d2", "", false, t0)
	assert.ErrorIs(t, err, ErrAlreadyResponded)
}

func TestCancel_PrimaryPromotesFirstBackup(t *testing.T) {
	r := openRequest()
	mustAssign(t, r, "d1", t0)
	mustAssign(t, r, "b1", t0.Add(1*time.Minute))
	mustAssign(t, r, "b2", t0.Add(2*time.Minute))

	now := t0.Add(time.Hour)
	out, err := CancelDonor(r, "d1", now)
	require.NoError(t, err)
	require.NoError(t, Check(r))

	assert.Equal(t, "b1", out.Promoted)
	assert.Equal(t, "d1", out.Displaced)
	assert.False(t, out.Reopened)
	assert.Equal(t, models.StatusPrimaryAssigned, r.Status)
	assert.Equal(t, "b1", r.PrimaryDonor.DonorID)
	assert.Equal(t, now, r.PrimaryDonor.AcceptedAt, "promotion stamps a fresh acceptedAt")
	assert.True(t, r.BackupDonors[0].Promoted)
	assert.False(t, r.BackupDonors[1].Promoted)
}

func TestCancel_PrimaryWithoutBackupReopens(t *testing.T) {
	r := openRequest()
	mustAssign(t, r, "d1", t0)

	out, err := CancelDonor(r, "d1", t0.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, Check(r))

	assert.True(t, out.Reopened)
	assert.Empty(t, out.Promoted)
	assert.Equal(t, models.StatusOpen, r.Status)
	assert.Nil(t, r.PrimaryDonor)
}

func TestCancel_Backup(t *testing.T) {
	r := openRequest()
	mustAssign(t, r, "d1", t0)
	mustAssign(t, r, "b1", t0)
	mustAssign(t, r, "b2", t0)

	out, err := CancelDonor(r, "b1", t0)
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, models.StatusBackupAssigned, r.Status, "status unchanged when a backup leaves")
	require.Len(t, r.BackupDonors, 1)
	assert.Equal(t, "b2", r.BackupDonors[0].DonorID)
	assert.Equal(t, "d1", r.PrimaryDonor.DonorID)
}

func TestCancel_BackupRemovalDoesNotAlias(t *testing.T) {
	r := openRequest()
	mustAssign(t, r, "d1", t0)
	mustAssign(t, r, "b1", t0)
	mustAssign(t, r, "b2", t0)
	snapshot := r.BackupDonors

	_, err := CancelDonor(r, "b1", t0)
	require.NoError(t, err)
	assert.Equal(t, "b1", snapshot[0].DonorID, "previous slice must not be rewritten")
}

func TestCancel_Errors(t *testing.T) {
	r := openRequest()
	mustAssign(t, r, "d1", t0)

	_, err := CancelDonor(r, "stranger", t0)
	assert.ErrorIs(t, err, ErrDonorNotFound)

	r.Status = models.StatusFailed
	_, err = CancelDonor(r, "d1", t0)
	assert.ErrorIs(t, err, ErrRequestClosed)
}

func TestPromote_FIFOAndExhaustion(t *testing.T) {
	r := openRequest()
	mustAssign(t, r, "d1", t0)
	mustAssign(t, r, "b1", t0.Add(1*time.Second))
	mustAssign(t, r, "b2", t0.Add(2*time.Second))

	out, err := PromoteFrom(r, "d1", t0)
	require.NoError(t, err)
	assert.Equal(t, "b1", out.Promoted)

	out, err = PromoteFrom(r, "b1", t0)
	require.NoError(t, err)
	assert.Equal(t, "b2", out.Promoted)
	assert.Equal(t, models.StatusPrimaryAssigned, r.Status)

	out, err = PromoteFrom(r, "b2", t0)
	require.NoError(t, err)
	assert.True(t, out.Reopened)
	assert.Equal(t, models.StatusOpen, r.Status)
	assert.Nil(t, r.PrimaryDonor)
	require.NoError(t, Check(r))
}

func TestPromote_Idempotent(t *testing.T) {
	r := openRequest()
	mustAssign(t, r, "d1", t0)
	mustAssign(t, r, "b1", t0)
	mustAssign(t, r, "b2", t0)

	_, err := PromoteFrom(r, "d1", t0)
	require.NoError(t, err)
	after := r.Clone()

	out, err := PromoteFrom(r, "d1", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, out.Changed)
	assert.Equal(t, after, r)
}

func TestTimeout(t *testing.T) {
	window := 2 * time.Hour

	setup := func() *models.Request {
		r := openRequest()
		mustAssign(t, r, "d1", t0)
		mustAssign(t, r, "b1", t0.Add(time.Minute))
		return r
	}

	t.Run("stale primary promotes backup", func(t *testing.T) {
		r := setup()
		out, err := Transition(r, Timeout{ExpectedPrimary: "d1", Window: window}, t0.Add(3*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, "b1", out.Promoted)
		assert.Equal(t, "d1", out.Displaced)
		assert.Equal(t, models.StatusPrimaryAssigned, r.Status)
	})

	t.Run("within window is no-op", func(t *testing.T) {
		r := setup()
		out, err := Transition(r, Timeout{ExpectedPrimary: "d1", Window: window}, t0.Add(time.Hour))
		require.NoError(t, err)
		assert.False(t, out.Changed)
		assert.Equal(t, "d1", r.PrimaryDonor.DonorID)
	})

	t.Run("arrived is exempt", func(t *testing.T) {
		r := setup()
		r.PrimaryDonor.Arrived = true
		out, err := Transition(r, Timeout{ExpectedPrimary: "d1", Window: window}, t0.Add(3*time.Hour))
		require.NoError(t, err)
		assert.False(t, out.Changed)
	})

	t.Run("primary already replaced", func(t *testing.T) {
		r := setup()
		out, err := Transition(r, Timeout{ExpectedPrimary: "someone-else", Window: window}, t0.Add(3*time.Hour))
		require.NoError(t, err)
		assert.False(t, out.Changed)
	})

	t.Run("queued backups do not shield the primary", func(t *testing.T) {
		r := setup()
		require.Equal(t, models.StatusBackupAssigned, r.Status)
		out, err := Transition(r, Timeout{ExpectedPrimary: "d1", Window: window}, t0.Add(3*time.Hour))
		require.NoError(t, err)
		assert.True(t, out.Changed)
		assert.Equal(t, "b1", r.PrimaryDonor.DonorID)
		assert.Equal(t, models.StatusPrimaryAssigned, r.Status)
	})

	t.Run("pending verification is not swept", func(t *testing.T) {
		r := setup()
		r.Status = models.StatusPendingVerification
		out, err := Transition(r, Timeout{ExpectedPrimary: "d1", Window: window}, t0.Add(3*time.Hour))
		require.NoError(t, err)
		assert.False(t, out.Changed)
	})

	t.Run("no backup reopens", func(t *testing.T) {
		r := openRequest()
		mustAssign(t, r, "d1", t0)
		out, err := Transition(r, Timeout{ExpectedPrimary: "d1", Window: window}, t0.Add(3*time.Hour))
		require.NoError(t, err)
		assert.True(t, out.Reopened)
		assert.Equal(t, models.StatusOpen, r.Status)
	})
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		primary bool
		event   Event
		want    string
		wantErr error
	}{
		{"yes from primary_assigned", models.StatusPrimaryAssigned, true, VerifyYes{}, models.StatusFulfilled, nil},
		{"yes from backup_assigned", models.StatusBackupAssigned, true, VerifyYes{}, models.StatusFulfilled, nil},
		{"yes from pending_verification", models.StatusPendingVerification, true, VerifyYes{}, models.StatusFulfilled, nil},
		{"no from primary_assigned", models.StatusPrimaryAssigned, true, VerifyNo{}, models.StatusFailed, nil},
		{"yes from open", models.StatusOpen, false, VerifyYes{}, models.StatusOpen, ErrNoPrimary},
		{"no after fulfilled", models.StatusFulfilled, true, VerifyNo{}, models.StatusFulfilled, ErrRequestClosed},
		{"yes after failed", models.StatusFailed, true, VerifyYes{}, models.StatusFailed, ErrRequestClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := openRequest()
			r.Status = tt.status
			if tt.primary {
				r.PrimaryDonor = &models.PrimaryDonor{DonorID: "d1", AcceptedAt: t0}
			}

			_, err := Transition(r, tt.event, t0)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, r.Status)
		})
	}
}

func TestTerminalImmutability(t *testing.T) {
	events := []Event{
		Claim{DonorID: "new"},
		Cancel{DonorID: "d1"},
		Promote{ExpectedPrimary: "d1"},
		Arrive{DonorID: "d1"},
		Complete{DonorID: "d1"},
		VerifyYes{},
		VerifyNo{},
	}

	for _, status := range []string{models.StatusFulfilled, models.StatusFailed, models.StatusCancelled} {
		for _, ev := range events {
			r := openRequest()
			r.Status = status
			r.PrimaryDonor = &models.PrimaryDonor{DonorID: "d1", AcceptedAt: t0}
			before := r.Clone()

			_, err := Transition(r, ev, t0)
			assert.ErrorIs(t, err, ErrRequestClosed, "%s / %T", status, ev)
			assert.Equal(t, before, r)
		}
	}
}

func TestArriveAndComplete(t *testing.T) {
	r := openRequest()
	mustAssign(t, r, "d1", t0)
	mustAssign(t, r, "b1", t0)

	_, err := Transition(r, Arrive{DonorID: "b1"}, t0)
	assert.ErrorIs(t, err, ErrDonorNotFound)

	at := t0.Add(30 * time.Minute)
	out, err := Transition(r, Arrive{DonorID: "d1"}, at)
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.True(t, r.PrimaryDonor.Arrived)
	require.NotNil(t, r.PrimaryDonor.ConfirmedAt)
	assert.Equal(t, at, *r.PrimaryDonor.ConfirmedAt)

	out, err = Transition(r, Arrive{DonorID: "d1"}, at.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, out.Changed, "second arrival is a no-op")

	for _, donor := range []string{"d1", "b1"} {
		out, err = Transition(r, Complete{DonorID: donor}, t0)
		require.NoError(t, err)
		assert.False(t, out.Changed, "complete never changes the request")
	}
	_, err = Transition(r, Complete{DonorID: "stranger"}, t0)
	assert.ErrorIs(t, err, ErrDonorNotFound)
}

func TestComplete_DisplacedPromotedBackup(t *testing.T) {
	r := openRequest()
	mustAssign(t, r, "d1", t0)
	mustAssign(t, r, "d2", t0)
	mustAssign(t, r, "d3", t0)

	_, err := CancelDonor(r, "d1", t0.Add(time.Minute))
	require.NoError(t, err)
	_, err = CancelDonor(r, "d2", t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, "d3", r.PrimaryDonor.DonorID)

	_, err = Transition(r, Complete{DonorID: "d2"}, t0.Add(3*time.Minute))
	assert.ErrorIs(t, err, ErrDonorNotFound)

	_, err = Transition(r, Complete{DonorID: "d3"}, t0.Add(3*time.Minute))
	assert.NoError(t, err, "the promoted donor who is primary may complete")
}

func TestCheck(t *testing.T) {
	r := openRequest()
	r.PrimaryDonor = &models.PrimaryDonor{DonorID: "d1"}
	assert.ErrorIs(t, Check(r), ErrInconsistent)

	r = openRequest()
	r.Status = models.StatusBackupAssigned
	assert.ErrorIs(t, Check(r), ErrInconsistent)

	r = openRequest()
	r.Status = "bogus"
	assert.ErrorIs(t, Check(r), ErrInconsistent)
}
