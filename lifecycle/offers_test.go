// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package lifecycle

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielhkuo/real-hero/auth"
	"github.com/danielhkuo/real-hero/models"
	"github.com/danielhkuo/real-hero/notify"
)

func TestWhatsAppLink(t *testing.T) {
	tests := []struct {
		phone string
		text  string
		want  string
	}{
		{"+91 98765-43210", "Hi Ravi", "https://wa.me/919876543210?text=Hi+Ravi"},
		{"(020) 555", "a&b", "https://wa.me/020555?text=a%26b"},
		{"n/a", "x", ""},
		{"", "x", ""},
	}
	for _, tt := range tests {
		t.Run(tt.phone, func(t *testing.T) {
			assert.Equal(t, tt.want, whatsAppLink(tt.phone, tt.text))
		})
	}
}

func (f *fixture) offer(t *testing.T, requestID, donorUserID string, in models.CreateOfferRequest) *models.Offer {
	t.Helper()
	in.RequestID = requestID
	resp, err := f.ctrl.CreateOffer(f.ctx, in, donorUserID)
	require.NoError(t, err)
	o, err := f.store.GetOffer(f.ctx, resp.OfferID)
	require.NoError(t, err)
	return o
}

func TestCreateOffer(t *testing.T) {
	f := newFixture(t)
	f.user(t, "req")
	r := f.request(t, "req")

	t.Run("phone is required", func(t *testing.T) {
		_, err := f.ctrl.CreateOffer(f.ctx, models.CreateOfferRequest{RequestID: r.ID, Name: "Ravi"}, "")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("request must exist", func(t *testing.T) {
		_, err := f.ctrl.CreateOffer(f.ctx, models.CreateOfferRequest{RequestID: "missing", Phone: "1"}, "")
		assert.ErrorIs(t, err, ErrRequestNotFound)
	})

	t.Run("anonymous donor", func(t *testing.T) {
		resp, err := f.ctrl.CreateOffer(f.ctx, models.CreateOfferRequest{
			RequestID: r.ID,
			Name:      "Ravi",
			Phone:     "+91 98765 43210",
			Email:     "ravi@example.com",
		}, "")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(resp.WhatsApp, "https://wa.me/919876543210?text="))

		o, err := f.store.GetOffer(f.ctx, resp.OfferID)
		require.NoError(t, err)
		assert.Equal(t, models.OfferPending, o.Status)
		assert.Equal(t, 1, o.Units)
		assert.Nil(t, o.DonorUserID)
		assert.NotEmpty(t, o.Token)
		assert.Equal(t, f.now.Add(OfferFollowUpDelay), o.FollowUpAt)

		note := f.notes.last(t, notify.TemplateOfferRequest)
		assert.Equal(t, "ravi@example.com", note.Email)
		yes := linkParams(t, note.Payload["yes_url"])
		assert.Equal(t, o.Token, yes.Get("token"))
		assert.Equal(t, models.AnswerYes, yes.Get("resp"))
	})

	t.Run("known donor fills in contact details", func(t *testing.T) {
		f.user(t, "d1")
		o := f.offer(t, r.ID, "d1", models.CreateOfferRequest{Units: 2})
		require.NotNil(t, o.DonorUserID)
		assert.Equal(t, "d1", *o.DonorUserID)
		assert.Equal(t, "User d1", o.Donor.Name)
		assert.Equal(t, "d1@example.com", o.Donor.Email)
		assert.Equal(t, 2, o.Units)
	})
}

func TestRespondOffer_YesClaimsAndNotifiesRequester(t *testing.T) {
	f := newFixture(t)
	f.user(t, "req")
	f.user(t, "d1")
	r := f.request(t, "req")
	o := f.offer(t, r.ID, "d1", models.CreateOfferRequest{})

	msg, err := f.ctrl.RespondOffer(f.ctx, o.Token, models.AnswerYes)
	require.NoError(t, err)
	assert.Contains(t, msg, "yes")

	got, err := f.store.GetOffer(f.ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OfferAccepted, got.Status)
	assert.Equal(t, models.AnswerYes, got.Response)
	require.NotNil(t, got.RespondedAt)

	assert.Equal(t, "d1", f.get(t, r.ID).PrimaryDonor.DonorID)

	note := f.notes.last(t, notify.TemplateOfferAccepted)
	assert.Equal(t, "req", note.UserID)
	assert.Equal(t, "User d1", note.Payload["donor_name"])
	assert.True(t, strings.HasPrefix(note.Payload["whatsapp"], "https://wa.me/919000000000?text="))
	followUp := linkParams(t, note.Payload["yes_url"])
	assert.NoError(t, f.ctrl.signer.Verify(followUp.Get("sig"), linkFollowUp, o.ID))

	again, err := f.ctrl.RespondOffer(f.ctx, o.Token, models.AnswerNo)
	require.NoError(t, err)
	assert.Equal(t, "Offer already responded.", again)
	got, err = f.store.GetOffer(f.ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OfferAccepted, got.Status, "first answer wins")
}

func TestRespondOffer_No(t *testing.T) {
	f := newFixture(t)
	f.user(t, "req")
	r := f.request(t, "req")
	o := f.offer(t, r.ID, "", models.CreateOfferRequest{Name: "Ravi", Phone: "123"})

	_, err := f.ctrl.RespondOffer(f.ctx, o.Token, models.AnswerNo)
	require.NoError(t, err)

	got, err := f.store.GetOffer(f.ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OfferDeclined, got.Status)
	assert.Empty(t, f.notes.byTemplate(notify.TemplateOfferAccepted))
	assert.Equal(t, models.StatusOpen, f.get(t, r.ID).Status)
}

func TestRespondOffer_Rejections(t *testing.T) {
	f := newFixture(t)
	f.user(t, "req")
	r := f.request(t, "req")
	o := f.offer(t, r.ID, "", models.CreateOfferRequest{Phone: "123"})

	_, err := f.ctrl.RespondOffer(f.ctx, o.Token, "maybe")
	assert.ErrorIs(t, err, ErrInvalidResponse)
	_, err = f.ctrl.RespondOffer(f.ctx, "", models.AnswerYes)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.ctrl.RespondOffer(f.ctx, "bogus", models.AnswerYes)
	assert.ErrorIs(t, err, ErrOfferNotFound)
}

func TestFollowUpRespond(t *testing.T) {
	f := newFixture(t)
	f.user(t, "req")
	f.user(t, "d1")
	r := f.request(t, "req")
	o := f.offer(t, r.ID, "d1", models.CreateOfferRequest{Units: 3})
	sig := f.ctrl.signer.Sign(linkFollowUp, o.ID)

	_, err := f.ctrl.FollowUpRespond(f.ctx, o.ID, models.AnswerYes, "forged")
	assert.ErrorIs(t, err, auth.ErrInvalidSignature)

	_, err = f.ctrl.FollowUpRespond(f.ctx, o.ID, models.AnswerYes, sig)
	require.NoError(t, err)

	donor, err := f.store.GetUser(f.ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 150, donor.Coins)
	assert.Equal(t, 1, donor.DonationsCount)
	requester, err := f.store.GetUser(f.ctx, "req")
	require.NoError(t, err)
	assert.Equal(t, 5, requester.Coins)

	entries, err := f.ctrl.MyRewards(f.ctx, "d1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.CategoryOfferFollowUp, entries[0].Category)
	assert.Equal(t, "Ruby Hall Clinic", entries[0].Hospital)

	again, err := f.ctrl.FollowUpRespond(f.ctx, o.ID, models.AnswerYes, sig)
	require.NoError(t, err)
	assert.Equal(t, "Already responded.", again)
	donor, err = f.store.GetUser(f.ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 150, donor.Coins, "follow-up rewards are granted once")
}

func TestFollowUpRespond_NoGrantsNothing(t *testing.T) {
	f := newFixture(t)
	f.user(t, "req")
	f.user(t, "d1")
	r := f.request(t, "req")
	o := f.offer(t, r.ID, "d1", models.CreateOfferRequest{})

	_, err := f.ctrl.FollowUpRespond(f.ctx, o.ID, models.AnswerNo, f.ctrl.signer.Sign(linkFollowUp, o.ID))
	require.NoError(t, err)

	got, err := f.store.GetOffer(f.ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AnswerNo, got.FollowUpResponse)
	entries, err := f.store.ListRewards(f.ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSendOfferFollowUp(t *testing.T) {
	f := newFixture(t)
	f.user(t, "req")
	r := f.request(t, "req")
	o := f.offer(t, r.ID, "", models.CreateOfferRequest{Name: "Ravi", Phone: "123"})

	sent, err := f.ctrl.SendOfferFollowUp(f.ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, sent, "not due yet")

	f.advance(OfferFollowUpDelay + time.Minute)
	sent, err = f.ctrl.SendOfferFollowUp(f.ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, sent)

	note := f.notes.last(t, notify.TemplateOfferFollowUp)
	assert.Equal(t, "req@example.com", note.Email)
	assert.Equal(t, "Ravi", note.Payload["donor_name"])

	got, err := f.store.GetOffer(f.ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, got.FollowUpSent)
	require.NotNil(t, got.FollowUpSentAt)

	sent, err = f.ctrl.SendOfferFollowUp(f.ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Len(t, f.notes.byTemplate(notify.TemplateOfferFollowUp), 1)

	_, err = f.ctrl.SendOfferFollowUp(f.ctx, "missing")
	assert.ErrorIs(t, err, ErrOfferNotFound)
}

func TestSendOfferFollowUp_RequestGone(t *testing.T) {
	f := newFixture(t)
	f.user(t, "req")
	r := f.request(t, "req")
	o := f.offer(t, r.ID, "", models.CreateOfferRequest{Phone: "123"})
	require.NoError(t, f.ctrl.CloseRequest(f.ctx, r.ID, "req"))

	f.advance(OfferFollowUpDelay)
	sent, err := f.ctrl.SendOfferFollowUp(f.ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, sent)

	got, err := f.store.GetOffer(f.ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, got.FollowUpSent, "marked sent so the sweep stops picking it up")
	assert.Nil(t, got.FollowUpSentAt)
}
