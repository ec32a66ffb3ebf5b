// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"

	"github.com/danielhkuo/real-hero/lifecycle"
	"github.com/danielhkuo/real-hero/middleware"
	"github.com/danielhkuo/real-hero/models"
)

type OfferHandler struct {
	ctrl *lifecycle.Controller
}

func NewOfferHandler(ctrl *lifecycle.Controller) *OfferHandler {
	return &OfferHandler{ctrl: ctrl}
}

// CreateOffer handles POST /api/offers
func (h *OfferHandler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	var req models.CreateOfferRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	resp, err := h.ctrl.CreateOffer(r.Context(), req, middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err, "Failed to create offer")
		return
	}
	middleware.JSONResponse(w, http.StatusCreated, resp)
}

// Respond handles GET /api/offers/respond?token=&resp=
func (h *OfferHandler) Respond(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	msg, err := h.ctrl.RespondOffer(r.Context(), q.Get("token"), q.Get("resp"))
	if err != nil {
		writeError(w, r, err, "Failed to record offer response")
		return
	}
	message(w, msg)
}

// FollowUp handles GET /api/offers/{id}/followup?resp=&sig=
func (h *OfferHandler) FollowUp(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	msg, err := h.ctrl.FollowUpRespond(r.Context(), r.PathValue("id"), q.Get("resp"), q.Get("sig"))
	if err != nil {
		writeError(w, r, err, "Failed to record follow-up")
		return
	}
	message(w, msg)
}
