// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"strconv"

	"github.com/danielhkuo/real-hero/lifecycle"
	"github.com/danielhkuo/real-hero/middleware"
	"github.com/danielhkuo/real-hero/models"
)

type RequestHandler struct {
	ctrl *lifecycle.Controller
}

func NewRequestHandler(ctrl *lifecycle.Controller) *RequestHandler {
	return &RequestHandler{ctrl: ctrl}
}

// CreateRequest handles POST /api/requests
func (h *RequestHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRequestRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	created, err := h.ctrl.CreateRequest(r.Context(), req, middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err, "Failed to create request")
		return
	}

	middleware.JSONResponse(w, http.StatusCreated, models.CreateRequestResponse{
		RequestID: created.ID,
		Request:   created,
	})
}

// Recent handles GET /api/requests/recent?lat=&lng=&maxDistance=&limit=
func (h *RequestHandler) Recent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var near *models.GeoPoint
	latStr, lngStr := q.Get("lat"), q.Get("lng")
	if latStr != "" || lngStr != "" {
		lat, errLat := strconv.ParseFloat(latStr, 64)
		lng, errLng := strconv.ParseFloat(lngStr, 64)
		if errLat != nil || errLng != nil {
			middleware.ErrorResponse(w, http.StatusBadRequest, "lat and lng must both be numbers")
			return
		}
		near = &models.GeoPoint{Lat: lat, Lng: lng}
	}

	maxDistance := 0.0
	if s := q.Get("maxDistance"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 {
			middleware.ErrorResponse(w, http.StatusBadRequest, "maxDistance must be a positive number of meters")
			return
		}
		maxDistance = v
	}
	limit, ok := intParam(w, r, "limit")
	if !ok {
		return
	}

	reqs, err := h.ctrl.RecentRequests(r.Context(), near, maxDistance, limit)
	if err != nil {
		writeError(w, r, err, "Failed to list requests")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, reqs)
}

// Mine handles GET /api/requests/mine
func (h *RequestHandler) Mine(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.ctrl.ListMyRequests(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err, "Failed to list requests")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, reqs)
}

// Donations handles GET /api/requests/donations
func (h *RequestHandler) Donations(w http.ResponseWriter, r *http.Request) {
	records, err := h.ctrl.ListMyDonations(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err, "Failed to list donations")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, records)
}

// Claim handles POST /api/requests/{id}/claim
func (h *RequestHandler) Claim(w http.ResponseWriter, r *http.Request) {
	resp, err := h.ctrl.Claim(r.Context(), r.PathValue("id"), middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err, "Failed to claim request")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, resp)
}

// Interest handles POST /api/requests/{id}/interest
func (h *RequestHandler) Interest(w http.ResponseWriter, r *http.Request) {
	msg, err := h.ctrl.RegisterInterest(r.Context(), r.PathValue("id"), middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err, "Failed to register interest")
		return
	}
	message(w, msg)
}

// ConfirmInterest handles GET /api/requests/{id}/confirm-interest?donor=&response=&sig=
func (h *RequestHandler) ConfirmInterest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := h.ctrl.ConfirmInterest(r.Context(), r.PathValue("id"), q.Get("donor"), q.Get("response"), q.Get("sig"))
	if err != nil {
		writeError(w, r, err, "Failed to confirm interest")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, resp)
}

// Arrived handles POST /api/requests/{id}/arrived
func (h *RequestHandler) Arrived(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.MarkArrived(r.Context(), r.PathValue("id"), middleware.UserID(r.Context())); err != nil {
		writeError(w, r, err, "Failed to record arrival")
		return
	}
	message(w, "Arrival recorded.")
}

// Complete handles POST /api/requests/{id}/complete
func (h *RequestHandler) Complete(w http.ResponseWriter, r *http.Request) {
	msg, err := h.ctrl.Complete(r.Context(), r.PathValue("id"), middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err, "Failed to complete donation")
		return
	}
	message(w, msg)
}

// Cancel handles POST /api/requests/{id}/cancel
func (h *RequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	msg, err := h.ctrl.Cancel(r.Context(), r.PathValue("id"), middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err, "Failed to cancel donation")
		return
	}
	message(w, msg)
}

// Close handles POST /api/requests/{id}/close
func (h *RequestHandler) Close(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.CloseRequest(r.Context(), r.PathValue("id"), middleware.UserID(r.Context())); err != nil {
		writeError(w, r, err, "Failed to close request")
		return
	}
	message(w, "Request closed.")
}

// Verify handles GET /api/requests/{id}/verify?response=&sig=
func (h *RequestHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	msg, err := h.ctrl.VerifyDonation(r.Context(), r.PathValue("id"), q.Get("response"), q.Get("sig"))
	if err != nil {
		writeError(w, r, err, "Failed to verify donation")
		return
	}
	message(w, msg)
}

// intParam reads an optional non-negative integer query parameter. It
// writes a 400 and returns false when the value does not parse.
func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, true
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		middleware.ErrorResponse(w, http.StatusBadRequest, name+" must be a non-negative integer")
		return 0, false
	}
	return v, true
}
