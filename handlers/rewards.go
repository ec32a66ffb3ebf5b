// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"

	"github.com/danielhkuo/real-hero/lifecycle"
	"github.com/danielhkuo/real-hero/middleware"
)

type RewardHandler struct {
	ctrl *lifecycle.Controller
}

func NewRewardHandler(ctrl *lifecycle.Controller) *RewardHandler {
	return &RewardHandler{ctrl: ctrl}
}

// Leaderboard handles GET /api/rewards/leaderboard?limit=
func (h *RewardHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit")
	if !ok {
		return
	}
	board, err := h.ctrl.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, r, err, "Failed to load leaderboard")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, board)
}

// Mine handles GET /api/rewards/mine
func (h *RewardHandler) Mine(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ctrl.MyRewards(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, r, err, "Failed to load rewards")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, entries)
}
