// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danielhkuo/real-hero/auth"
	"github.com/danielhkuo/real-hero/handlers"
	"github.com/danielhkuo/real-hero/lifecycle"
	"github.com/danielhkuo/real-hero/middleware"
)

func NewRouter(ctrl *lifecycle.Controller, resolver auth.IdentityResolver, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()

	// Initialize handlers
	requestHandler := handlers.NewRequestHandler(ctrl)
	offerHandler := handlers.NewOfferHandler(ctrl)
	rewardHandler := handlers.NewRewardHandler(ctrl)

	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return middleware.WithLogging(middleware.RequireIdentity(resolver, h))
	}
	optional := func(h http.HandlerFunc) http.HandlerFunc {
		return middleware.WithLogging(middleware.OptionalIdentity(resolver, h))
	}

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Requests
	mux.HandleFunc("POST /api/requests", optional(requestHandler.CreateRequest))
	mux.HandleFunc("GET /api/requests/recent", middleware.WithLogging(requestHandler.Recent))
	mux.HandleFunc("GET /api/requests/mine", authed(requestHandler.Mine))
	mux.HandleFunc("GET /api/requests/donations", authed(requestHandler.Donations))

	// Donor actions
	mux.HandleFunc("POST /api/requests/{id}/claim", authed(requestHandler.Claim))
	mux.HandleFunc("POST /api/requests/{id}/interest", authed(requestHandler.Interest))
	mux.HandleFunc("POST /api/requests/{id}/arrived", authed(requestHandler.Arrived))
	mux.HandleFunc("POST /api/requests/{id}/complete", authed(requestHandler.Complete))
	mux.HandleFunc("POST /api/requests/{id}/cancel", authed(requestHandler.Cancel))
	mux.HandleFunc("POST /api/requests/{id}/close", authed(requestHandler.Close))

	// Emailed decision links (signed, no session)
	mux.HandleFunc("GET /api/requests/{id}/confirm-interest", middleware.WithLogging(requestHandler.ConfirmInterest))
	mux.HandleFunc("GET /api/requests/{id}/verify", middleware.WithLogging(requestHandler.Verify))
	mux.HandleFunc("GET /api/offers/respond", middleware.WithLogging(offerHandler.Respond))
	mux.HandleFunc("GET /api/offers/{id}/followup", middleware.WithLogging(offerHandler.FollowUp))

	// Offers
	mux.HandleFunc("POST /api/offers", optional(offerHandler.CreateOffer))

	// Rewards
	mux.HandleFunc("GET /api/rewards/leaderboard", middleware.WithLogging(rewardHandler.Leaderboard))
	mux.HandleFunc("GET /api/rewards/mine", authed(rewardHandler.Mine))

	// Root endpoint
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("real-hero API v1"))
	})

	return mux
}
