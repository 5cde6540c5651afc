package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/Mindburn-Labs/sita/pkg/api"
	"github.com/Mindburn-Labs/sita/pkg/payments"
	"github.com/Mindburn-Labs/sita/pkg/tiers"
)

type checkoutRequest struct {
	Tier        tiers.TierID `json:"tier"`
	AmountCents int64        `json:"amountCents"`
	Email       string       `json:"email"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

func (s *Server) handleTiers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	api.WriteJSON(w, http.StatusOK, tiers.List())
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if s.payments == nil {
		api.WriteErrorR(w, r, http.StatusServiceUnavailable, "Service Unavailable", "donations are not enabled")
		return
	}
	var req checkoutRequest
	if !s.schemas.DecodeValid(w, r, schemaCheckout, &req) {
		return
	}
	url, err := s.payments.Checkout(r.Context(), req.Tier, req.AmountCents, req.Email)
	switch {
	case err == nil:
		api.WriteJSON(w, http.StatusOK, checkoutResponse{URL: url})
	case errors.Is(err, tiers.ErrUnknownTier), errors.Is(err, tiers.ErrBelowMinimum), errors.Is(err, payments.ErrInvalidEmail):
		api.WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", err.Error())
	case errors.Is(err, payments.ErrProvider):
		api.WriteErrorR(w, r, http.StatusBadGateway, "Bad Gateway", "checkout provider unavailable, please try again")
	default:
		api.WriteInternal(w, s.logger, err)
	}
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.payments == nil {
		api.WriteErrorR(w, r, http.StatusServiceUnavailable, "Service Unavailable", "donations are not enabled")
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, api.MaxBodyBytes))
	if err != nil {
		api.WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "could not read request body")
		return
	}
	if err := s.payments.HandleWebhook(r.Context(), payload, r.Header.Get(payments.SignatureHeader)); err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			api.WriteErrorR(w, r, http.StatusUnauthorized, "Unauthorized", "invalid webhook signature")
			return
		}
		api.WriteInternal(w, s.logger, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}
