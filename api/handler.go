// Package handler exposes the payment core over HTTP. Handlers hold their
// dependencies explicitly; everything is constructed once in main and
// injected.
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/modulo-ai/paygate/agentpay"
	"github.com/modulo-ai/paygate/auth"
	"github.com/modulo-ai/paygate/config"
	"github.com/modulo-ai/paygate/entitlement"
	"github.com/modulo-ai/paygate/facilitator"
	"github.com/modulo-ai/paygate/utils"
)

// Handler bundles the services behind the HTTP surface.
type Handler struct {
	Cfg      *config.Config
	Auth     *auth.Authenticator
	Adapter  *facilitator.Adapter
	TryOnce  *entitlement.TryOnce
	Sessions *entitlement.Sessions
	Builder  *agentpay.Builder
	Logger   *slog.Logger
}

// Routes registers every endpoint on the mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /requirements", h.Requirements)
	mux.HandleFunc("POST /verify", h.Verify)
	mux.HandleFunc("POST /settle", h.Settle)
	mux.HandleFunc("GET /supported", h.Supported)
	mux.HandleFunc("POST /entitlement/check", h.EntitlementCheck)
	mux.HandleFunc("POST /entitlement/record", h.EntitlementRecord)
	mux.HandleFunc("POST /session/consume", h.SessionConsume)
	mux.HandleFunc("POST /agent/pay", h.AgentPay)
}

// writeJSON writes a JSON response with a request id for log correlation.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-Id", uuid.NewString())
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Header already written so we log the error
		log.Printf("failed to write response: %v", err)
	}
}

// authenticate gates a handler behind the API-key check. Returns false
// after writing the error response.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) bool {
	err := h.Auth.Authenticate(r)
	if err == nil {
		return true
	}
	var se utils.StatusError
	if errors.As(err, &se) {
		http.Error(w, err.Error(), se.Status())
	} else {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
	return false
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
