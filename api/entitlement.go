package handler

import (
	"net/http"

	"github.com/modulo-ai/paygate/types"
)

// EntitlementCheckRequest asks whether a request may proceed without a new
// payment: a valid session pass, or an unused free trial.
type EntitlementCheckRequest struct {
	ModuleID     string `json:"moduleId"`
	Wallet       string `json:"wallet,omitempty"`
	IP           string `json:"ip,omitempty"`
	SessionToken string `json:"sessionToken,omitempty"`
}

// EntitlementCheckResponse reports the decision. Mode is "session",
// "trial", or empty when payment is required.
type EntitlementCheckResponse struct {
	Entitled bool                `json:"entitled"`
	Mode     string              `json:"mode,omitempty"`
	Reason   string              `json:"reason,omitempty"`
	Session  *types.SessionClaim `json:"session,omitempty"`
}

// EntitlementCheck evaluates the session pass first, then the free trial.
func (h *Handler) EntitlementCheck(w http.ResponseWriter, r *http.Request) {
	var req EntitlementCheckRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ModuleID == "" {
		http.Error(w, "moduleId is required", http.StatusBadRequest)
		return
	}

	if req.SessionToken != "" {
		claim, valid, reason := h.Sessions.Validate(r.Context(), req.SessionToken)
		if valid && claim.ModuleID == req.ModuleID {
			writeJSON(w, http.StatusOK, EntitlementCheckResponse{
				Entitled: true,
				Mode:     "session",
				Session:  &claim,
			})
			return
		}
		if reason == "" {
			reason = "session pass is for a different module"
		}
		// An invalid pass falls through to the trial check rather than
		// ending the request; the client may still have a free use.
		h.Logger.Debug("session pass rejected", "moduleId", req.ModuleID, "reason", reason)
	}

	eligible, reason := h.TryOnce.CheckEligible(r.Context(), req.ModuleID, req.Wallet, req.IP)
	if eligible {
		writeJSON(w, http.StatusOK, EntitlementCheckResponse{
			Entitled: true,
			Mode:     "trial",
		})
		return
	}

	writeJSON(w, http.StatusOK, EntitlementCheckResponse{
		Entitled: false,
		Reason:   reason,
	})
}

// EntitlementRecordRequest marks a free trial as used.
type EntitlementRecordRequest struct {
	ModuleID string `json:"moduleId"`
	Wallet   string `json:"wallet,omitempty"`
	IP       string `json:"ip,omitempty"`
}

// EntitlementRecord records a trial use for every identity supplied.
func (h *Handler) EntitlementRecord(w http.ResponseWriter, r *http.Request) {
	var req EntitlementRecordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ModuleID == "" {
		http.Error(w, "moduleId is required", http.StatusBadRequest)
		return
	}

	if err := h.TryOnce.RecordUsage(r.Context(), req.ModuleID, req.Wallet, req.IP); err != nil {
		http.Error(w, "failed to record usage", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SessionConsumeRequest identifies the pass whose credit to spend.
type SessionConsumeRequest struct {
	ModuleID      string `json:"moduleId"`
	Wallet        string `json:"wallet"`
	PaymentTxHash string `json:"paymentTxHash"`
}

// SessionConsumeResponse reports the clamped post-decrement balance.
type SessionConsumeResponse struct {
	CreditsRemaining int `json:"creditsRemaining"`
}

// SessionConsume atomically spends one message credit.
func (h *Handler) SessionConsume(w http.ResponseWriter, r *http.Request) {
	var req SessionConsumeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	remaining, err := h.Sessions.ConsumeCredit(r.Context(), req.ModuleID, req.Wallet, req.PaymentTxHash)
	if err != nil {
		http.Error(w, "session expired or unavailable", http.StatusConflict)
		return
	}

	writeJSON(w, http.StatusOK, SessionConsumeResponse{CreditsRemaining: remaining})
}
