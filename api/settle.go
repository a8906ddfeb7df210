package handler

import (
	"net/http"

	"github.com/modulo-ai/paygate/types"
)

// SettleRequest is the request body for /settle. When Session is present a
// session pass is issued after a successful settlement.
type SettleRequest struct {
	PaymentHeader       string                    `json:"paymentHeader"`
	PaymentRequirements types.PaymentRequirements `json:"paymentRequirements"`
	Session             *SessionIssueRequest      `json:"session,omitempty"`
}

// SessionIssueRequest asks for a session pass bound to the settled payment.
type SessionIssueRequest struct {
	Wallet   string              `json:"wallet"`
	ModuleID string              `json:"moduleId"`
	Policy   types.SessionPolicy `json:"policy"`
}

// SettleResponse wraps the settlement outcome. SessionError is set when the
// payment settled but the pass could not be issued; the payment is never
// re-settled in that case.
type SettleResponse struct {
	Settle       types.SettleResult  `json:"settle"`
	SessionToken string              `json:"sessionToken,omitempty"`
	Session      *types.SessionClaim `json:"session,omitempty"`
	SessionError string              `json:"sessionError,omitempty"`
}

// Settle executes a payment and optionally issues a session pass.
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	if !h.authenticate(w, r) {
		return
	}

	var req SettleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PaymentHeader == "" {
		http.Error(w, "paymentHeader is required", http.StatusBadRequest)
		return
	}

	result, err := h.Adapter.Settle(r.Context(), req.PaymentHeader, req.PaymentRequirements)
	if err != nil {
		h.Logger.Error("settle failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	response := SettleResponse{Settle: result}

	if result.Success && req.Session != nil {
		token, claim, err := h.Sessions.Issue(
			r.Context(),
			req.Session.Wallet,
			req.Session.ModuleID,
			result.TxHash,
			req.Session.Policy,
		)
		if err != nil {
			// The user has paid; surface the issuance failure distinctly
			// instead of retrying the payment.
			h.Logger.Error("session issue failed after settlement",
				"txHash", result.TxHash, "moduleId", req.Session.ModuleID, "error", err)
			response.SessionError = "paid_but_session_issue_failed"
		} else {
			response.SessionToken = token
			response.Session = &claim
		}
	}

	writeJSON(w, http.StatusOK, response)
}
