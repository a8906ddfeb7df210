package handler

import (
	"net/http"

	"github.com/modulo-ai/paygate/types"
)

// RequirementsRequest carries the module's validated price metadata. The
// catalog decides what a module costs; this endpoint only renders the
// machine-readable requirements.
type RequirementsRequest struct {
	PayTo       string `json:"payTo"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

// PaymentRequiredResponse is the 402-style body handed to clients.
type PaymentRequiredResponse struct {
	X402Version types.X402Version           `json:"x402Version"`
	Error       string                      `json:"error"`
	Accepts     []types.PaymentRequirements `json:"accepts"`
}

// Requirements builds PaymentRequirements for a 402 response.
func (h *Handler) Requirements(w http.ResponseWriter, r *http.Request) {
	var req RequirementsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	requirements, err := h.Adapter.BuildRequirements(req.PayTo, req.Amount, req.Description)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusPaymentRequired, PaymentRequiredResponse{
		X402Version: types.X402Version1,
		Error:       "payment required",
		Accepts:     []types.PaymentRequirements{requirements},
	})
}
