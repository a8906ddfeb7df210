package handler

import (
	"net/http"

	"github.com/modulo-ai/paygate/types"
)

// VerifyRequest is the request body for /verify.
type VerifyRequest struct {
	PaymentHeader       string                    `json:"paymentHeader"`
	PaymentRequirements types.PaymentRequirements `json:"paymentRequirements"`
}

// Verify checks a payment header against requirements without settling.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	if !h.authenticate(w, r) {
		return
	}

	var req VerifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PaymentHeader == "" {
		http.Error(w, "paymentHeader is required", http.StatusBadRequest)
		return
	}

	result, err := h.Adapter.Verify(r.Context(), req.PaymentHeader, req.PaymentRequirements)
	if err != nil {
		h.Logger.Error("verify failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
