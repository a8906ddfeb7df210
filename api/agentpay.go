package handler

import (
	"errors"
	"net/http"

	"github.com/modulo-ai/paygate/agentpay"
	"github.com/modulo-ai/paygate/types"
	"github.com/modulo-ai/paygate/vault"
)

// AgentPayRequest asks for a payment header signed by a module's agent
// wallet, used when a remix module pays its upstream.
type AgentPayRequest struct {
	ModuleID string        `json:"moduleId"`
	PayTo    string        `json:"payTo"`
	Value    string        `json:"value"`
	Network  types.Network `json:"network"`
	Asset    string        `json:"asset"`
}

// AgentPayResponse carries the transport-encoded payment header.
type AgentPayResponse struct {
	PaymentHeader string `json:"paymentHeader"`
}

// AgentPay builds an outgoing payment header for a module's agent wallet.
func (h *Handler) AgentPay(w http.ResponseWriter, r *http.Request) {
	if !h.authenticate(w, r) {
		return
	}

	var req AgentPayRequest
	if !decodeBody(w, r, &req) {
		return
	}

	header, err := h.Builder.PayUpstream(r.Context(), req.ModuleID, req.PayTo, req.Value, req.Network, req.Asset)
	if errors.Is(err, vault.ErrKeyNotFound) {
		http.Error(w, "no agent wallet for module", http.StatusPreconditionFailed)
		return
	}
	if errors.Is(err, agentpay.ErrNotConfigured) {
		h.Logger.Error("agent payments not configured", "error", err)
		http.Error(w, "agent payments are not configured", http.StatusServiceUnavailable)
		return
	}
	if errors.Is(err, vault.ErrConfigMissing) || errors.Is(err, vault.ErrInvalidMasterKey) {
		h.Logger.Error("vault misconfigured", "error", err)
		http.Error(w, "payment signing is not configured", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, AgentPayResponse{PaymentHeader: header})
}
