package handler

import (
	"net/http"
	"sort"

	"github.com/modulo-ai/paygate/types"
)

// SupportedKind describes a supported payment type.
type SupportedKind struct {
	X402Version types.X402Version `json:"x402Version"`
	Scheme      types.Scheme      `json:"scheme"`
	Network     types.Network     `json:"network"`
}

// SupportedResponse lists all payment types this deployment supports.
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}

// Supported reports the scheme/network pairs with a configured RPC
// endpoint.
func (h *Handler) Supported(w http.ResponseWriter, r *http.Request) {
	kinds := make([]SupportedKind, 0, len(h.Cfg.Networks))
	for network := range h.Cfg.Networks {
		kinds = append(kinds, SupportedKind{
			X402Version: types.X402Version1,
			Scheme:      types.SchemeExact,
			Network:     network,
		})
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i].Network < kinds[j].Network })

	writeJSON(w, http.StatusOK, SupportedResponse{Kinds: kinds})
}
