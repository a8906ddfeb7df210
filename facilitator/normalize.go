package facilitator

import (
	"encoding/json"
	"fmt"

	"github.com/modulo-ai/paygate/types"
)

// Facilitator deployments have answered with several response shapes over
// time. Each known shape is an explicit variant; anything else is an
// unrecognized-response error, never a silent success.
type responseKind int

const (
	kindIsValid responseKind = iota // {isValid, invalidReason, payer?}
	kindValid                       // {valid, payer, value}
	kindEvent                       // {event, txHash}
	kindSuccess                     // {success, txHash|transaction, error|errorReason}
)

// outcome is the normalized form of any facilitator response variant.
type outcome struct {
	kind   responseKind
	ok     bool
	payer  string
	value  string
	txHash string
	reason string
}

// rawResponse superimposes every known response shape. Pointer fields
// distinguish an absent key from a false value.
type rawResponse struct {
	IsValid       *bool  `json:"isValid"`
	InvalidReason string `json:"invalidReason"`

	Valid *bool  `json:"valid"`
	Payer string `json:"payer"`
	Value string `json:"value"`

	Event  string `json:"event"`
	TxHash string `json:"txHash"`

	Success     *bool  `json:"success"`
	Transaction string `json:"transaction"`
	Error       string `json:"error"`
	ErrorReason string `json:"errorReason"`
}

// normalizeResponse maps a facilitator response body onto one of the known
// variants. Detection order matters only for pathological bodies carrying
// multiple discriminators; the first matching variant wins.
func normalizeResponse(body []byte) (outcome, error) {
	var raw rawResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return outcome{}, fmt.Errorf("facilitator response is not JSON: %v", err)
	}

	switch {
	case raw.IsValid != nil:
		return outcome{
			kind:   kindIsValid,
			ok:     *raw.IsValid,
			payer:  raw.Payer,
			reason: raw.InvalidReason,
		}, nil

	case raw.Valid != nil:
		return outcome{
			kind:  kindValid,
			ok:    *raw.Valid,
			payer: raw.Payer,
			value: raw.Value,
		}, nil

	case raw.Event != "":
		return outcome{
			kind:   kindEvent,
			ok:     raw.Event == "settled" || raw.Event == "success",
			txHash: raw.TxHash,
			reason: raw.Event,
		}, nil

	case raw.Success != nil:
		txHash := raw.TxHash
		if txHash == "" {
			txHash = raw.Transaction
		}
		reason := raw.Error
		if reason == "" {
			reason = raw.ErrorReason
		}
		return outcome{
			kind:   kindSuccess,
			ok:     *raw.Success,
			payer:  raw.Payer,
			txHash: txHash,
			reason: reason,
		}, nil
	}

	return outcome{}, fmt.Errorf("facilitator response matches no known shape")
}

func (o outcome) verifyResult() types.VerifyResult {
	result := types.VerifyResult{
		Valid: o.ok,
		Payer: o.payer,
		Value: o.value,
	}
	if !o.ok {
		result.Error = o.reason
		if result.Error == "" {
			result.Error = "verification rejected"
		}
	}
	return result
}

func (o outcome) settleResult() types.SettleResult {
	result := types.SettleResult{
		Success: o.ok,
		TxHash:  o.txHash,
	}
	if !o.ok {
		result.Error = o.reason
		if result.Error == "" {
			result.Error = "settlement rejected"
		}
	}
	return result
}
