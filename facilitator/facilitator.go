// Package facilitator builds payment requirements, decodes client payment
// headers, and verifies/settles payments through a pluggable backend. The
// backend is selected once at construction time: a deterministic mock for
// development and tests, or a remote facilitator service.
package facilitator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/modulo-ai/paygate/reconcile"
	"github.com/modulo-ai/paygate/types"
	"github.com/modulo-ai/paygate/utils"
)

// PaymentBackend verifies and settles decoded payment headers. Backends
// return protocol-level failures inside the result value; a non-nil error
// means the backend itself could not answer.
type PaymentBackend interface {
	Verify(ctx context.Context, header types.PaymentHeader, requirements types.PaymentRequirements) (types.VerifyResult, error)
	Settle(ctx context.Context, header types.PaymentHeader, requirements types.PaymentRequirements) (types.SettleResult, error)
}

// Adapter is the boundary-facing payment service. It owns the requirement
// format and the transport encoding of payment headers.
type Adapter struct {
	backend PaymentBackend
	recon   *reconcile.Service

	network           types.Network
	asset             string
	maxTimeoutSeconds int64
}

// Options configure an Adapter.
type Options struct {
	Network           types.Network
	Asset             string
	MaxTimeoutSeconds int64
}

// New creates an Adapter around the given backend. The reconciler is
// optional; when present it is used to cross-check settlements on-chain.
func New(backend PaymentBackend, recon *reconcile.Service, opts Options) *Adapter {
	if opts.MaxTimeoutSeconds == 0 {
		opts.MaxTimeoutSeconds = 300
	}
	return &Adapter{
		backend:           backend,
		recon:             recon,
		network:           opts.Network,
		asset:             opts.Asset,
		maxTimeoutSeconds: opts.MaxTimeoutSeconds,
	}
}

// BuildRequirements produces the machine-readable payment requirements for
// a 402 response. Amount is a decimal integer string in the asset's
// smallest unit; addresses are normalized to checksummed form.
func (a *Adapter) BuildRequirements(payTo, amount, description string) (types.PaymentRequirements, error) {
	payToNorm, err := utils.NormalizeAddress(payTo)
	if err != nil {
		return types.PaymentRequirements{}, fmt.Errorf("payTo is not an address: %q", payTo)
	}
	assetNorm, err := utils.NormalizeAddress(a.asset)
	if err != nil {
		return types.PaymentRequirements{}, fmt.Errorf("asset contract is not an address: %q", a.asset)
	}
	if !isDecimalInteger(amount) {
		return types.PaymentRequirements{}, fmt.Errorf("amount is not a decimal integer string: %q", amount)
	}
	return types.PaymentRequirements{
		Scheme:            types.SchemeExact,
		Network:           a.network,
		PayTo:             payToNorm,
		Asset:             assetNorm,
		Description:       description,
		MimeType:          "application/json",
		MaxAmountRequired: amount,
		MaxTimeoutSeconds: a.maxTimeoutSeconds,
	}, nil
}

// DecodeHeader parses the transport-encoded payment header. The header
// originates from an untrusted client, so every parse failure is returned
// as an error value rather than a panic.
func DecodeHeader(headerText string) (types.PaymentHeader, error) {
	raw, err := base64.StdEncoding.DecodeString(headerText)
	if err != nil {
		return types.PaymentHeader{}, fmt.Errorf("payment header is not valid base64: %v", err)
	}
	var header types.PaymentHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return types.PaymentHeader{}, fmt.Errorf("payment header is not valid JSON: %v", err)
	}
	return header, nil
}

// EncodeHeader serializes a payment header into its transport form.
func EncodeHeader(header types.PaymentHeader) (string, error) {
	raw, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("encode payment header: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Verify decodes the header and asks the backend whether the payment
// authorization is valid against the requirements.
func (a *Adapter) Verify(ctx context.Context, headerText string, requirements types.PaymentRequirements) (types.VerifyResult, error) {
	header, err := DecodeHeader(headerText)
	if err != nil {
		return types.VerifyResult{Valid: false, Error: err.Error()}, nil
	}
	if header.Scheme != "" && header.Scheme != requirements.Scheme {
		return types.VerifyResult{Valid: false, Error: string(types.InvalidReasonSchemeMismatch)}, nil
	}
	if header.Network != "" && header.Network != requirements.Network {
		return types.VerifyResult{Valid: false, Error: string(types.InvalidReasonNetworkMismatch)}, nil
	}
	return a.backend.Verify(ctx, header, requirements)
}

// Settle decodes the header and asks the backend to execute the payment.
// Settlement is not assumed idempotent: callers must not re-settle the same
// header after a downstream failure.
func (a *Adapter) Settle(ctx context.Context, headerText string, requirements types.PaymentRequirements) (types.SettleResult, error) {
	header, err := DecodeHeader(headerText)
	if err != nil {
		return types.SettleResult{Success: false, Error: err.Error()}, nil
	}
	return a.backend.Settle(ctx, header, requirements)
}

// ConfirmOnChain cross-checks a settlement against the chain through the
// reconciler. Used when the facilitator's own answer is ambiguous or a
// caller wants independent confirmation of a claimed transaction.
func (a *Adapter) ConfirmOnChain(ctx context.Context, txHash, payer string, requirements types.PaymentRequirements) (types.TxVerification, error) {
	if a.recon == nil {
		return types.TxVerification{}, fmt.Errorf("no reconciler configured")
	}
	return a.recon.VerifyTransfer(ctx, reconcile.VerifyParams{
		TxHash:        txHash,
		Network:       requirements.Network,
		AssetContract: requirements.Asset,
		ExpectedTo:    requirements.PayTo,
		ExpectedValue: requirements.MaxAmountRequired,
		ExpectedFrom:  payer,
	}), nil
}

func isDecimalInteger(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
