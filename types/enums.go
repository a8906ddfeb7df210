package types

// X402Version is the x402 version enum.
type X402Version int

const (
	X402Version1 X402Version = 1
)

// Scheme is the scheme enum.
type Scheme string

const (
	SchemeExact Scheme = "exact"
)

// Network is the network enum.
type Network string

const (
	NetworkBase        Network = "base"
	NetworkBaseSepolia Network = "base-sepolia"
	NetworkSepolia     Network = "sepolia"
)

// TxStatus classifies the outcome of reconciling a payment transaction
// against the chain.
type TxStatus string

const (
	TxConfirmed          TxStatus = "confirmed"
	TxNotFound           TxStatus = "not_found"
	TxReverted           TxStatus = "reverted"
	TxMismatch           TxStatus = "mismatch"
	TxUnsupportedNetwork TxStatus = "unsupported_network"
	TxError              TxStatus = "error"
)

// InvalidReason is the invalid reason enum returned by verification.
type InvalidReason string

const (
	InvalidReasonMalformedHeader        InvalidReason = "malformed_payment_header"
	InvalidReasonMissingPayer           InvalidReason = "missing_payer"
	InvalidReasonMissingValue           InvalidReason = "missing_value"
	InvalidReasonInvalidValue           InvalidReason = "invalid_value"
	InvalidReasonValueNegative          InvalidReason = "invalid_value_negative"
	InvalidReasonValueExceeded          InvalidReason = "invalid_value_exceeded"
	InvalidReasonSchemeMismatch         InvalidReason = "invalid_scheme_mismatch"
	InvalidReasonNetworkMismatch        InvalidReason = "invalid_network_mismatch"
	InvalidReasonPayToMismatch          InvalidReason = "invalid_pay_to_mismatch"
	InvalidReasonUnexpectedResponse     InvalidReason = "unexpected_facilitator_response"
	InvalidReasonFacilitatorUnreachable InvalidReason = "facilitator_unreachable"
)

// ErrorReason is the error reason enum returned by settlement.
type ErrorReason string

const (
	ErrorReasonMalformedHeader        ErrorReason = "malformed_payment_header"
	ErrorReasonUnexpectedResponse     ErrorReason = "unexpected_facilitator_response"
	ErrorReasonFacilitatorUnreachable ErrorReason = "facilitator_unreachable"
	ErrorReasonSettlementRejected     ErrorReason = "settlement_rejected"
)

// SessionInvalidReason explains why a session pass failed validation.
type SessionInvalidReason string

const (
	SessionReasonBadSignature   SessionInvalidReason = "bad_signature"
	SessionReasonMalformedToken SessionInvalidReason = "malformed_token"
	SessionReasonExpired        SessionInvalidReason = "expired"
	SessionReasonNoCounter      SessionInvalidReason = "counter_expired"
	SessionReasonExhausted      SessionInvalidReason = "exhausted"
)
