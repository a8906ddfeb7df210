package facilitator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/modulo-ai/paygate/types"
)

// MockBackend accepts any structurally well-formed payment without touching
// a chain. Verification only requires a payer and a value; settlement
// fabricates a transaction-hash-shaped identifier. It performs no replay
// protection and must never be used against real funds.
type MockBackend struct{}

// NewMockBackend creates a mock payment backend.
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

// Verify succeeds iff the decoded header carries a payer and a value.
func (b *MockBackend) Verify(_ context.Context, header types.PaymentHeader, _ types.PaymentRequirements) (types.VerifyResult, error) {
	if header.Payload.From == "" {
		return types.VerifyResult{Valid: false, Error: string(types.InvalidReasonMissingPayer)}, nil
	}
	if header.Payload.Value == "" {
		return types.VerifyResult{Valid: false, Error: string(types.InvalidReasonMissingValue)}, nil
	}
	return types.VerifyResult{
		Valid: true,
		Payer: header.Payload.From,
		Value: header.Payload.Value,
	}, nil
}

// Settle always succeeds with a random 32-byte hash and IsMock set.
func (b *MockBackend) Settle(_ context.Context, _ types.PaymentHeader, _ types.PaymentRequirements) (types.SettleResult, error) {
	hash := make([]byte, 32)
	if _, err := rand.Read(hash); err != nil {
		return types.SettleResult{}, fmt.Errorf("generate mock tx hash: %w", err)
	}
	return types.SettleResult{
		Success: true,
		TxHash:  "0x" + hex.EncodeToString(hash),
		IsMock:  true,
	}, nil
}
