package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/modulo-ai/paygate/types"
)

// RemoteBackend verifies and settles payments by calling an external
// facilitator service over HTTP.
type RemoteBackend struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewRemoteBackend creates a backend targeting the facilitator at baseURL.
// A missing base URL is a configuration error: remote mode cannot operate
// without one.
func NewRemoteBackend(baseURL string, logger *slog.Logger) (*RemoteBackend, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("facilitator base URL is not configured")
	}
	return &RemoteBackend{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}, nil
}

// facilitatorRequest is the wire body for both /verify and /settle.
type facilitatorRequest struct {
	X402Version         types.X402Version         `json:"x402Version"`
	Scheme              types.Scheme              `json:"scheme,omitempty"`
	Network             types.Network             `json:"network"`
	PaymentHeader       types.PaymentHeader       `json:"paymentHeader"`
	PaymentRequirements types.PaymentRequirements `json:"paymentRequirements"`
}

// Verify calls POST {base}/verify and normalizes the response.
func (b *RemoteBackend) Verify(ctx context.Context, header types.PaymentHeader, requirements types.PaymentRequirements) (types.VerifyResult, error) {
	body, err := b.post(ctx, "/verify", header, requirements)
	if err != nil {
		return types.VerifyResult{Valid: false, Error: err.Error()}, nil
	}

	outcome, err := normalizeResponse(body)
	if err != nil {
		b.logger.Warn("unrecognized facilitator verify response", "body", string(body))
		return types.VerifyResult{Valid: false, Error: string(types.InvalidReasonUnexpectedResponse)}, nil
	}
	return outcome.verifyResult(), nil
}

// Settle calls POST {base}/settle and normalizes the response.
func (b *RemoteBackend) Settle(ctx context.Context, header types.PaymentHeader, requirements types.PaymentRequirements) (types.SettleResult, error) {
	body, err := b.post(ctx, "/settle", header, requirements)
	if err != nil {
		return types.SettleResult{Success: false, Error: err.Error()}, nil
	}

	outcome, err := normalizeResponse(body)
	if err != nil {
		b.logger.Warn("unrecognized facilitator settle response", "body", string(body))
		return types.SettleResult{Success: false, Error: string(types.ErrorReasonUnexpectedResponse)}, nil
	}
	return outcome.settleResult(), nil
}

func (b *RemoteBackend) post(ctx context.Context, path string, header types.PaymentHeader, requirements types.PaymentRequirements) ([]byte, error) {
	reqBody, err := json.Marshal(facilitatorRequest{
		X402Version:         types.X402Version1,
		Scheme:              header.Scheme,
		Network:             requirements.Network,
		PaymentHeader:       header,
		PaymentRequirements: requirements,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal facilitator request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create facilitator request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call facilitator %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read facilitator %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("facilitator %s returned status %d: %s", path, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
