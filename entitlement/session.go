package entitlement

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modulo-ai/paygate/types"
)

// ErrNoSecret means session passes cannot be issued or validated because no
// signing secret was configured.
var ErrNoSecret = errors.New("entitlement: session secret is not configured")

// Sessions issues and validates session passes. The signed claim is the
// capability handed to the client; the counter in the store is the
// authoritative mutable state. A pass whose counter has expired is invalid
// even if the claim's own expiry has not passed.
type Sessions struct {
	store  CounterStore
	secret []byte
	now    func() time.Time
}

// NewSessions creates a session-pass manager. The secret signs claims; an
// empty secret disables issuance and validation.
func NewSessions(store CounterStore, secret string) *Sessions {
	return &Sessions{
		store:  store,
		secret: []byte(secret),
		now:    time.Now,
	}
}

func sessionKey(moduleID, wallet, paymentTxHash string) string {
	return fmt.Sprintf("session:%s:%s:%s", moduleID, strings.ToLower(wallet), strings.ToLower(paymentTxHash))
}

// Issue creates a signed session pass and its credit counter. The counter's
// TTL matches the pass duration, so both expire together or the counter
// disappears first.
func (s *Sessions) Issue(ctx context.Context, wallet, moduleID, paymentTxHash string, policy types.SessionPolicy) (string, types.SessionClaim, error) {
	if len(s.secret) == 0 {
		return "", types.SessionClaim{}, ErrNoSecret
	}
	if policy.Minutes <= 0 || policy.MessageCredits <= 0 {
		return "", types.SessionClaim{}, fmt.Errorf("entitlement: invalid session policy %+v", policy)
	}

	now := s.now()
	duration := time.Duration(policy.Minutes) * time.Minute
	claim := types.SessionClaim{
		SubjectWallet:    wallet,
		ModuleID:         moduleID,
		PaymentTxHash:    paymentTxHash,
		CreditsRemaining: policy.MessageCredits,
		MaxCredits:       policy.MessageCredits,
		IssuedAt:         now.Unix(),
		ExpiresAt:        now.Add(duration).Unix(),
	}

	key := sessionKey(moduleID, wallet, paymentTxHash)
	if err := s.store.Set(ctx, key, int64(policy.MessageCredits), duration); err != nil {
		return "", types.SessionClaim{}, fmt.Errorf("entitlement: initialize credit counter: %w", err)
	}

	token, err := s.signClaim(claim)
	if err != nil {
		return "", types.SessionClaim{}, err
	}
	return token, claim, nil
}

// Validate checks the token's signature and expiry, then reads the live
// counter. The claim's stated credits are advisory; the returned claim
// carries the counter's clamped value.
func (s *Sessions) Validate(ctx context.Context, token string) (types.SessionClaim, bool, types.SessionInvalidReason) {
	if len(s.secret) == 0 {
		return types.SessionClaim{}, false, types.SessionReasonBadSignature
	}

	claim, err := s.parseClaim(token)
	if err != nil {
		return types.SessionClaim{}, false, types.SessionReasonMalformedToken
	}
	if !s.verifySignature(token) {
		return types.SessionClaim{}, false, types.SessionReasonBadSignature
	}
	if s.now().Unix() >= claim.ExpiresAt {
		return claim, false, types.SessionReasonExpired
	}

	key := sessionKey(claim.ModuleID, claim.SubjectWallet, claim.PaymentTxHash)
	credits, exists, err := s.store.Get(ctx, key)
	if err != nil || !exists {
		// Counter store unavailable or TTL-expired: the pass is invalid
		// regardless of the claim's own expiry.
		return claim, false, types.SessionReasonNoCounter
	}
	if credits <= 0 {
		claim.CreditsRemaining = 0
		return claim, false, types.SessionReasonExhausted
	}

	claim.CreditsRemaining = int(credits)
	return claim, true, ""
}

// ConsumeCredit atomically decrements the session's counter and returns the
// post-decrement value floored at zero. The counter itself may go negative
// internally; callers only ever see the clamped value.
func (s *Sessions) ConsumeCredit(ctx context.Context, moduleID, wallet, paymentTxHash string) (int, error) {
	key := sessionKey(moduleID, wallet, paymentTxHash)
	remaining, exists, err := s.store.Decrement(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("entitlement: decrement credits: %w", err)
	}
	if !exists {
		return 0, fmt.Errorf("entitlement: session counter expired or missing")
	}
	if remaining < 0 {
		remaining = 0
	}
	return int(remaining), nil
}

func (s *Sessions) signClaim(claim types.SessionClaim) (string, error) {
	payload, err := json.Marshal(claim)
	if err != nil {
		return "", fmt.Errorf("entitlement: marshal claim: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(encoded))
	signature := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return encoded + "." + signature, nil
}

func (s *Sessions) parseClaim(token string) (types.SessionClaim, error) {
	encoded, _, ok := strings.Cut(token, ".")
	if !ok {
		return types.SessionClaim{}, fmt.Errorf("entitlement: token has no signature part")
	}
	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return types.SessionClaim{}, fmt.Errorf("entitlement: token payload is not base64url")
	}
	var claim types.SessionClaim
	if err := json.Unmarshal(payload, &claim); err != nil {
		return types.SessionClaim{}, fmt.Errorf("entitlement: token payload is not a claim")
	}
	return claim, nil
}

func (s *Sessions) verifySignature(token string) bool {
	encoded, signatureB64, ok := strings.Cut(token, ".")
	if !ok {
		return false
	}
	signature, err := base64.RawURLEncoding.DecodeString(signatureB64)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(encoded))
	return hmac.Equal(signature, mac.Sum(nil))
}
