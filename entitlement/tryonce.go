package entitlement

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
)

const (
	// tryOnceTTL is the trailing window within which a prior free use
	// blocks another one.
	tryOnceTTL = 24 * time.Hour

	// previewMaxChars is the visible length of a free-trial reply.
	previewMaxChars = 400

	previewSuffix = "… [free preview]"
)

// TryOnce tracks the one-time free allowance per (module, identity).
type TryOnce struct {
	store CounterStore
}

// NewTryOnce creates a try-once tracker on the given store.
func NewTryOnce(store CounterStore) *TryOnce {
	return &TryOnce{store: store}
}

func tryOnceKey(moduleID, kind, identity string) string {
	return fmt.Sprintf("tryonce:%s:%s:%s", moduleID, kind, strings.ToLower(identity))
}

// CheckEligible reports whether the identity still has its free use for the
// module. It never returns an error: store failures deny the free trial
// with a reason, since granting on outage would make the quota unenforceable.
func (t *TryOnce) CheckEligible(ctx context.Context, moduleID, wallet, ip string) (bool, string) {
	if wallet == "" && ip == "" {
		return false, "no identity provided"
	}

	if wallet != "" {
		used, err := t.store.Exists(ctx, tryOnceKey(moduleID, "wallet", wallet))
		if err != nil {
			return false, "entitlement store unavailable"
		}
		if used {
			return false, "free trial already used"
		}
	}
	if ip != "" {
		used, err := t.store.Exists(ctx, tryOnceKey(moduleID, "ip", ip))
		if err != nil {
			return false, "entitlement store unavailable"
		}
		if used {
			return false, "free trial already used"
		}
	}
	return true, ""
}

// RecordUsage marks the free use. Both identities are written when
// available, so switching between wallet and IP cannot reset the quota.
func (t *TryOnce) RecordUsage(ctx context.Context, moduleID, wallet, ip string) error {
	if wallet == "" && ip == "" {
		return fmt.Errorf("no identity to record")
	}
	now := time.Now().Unix()
	if wallet != "" {
		if err := t.store.Set(ctx, tryOnceKey(moduleID, "wallet", wallet), now, tryOnceTTL); err != nil {
			return fmt.Errorf("record wallet usage: %w", err)
		}
	}
	if ip != "" {
		if err := t.store.Set(ctx, tryOnceKey(moduleID, "ip", ip), now, tryOnceTTL); err != nil {
			return fmt.Errorf("record ip usage: %w", err)
		}
	}
	return nil
}

// TruncatePreview cuts a reply at a word boundary near previewMaxChars and
// appends the preview suffix, so trial output is visibly different from
// paid output. Short replies pass through unchanged.
func TruncatePreview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewMaxChars {
		return text
	}

	cut := previewMaxChars
	for cut > 0 && !unicode.IsSpace(runes[cut]) {
		cut--
	}
	if cut == 0 {
		cut = previewMaxChars
	}

	return strings.TrimRight(string(runes[:cut]), " \t\n") + previewSuffix
}
