package entitlement

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modulo-ai/paygate/types"
)

const (
	sessionWallet = "0x8ba1f109551bD432803012645Ac136ddd64DBA72"
	sessionTxHash = "0x59A4D8152E6A1E33A3CA36B797DAC04DD1EAE61884CD9B9D98BDD533DDBBC0F2"
	sessionModule = "module-42"
)

// testClock backs both the session manager and the memory store so expiry
// can be driven deterministically.
type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestSessions(t *testing.T) (*Sessions, *MemoryStore, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Unix(1700000000, 0)}
	store := NewMemoryStore()
	store.now = clock.now
	s := NewSessions(store, "test-session-secret")
	s.now = clock.now
	return s, store, clock
}

func defaultPolicy() types.SessionPolicy {
	return types.SessionPolicy{Minutes: 60, MessageCredits: 3}
}

func TestIssueAndValidate(t *testing.T) {
	s, _, _ := newTestSessions(t)

	token, claim, err := s.Issue(context.Background(), sessionWallet, sessionModule, sessionTxHash, defaultPolicy())
	require.NoError(t, err)
	assert.Equal(t, sessionWallet, claim.SubjectWallet)
	assert.Equal(t, 3, claim.CreditsRemaining)
	assert.Equal(t, 3, claim.MaxCredits)
	assert.Equal(t, claim.IssuedAt+3600, claim.ExpiresAt)

	validated, valid, reason := s.Validate(context.Background(), token)
	assert.True(t, valid)
	assert.Empty(t, reason)
	assert.Equal(t, claim, validated)
}

func TestIssueRejectsBadPolicy(t *testing.T) {
	s, _, _ := newTestSessions(t)

	for _, policy := range []types.SessionPolicy{
		{Minutes: 0, MessageCredits: 3},
		{Minutes: 60, MessageCredits: 0},
		{Minutes: -1, MessageCredits: -1},
	} {
		_, _, err := s.Issue(context.Background(), sessionWallet, sessionModule, sessionTxHash, policy)
		assert.Error(t, err, "policy %+v should be rejected", policy)
	}
}

func TestIssueRequiresSecret(t *testing.T) {
	s := NewSessions(NewMemoryStore(), "")

	_, _, err := s.Issue(context.Background(), sessionWallet, sessionModule, sessionTxHash, defaultPolicy())
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	s, _, _ := newTestSessions(t)

	token, _, err := s.Issue(context.Background(), sessionWallet, sessionModule, sessionTxHash, defaultPolicy())
	require.NoError(t, err)

	t.Run("flipped payload byte", func(t *testing.T) {
		payload, sig, _ := strings.Cut(token, ".")
		tampered := payload[:len(payload)-1] + "A" + "." + sig
		if tampered == token {
			tampered = payload[:len(payload)-1] + "B" + "." + sig
		}
		_, valid, reason := s.Validate(context.Background(), tampered)
		assert.False(t, valid)
		assert.NotEmpty(t, reason)
	})

	t.Run("missing signature", func(t *testing.T) {
		payload, _, _ := strings.Cut(token, ".")
		_, valid, reason := s.Validate(context.Background(), payload)
		assert.False(t, valid)
		assert.Equal(t, types.SessionReasonMalformedToken, reason)
	})

	t.Run("signed with a different secret", func(t *testing.T) {
		other := NewSessions(NewMemoryStore(), "another-secret")
		_, valid, reason := other.Validate(context.Background(), token)
		assert.False(t, valid)
		assert.Equal(t, types.SessionReasonBadSignature, reason)
	})

	t.Run("garbage", func(t *testing.T) {
		_, valid, reason := s.Validate(context.Background(), "not-a-token")
		assert.False(t, valid)
		assert.Equal(t, types.SessionReasonMalformedToken, reason)
	})
}

func TestValidateExpiry(t *testing.T) {
	s, _, clock := newTestSessions(t)

	token, _, err := s.Issue(context.Background(), sessionWallet, sessionModule, sessionTxHash, defaultPolicy())
	require.NoError(t, err)

	clock.advance(61 * time.Minute)

	_, valid, reason := s.Validate(context.Background(), token)
	assert.False(t, valid)
	assert.Equal(t, types.SessionReasonExpired, reason)
}

func TestValidateRequiresLiveCounter(t *testing.T) {
	s, store, _ := newTestSessions(t)

	token, _, err := s.Issue(context.Background(), sessionWallet, sessionModule, sessionTxHash, defaultPolicy())
	require.NoError(t, err)

	// Deleting the counter simulates TTL expiry in the store: the claim is
	// still within its own expiry but must be rejected.
	key := sessionKey(sessionModule, sessionWallet, sessionTxHash)
	require.NoError(t, store.Delete(context.Background(), key))

	_, valid, reason := s.Validate(context.Background(), token)
	assert.False(t, valid)
	assert.Equal(t, types.SessionReasonNoCounter, reason)
}

func TestConsumeCreditUntilExhausted(t *testing.T) {
	s, _, _ := newTestSessions(t)
	ctx := context.Background()

	token, _, err := s.Issue(ctx, sessionWallet, sessionModule, sessionTxHash, defaultPolicy())
	require.NoError(t, err)

	for want := 2; want >= 0; want-- {
		remaining, err := s.ConsumeCredit(ctx, sessionModule, sessionWallet, sessionTxHash)
		require.NoError(t, err)
		assert.Equal(t, want, remaining)
	}

	// Over-consumption clamps at zero instead of going negative.
	remaining, err := s.ConsumeCredit(ctx, sessionModule, sessionWallet, sessionTxHash)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	_, valid, reason := s.Validate(ctx, token)
	assert.False(t, valid)
	assert.Equal(t, types.SessionReasonExhausted, reason)
}

func TestConsumeCreditMissingCounter(t *testing.T) {
	s, _, _ := newTestSessions(t)

	_, err := s.ConsumeCredit(context.Background(), sessionModule, sessionWallet, sessionTxHash)
	assert.Error(t, err)
}

func TestSessionKeyIsCaseInsensitive(t *testing.T) {
	s, _, _ := newTestSessions(t)
	ctx := context.Background()

	_, _, err := s.Issue(ctx, sessionWallet, sessionModule, sessionTxHash, defaultPolicy())
	require.NoError(t, err)

	// Wallet and tx hash casing must not split the counter.
	remaining, err := s.ConsumeCredit(ctx, sessionModule, strings.ToUpper(sessionWallet), strings.ToLower(sessionTxHash))
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)
}

func TestValidateReportsLiveCredits(t *testing.T) {
	s, _, _ := newTestSessions(t)
	ctx := context.Background()

	token, _, err := s.Issue(ctx, sessionWallet, sessionModule, sessionTxHash, defaultPolicy())
	require.NoError(t, err)

	_, err = s.ConsumeCredit(ctx, sessionModule, sessionWallet, sessionTxHash)
	require.NoError(t, err)

	// The claim inside the token still says 3; the store says 2. The live
	// counter wins.
	claim, valid, _ := s.Validate(ctx, token)
	assert.True(t, valid)
	assert.Equal(t, 2, claim.CreditsRemaining)
	assert.Equal(t, 3, claim.MaxCredits)
}

func TestMemoryStoreExpiry(t *testing.T) {
	clock := &testClock{t: time.Unix(1700000000, 0)}
	store := NewMemoryStore()
	store.now = clock.now
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", 5, time.Minute))

	value, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(5), value)

	clock.advance(2 * time.Minute)

	_, ok, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	// Decrement must not recreate an expired key.
	_, existed, err := store.Decrement(ctx, "k")
	require.NoError(t, err)
	assert.False(t, existed)
}

// failingStore returns an error from every operation.
type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) Exists(context.Context, string) (bool, error) { return false, errStoreDown }
func (failingStore) Set(context.Context, string, int64, time.Duration) error {
	return errStoreDown
}
func (failingStore) Get(context.Context, string) (int64, bool, error) {
	return 0, false, errStoreDown
}
func (failingStore) Decrement(context.Context, string) (int64, bool, error) {
	return 0, false, errStoreDown
}
func (failingStore) Delete(context.Context, string) error { return errStoreDown }

func TestIssueFailsWhenStoreDown(t *testing.T) {
	s := NewSessions(failingStore{}, "secret")

	_, _, err := s.Issue(context.Background(), sessionWallet, sessionModule, sessionTxHash, defaultPolicy())
	assert.ErrorIs(t, err, errStoreDown)
}
