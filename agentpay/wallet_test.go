package agentpay

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modulo-ai/paygate/vault"
)

func testVault(t *testing.T) *vault.Vault {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate master key: %v", err)
	}
	return vault.New(base64.StdEncoding.EncodeToString(key))
}

func TestWalletStoreCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	v := testVault(t)
	store := NewWalletStore(db, v)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO agent_wallets")).
		WithArgs(sqlmock.AnyArg(), "module-42", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "key_version"}).
			AddRow("11111111-1111-1111-1111-111111111111", 1))

	wallet, err := store.Create(context.Background(), "module-42")
	require.NoError(t, err)

	assert.Equal(t, "11111111-1111-1111-1111-111111111111", wallet.ID)
	assert.Equal(t, "module-42", wallet.ModuleID)
	assert.Equal(t, 1, wallet.KeyVersion)
	assert.Regexp(t, `^0x[0-9a-fA-F]{40}$`, wallet.WalletAddress)

	// The stored key must decrypt back to valid key material, and the
	// plaintext must never appear in the row.
	plaintext, err := v.Decrypt(wallet.EncryptedPrivateKey)
	require.NoError(t, err)
	assert.Len(t, plaintext, 64)
	assert.NotEqual(t, string(plaintext), wallet.EncryptedPrivateKey)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletStoreCreateKeyRotation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewWalletStore(db, testVault(t))

	// An existing row makes the upsert bump key_version instead of
	// inserting.
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO agent_wallets")).
		WithArgs(sqlmock.AnyArg(), "module-42", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "key_version"}).
			AddRow("11111111-1111-1111-1111-111111111111", 2))

	wallet, err := store.Create(context.Background(), "module-42")
	require.NoError(t, err)
	assert.Equal(t, 2, wallet.KeyVersion)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletStoreGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewWalletStore(db, testVault(t))

	mock.ExpectQuery(regexp.QuoteMeta("FROM agent_wallets WHERE module_id = $1")).
		WithArgs("module-42").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "module_id", "wallet_address", "encrypted_private_key", "key_version"}).
			AddRow("11111111-1111-1111-1111-111111111111", "module-42",
				"0x8ba1f109551bD432803012645Ac136ddd64DBA72", "blob", 3))

	wallet, err := store.Get(context.Background(), "module-42")
	require.NoError(t, err)
	assert.Equal(t, "0x8ba1f109551bD432803012645Ac136ddd64DBA72", wallet.WalletAddress)
	assert.Equal(t, 3, wallet.KeyVersion)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletStoreGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewWalletStore(db, testVault(t))

	mock.ExpectQuery(regexp.QuoteMeta("FROM agent_wallets WHERE module_id = $1")).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "module_id", "wallet_address", "encrypted_private_key", "key_version"}))

	_, err = store.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, vault.ErrKeyNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletStoreNilDatabase(t *testing.T) {
	// DATABASE_URL unset leaves the store without a handle; every
	// operation must fail with a configuration error, never dereference
	// the nil db.
	store := NewWalletStore(nil, testVault(t))

	_, err := store.Get(context.Background(), "module-42")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = store.Create(context.Background(), "module-42")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestWalletStoreGetQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewWalletStore(db, testVault(t))

	dbErr := errors.New("connection reset")
	mock.ExpectQuery(regexp.QuoteMeta("FROM agent_wallets WHERE module_id = $1")).
		WithArgs("module-42").
		WillReturnError(dbErr)

	_, err = store.Get(context.Background(), "module-42")
	assert.ErrorIs(t, err, dbErr)
	assert.NotErrorIs(t, err, vault.ErrKeyNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
