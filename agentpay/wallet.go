// Package agentpay lets a module act as its own paying client: it custodies
// one agent wallet per module and signs outgoing payment authorizations so
// a remix module can pay its upstream.
package agentpay

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/modulo-ai/paygate/types"
	"github.com/modulo-ai/paygate/vault"
)

// ErrNotConfigured means no wallet database was configured. Agent payments
// cannot operate without one.
var ErrNotConfigured = errors.New("agentpay: wallet database is not configured")

// WalletStore persists agent wallets in postgres. Exactly one wallet exists
// per module; re-creating replaces the key and bumps key_version. Rows
// cascade with module deletion, never independently.
type WalletStore struct {
	db    *sql.DB
	vault *vault.Vault
}

// NewWalletStore creates a wallet store over an open database handle.
func NewWalletStore(db *sql.DB, v *vault.Vault) *WalletStore {
	return &WalletStore{db: db, vault: v}
}

// Create generates a fresh wallet for the module, encrypts the private key
// and upserts the row. The plaintext key never leaves this function.
func (s *WalletStore) Create(ctx context.Context, moduleID string) (types.AgentWallet, error) {
	if s.db == nil {
		return types.AgentWallet{}, ErrNotConfigured
	}

	address, privateKeyHex, err := s.vault.GenerateWallet()
	if err != nil {
		return types.AgentWallet{}, err
	}

	encrypted, err := s.vault.Encrypt([]byte(privateKeyHex))
	if err != nil {
		return types.AgentWallet{}, err
	}

	wallet := types.AgentWallet{
		ID:                  uuid.NewString(),
		ModuleID:            moduleID,
		WalletAddress:       address,
		EncryptedPrivateKey: encrypted,
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO agent_wallets (id, module_id, wallet_address, encrypted_private_key, key_version)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (module_id) DO UPDATE SET
			wallet_address = EXCLUDED.wallet_address,
			encrypted_private_key = EXCLUDED.encrypted_private_key,
			key_version = agent_wallets.key_version + 1
		RETURNING id, key_version`,
		wallet.ID, wallet.ModuleID, wallet.WalletAddress, wallet.EncryptedPrivateKey,
	).Scan(&wallet.ID, &wallet.KeyVersion)
	if err != nil {
		return types.AgentWallet{}, fmt.Errorf("agentpay: upsert wallet: %w", err)
	}

	return wallet, nil
}

// Get returns the module's wallet. A module without a wallet is a setup
// precondition failure, reported as vault.ErrKeyNotFound.
func (s *WalletStore) Get(ctx context.Context, moduleID string) (types.AgentWallet, error) {
	if s.db == nil {
		return types.AgentWallet{}, ErrNotConfigured
	}

	var wallet types.AgentWallet
	err := s.db.QueryRowContext(ctx, `
		SELECT id, module_id, wallet_address, encrypted_private_key, key_version
		FROM agent_wallets WHERE module_id = $1`,
		moduleID,
	).Scan(&wallet.ID, &wallet.ModuleID, &wallet.WalletAddress, &wallet.EncryptedPrivateKey, &wallet.KeyVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return types.AgentWallet{}, fmt.Errorf("%w: module %s", vault.ErrKeyNotFound, moduleID)
	}
	if err != nil {
		return types.AgentWallet{}, fmt.Errorf("agentpay: load wallet: %w", err)
	}
	return wallet, nil
}
