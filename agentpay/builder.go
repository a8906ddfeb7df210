package agentpay

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/modulo-ai/paygate/config"
	"github.com/modulo-ai/paygate/facilitator"
	"github.com/modulo-ai/paygate/types"
	"github.com/modulo-ai/paygate/utils"
	"github.com/modulo-ai/paygate/vault"
)

// Authorization validity window for agent payments. Short-lived on purpose:
// the header is built immediately before submission.
const (
	validitySlack  = time.Minute
	validityWindow = 5 * time.Minute
)

// WalletReader is the slice of WalletStore the builder needs.
type WalletReader interface {
	Get(ctx context.Context, moduleID string) (types.AgentWallet, error)
}

// Builder constructs transport-encoded payment headers signed with a
// module's agent wallet. The output is the same envelope the facilitator
// adapter accepts from end-user wallets, so the boundary can feed it
// straight into verify/settle.
type Builder struct {
	wallets      WalletReader
	vault        *vault.Vault
	cfg          *config.Config
	assetName    string
	assetVersion string
}

// NewBuilder creates an agent payment builder.
func NewBuilder(wallets WalletReader, v *vault.Vault, cfg *config.Config) *Builder {
	return &Builder{
		wallets:      wallets,
		vault:        v,
		cfg:          cfg,
		assetName:    cfg.DefaultAssetName,
		assetVersion: cfg.DefaultAssetVer,
	}
}

// PayUpstream builds and signs a payment authorization from the module's
// agent wallet to payTo, and returns it transport-encoded.
func (b *Builder) PayUpstream(ctx context.Context, moduleID, payTo, value string, network types.Network, asset string) (string, error) {
	wallet, err := b.wallets.Get(ctx, moduleID)
	if err != nil {
		return "", fmt.Errorf("no agent wallet for module %s: %w", moduleID, err)
	}

	nc, ok := b.cfg.Network(network)
	if !ok {
		return "", fmt.Errorf("network %q is not configured", network)
	}
	to, err := utils.NormalizeAddress(payTo)
	if err != nil {
		return "", fmt.Errorf("payTo is not an address: %q", payTo)
	}
	assetChecksummed, err := utils.NormalizeAddress(asset)
	if err != nil {
		return "", fmt.Errorf("asset is not an address: %q", asset)
	}

	amount := new(big.Int)
	if _, ok := amount.SetString(value, 10); !ok || amount.Sign() < 0 {
		return "", fmt.Errorf("value is not a non-negative decimal integer: %q", value)
	}

	privateKey, err := b.vault.Decrypt(wallet.EncryptedPrivateKey)
	if err != nil {
		return "", err
	}

	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	now := time.Now()
	validAfter := now.Add(-validitySlack).Unix()
	validBefore := now.Add(validityWindow).Unix()

	from := wallet.WalletAddress

	signature, err := b.vault.SignTransferAuthorization(string(privateKey), vault.AuthorizationParams{
		From:         from,
		To:           to,
		Value:        amount,
		ValidAfter:   validAfter,
		ValidBefore:  validBefore,
		Nonce:        nonce,
		ChainID:      nc.ChainID,
		Asset:        assetChecksummed,
		AssetName:    b.assetName,
		AssetVersion: b.assetVersion,
	})
	if err != nil {
		return "", err
	}

	header := types.PaymentHeader{
		X402Version: types.X402Version1,
		Scheme:      types.SchemeExact,
		Network:     network,
		Payload: types.Payload{
			From:        from,
			To:          to,
			Value:       amount.String(),
			ValidAfter:  validAfter,
			ValidBefore: validBefore,
			Nonce:       "0x" + hex.EncodeToString(nonce[:]),
			Signature:   signature,
			Asset:       assetChecksummed,
		},
	}

	return facilitator.EncodeHeader(header)
}
