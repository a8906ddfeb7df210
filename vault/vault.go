// Package vault custodies per-module private keys. Keys are encrypted at
// rest with AES-256-GCM under a single master key supplied via
// configuration, and are only ever held in memory transiently. Callers must
// not log decrypted key material.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	nonceSize = 12
	tagSize   = 16
	keySize   = 32
)

var (
	// ErrConfigMissing means no master key was configured. Dependent
	// features must not proceed.
	ErrConfigMissing = errors.New("vault: master key is not configured")

	// ErrInvalidMasterKey means the configured master key is not exactly
	// 32 bytes after base64 decoding.
	ErrInvalidMasterKey = errors.New("vault: master key must be exactly 32 bytes")

	// ErrDecryptionFailed means the blob could not be authenticated: wrong
	// master key or corrupted ciphertext. Not retryable.
	ErrDecryptionFailed = errors.New("vault: decryption failed")

	// ErrKeyNotFound means no wallet exists for the requested module.
	ErrKeyNotFound = errors.New("vault: no key for module")
)

// Vault encrypts, decrypts and signs with custodied keys. The master key is
// validated lazily on first use so a misconfigured deployment can still
// serve features that do not touch the vault.
type Vault struct {
	masterKeyB64 string

	once      sync.Once
	masterKey []byte
	keyErr    error
}

// New creates a Vault from the base64-encoded master key. An empty or
// malformed key is not rejected here; it surfaces on first use.
func New(masterKeyB64 string) *Vault {
	return &Vault{masterKeyB64: masterKeyB64}
}

func (v *Vault) key() ([]byte, error) {
	v.once.Do(func() {
		if v.masterKeyB64 == "" {
			v.keyErr = ErrConfigMissing
			return
		}
		decoded, err := base64.StdEncoding.DecodeString(v.masterKeyB64)
		if err != nil {
			v.keyErr = fmt.Errorf("%w: %v", ErrInvalidMasterKey, err)
			return
		}
		if len(decoded) != keySize {
			v.keyErr = fmt.Errorf("%w: got %d", ErrInvalidMasterKey, len(decoded))
			return
		}
		v.masterKey = decoded
	})
	return v.masterKey, v.keyErr
}

// Encrypt seals a plaintext private key into a self-contained blob laid out
// as iv(12) || authTag(16) || ciphertext, base64-encoded. A fresh random
// nonce is drawn per call.
func (v *Vault) Encrypt(plaintext []byte) (string, error) {
	masterKey, err := v.key()
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return "", fmt.Errorf("vault: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("vault: create gcm: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault: read nonce: %w", err)
	}

	// Seal appends the tag after the ciphertext; the stored layout keeps
	// the tag between the iv and the ciphertext.
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	blob := make([]byte, 0, nonceSize+tagSize+len(ciphertext))
	blob = append(blob, nonce...)
	blob = append(blob, tag...)
	blob = append(blob, ciphertext...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt opens a blob produced by Encrypt and returns the plaintext key.
func (v *Vault) Decrypt(blobB64 string) ([]byte, error) {
	masterKey, err := v.key()
	if err != nil {
		return nil, err
	}

	blob, err := base64.StdEncoding.DecodeString(blobB64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64", ErrDecryptionFailed)
	}
	if len(blob) < nonceSize+tagSize {
		return nil, fmt.Errorf("%w: blob too short", ErrDecryptionFailed)
	}

	nonce := blob[:nonceSize]
	tag := blob[nonceSize : nonceSize+tagSize]
	ciphertext := blob[nonceSize+tagSize:]

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("vault: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: create gcm: %w", err)
	}

	sealed := make([]byte, 0, len(ciphertext)+tagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// GenerateWallet creates a fresh secp256k1 keypair and returns the
// checksummed address and the hex-encoded private key.
func (v *Vault) GenerateWallet() (address string, privateKeyHex string, err error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return "", "", fmt.Errorf("vault: generate key: %w", err)
	}
	address = crypto.PubkeyToAddress(privateKey.PublicKey).Hex()
	privateKeyHex = hex.EncodeToString(crypto.FromECDSA(privateKey))
	return address, privateKeyHex, nil
}

// AuthorizationParams describe a TransferWithAuthorization message to sign.
// The domain binds the signature to one chain and one verifying contract.
type AuthorizationParams struct {
	From         string
	To           string
	Value        *big.Int
	ValidAfter   int64
	ValidBefore  int64
	Nonce        [32]byte
	ChainID      int64
	Asset        string
	AssetName    string
	AssetVersion string
}

// SignTransferAuthorization signs an EIP-712 TransferWithAuthorization
// message with the given hex private key and returns the 65-byte signature
// hex-encoded with a 27/28 V value, the form on-chain verifiers expect.
func (v *Vault) SignTransferAuthorization(privateKeyHex string, p AuthorizationParams) (string, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("vault: parse private key: %w", err)
	}

	sighash, err := authorizationDigest(p)
	if err != nil {
		return "", err
	}

	signature, err := crypto.Sign(sighash, privateKey)
	if err != nil {
		return "", fmt.Errorf("vault: sign: %w", err)
	}

	// Convert the V value (0/1 → 27/28)
	if signature[64] == 0 || signature[64] == 1 {
		signature[64] += 27
	}

	return "0x" + hex.EncodeToString(signature), nil
}

// authorizationDigest computes the EIP-712 digest for the authorization.
func authorizationDigest(p AuthorizationParams) ([]byte, error) {
	bigChainID := big.NewInt(p.ChainID)
	hexChainID := math.HexOrDecimal256(*bigChainID)

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              p.AssetName,
			Version:           p.AssetVersion,
			ChainId:           &hexChainID,
			VerifyingContract: p.Asset,
		},
		Message: apitypes.TypedDataMessage{
			"from":        p.From,
			"to":          p.To,
			"value":       p.Value,
			"validAfter":  big.NewInt(p.ValidAfter),
			"validBefore": big.NewInt(p.ValidBefore),
			"nonce":       p.Nonce,
		},
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("vault: hash domain: %w", err)
	}
	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("vault: hash message: %w", err)
	}

	rawData := append(append([]byte("\x19\x01"), domainSeparator...), typedDataHash...)
	return crypto.Keccak256(rawData), nil
}

// RecoverAuthorizationSigner recovers the address that signed a
// TransferWithAuthorization message. Accepts both 0/1 and 27/28 V values.
func RecoverAuthorizationSigner(signatureHex string, p AuthorizationParams) (string, error) {
	sighash, err := authorizationDigest(p)
	if err != nil {
		return "", err
	}

	signature, err := hex.DecodeString(strings.TrimPrefix(signatureHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("vault: parse signature: %w", err)
	}
	if len(signature) != 65 {
		return "", fmt.Errorf("vault: signature must be exactly 65 bytes, got %d", len(signature))
	}
	if signature[64] == 27 || signature[64] == 28 {
		signature[64] -= 27
	}

	pubkey, err := crypto.Ecrecover(sighash, signature)
	if err != nil {
		return "", fmt.Errorf("vault: recover public key: %w", err)
	}
	recoveredPubkey, err := crypto.UnmarshalPubkey(pubkey)
	if err != nil {
		return "", fmt.Errorf("vault: unmarshal public key: %w", err)
	}
	return crypto.PubkeyToAddress(*recoveredPubkey).Hex(), nil
}
