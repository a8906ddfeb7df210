package vault

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"math/big"
	"regexp"
	"strings"
	"testing"
)

func testMasterKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate master key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := New(testMasterKey(t))

	plaintexts := [][]byte{
		[]byte("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"),
		[]byte(""),
		bytes.Repeat([]byte{0xff}, 1024),
	}

	for _, plaintext := range plaintexts {
		blob, err := v.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}

		decrypted, err := v.Decrypt(blob)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if !bytes.Equal(decrypted, plaintext) {
			t.Errorf("round trip mismatch: got %q want %q", decrypted, plaintext)
		}
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	v := New(testMasterKey(t))

	first, err := v.Encrypt([]byte("same plaintext"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	second, err := v.Encrypt([]byte("same plaintext"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if first == second {
		t.Error("two encryptions of the same plaintext produced identical blobs")
	}
}

func TestBlobLayout(t *testing.T) {
	v := New(testMasterKey(t))

	blob, err := v.Encrypt([]byte("abc"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		t.Fatalf("blob is not base64: %v", err)
	}
	// iv(12) || tag(16) || ciphertext(3)
	if len(raw) != 12+16+3 {
		t.Errorf("blob length = %d, want %d", len(raw), 12+16+3)
	}
}

func TestDecryptWithWrongMasterKey(t *testing.T) {
	blob, err := New(testMasterKey(t)).Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	_, err = New(testMasterKey(t)).Decrypt(blob)
	if !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("got %v, want ErrDecryptionFailed", err)
	}
}

func TestDecryptCorruptedBlob(t *testing.T) {
	v := New(testMasterKey(t))

	blob, err := v.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	raw, _ := base64.StdEncoding.DecodeString(blob)
	raw[len(raw)-1] ^= 0x01
	corrupted := base64.StdEncoding.EncodeToString(raw)

	if _, err := v.Decrypt(corrupted); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("got %v, want ErrDecryptionFailed", err)
	}
}

func TestMasterKeyValidation(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		_, err := New("").Encrypt([]byte("x"))
		if !errors.Is(err, ErrConfigMissing) {
			t.Errorf("got %v, want ErrConfigMissing", err)
		}
	})

	t.Run("wrong length", func(t *testing.T) {
		short := base64.StdEncoding.EncodeToString([]byte("too short"))
		_, err := New(short).Encrypt([]byte("x"))
		if !errors.Is(err, ErrInvalidMasterKey) {
			t.Errorf("got %v, want ErrInvalidMasterKey", err)
		}
	})

	t.Run("not base64", func(t *testing.T) {
		_, err := New("!!!not-base64!!!").Encrypt([]byte("x"))
		if !errors.Is(err, ErrInvalidMasterKey) {
			t.Errorf("got %v, want ErrInvalidMasterKey", err)
		}
	})
}

func TestGenerateWallet(t *testing.T) {
	v := New(testMasterKey(t))

	address, privateKeyHex, err := v.GenerateWallet()
	if err != nil {
		t.Fatalf("generate wallet: %v", err)
	}

	if !regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`).MatchString(address) {
		t.Errorf("address %q is not a checksummed hex address", address)
	}
	if len(privateKeyHex) != 64 {
		t.Errorf("private key hex length = %d, want 64", len(privateKeyHex))
	}

	other, _, err := v.GenerateWallet()
	if err != nil {
		t.Fatalf("generate wallet: %v", err)
	}
	if other == address {
		t.Error("two generated wallets share an address")
	}
}

func TestSignAndRecoverAuthorization(t *testing.T) {
	v := New(testMasterKey(t))

	address, privateKeyHex, err := v.GenerateWallet()
	if err != nil {
		t.Fatalf("generate wallet: %v", err)
	}

	params := AuthorizationParams{
		From:         address,
		To:           "0x8ba1f109551bD432803012645Ac136ddd64DBA72",
		Value:        big.NewInt(10000),
		ValidAfter:   1700000000,
		ValidBefore:  1700000600,
		Nonce:        [32]byte{1, 2, 3},
		ChainID:      84532,
		Asset:        "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		AssetName:    "USD Coin",
		AssetVersion: "2",
	}

	signature, err := v.SignTransferAuthorization(privateKeyHex, params)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !strings.HasPrefix(signature, "0x") || len(signature) != 2+130 {
		t.Fatalf("signature %q is not 65 hex bytes", signature)
	}

	recovered, err := RecoverAuthorizationSigner(signature, params)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered != address {
		t.Errorf("recovered %s, want %s", recovered, address)
	}

	t.Run("different chain id recovers a different signer", func(t *testing.T) {
		tampered := params
		tampered.ChainID = 1
		recovered, err := RecoverAuthorizationSigner(signature, tampered)
		if err != nil {
			t.Fatalf("recover: %v", err)
		}
		if recovered == address {
			t.Error("signature verified against a different chain id")
		}
	})
}
