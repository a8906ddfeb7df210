package types

// PaymentRequirements describes what a client must pay to use a module.
// It is produced per request and never persisted. MaxAmountRequired is a
// decimal integer string in the asset's smallest unit.
type PaymentRequirements struct {
	Scheme            Scheme  `json:"scheme"`
	Network           Network `json:"network"`
	PayTo             string  `json:"payTo"`
	Asset             string  `json:"asset"`
	Description       string  `json:"description"`
	MimeType          string  `json:"mimeType"`
	MaxAmountRequired string  `json:"maxAmountRequired"`
	MaxTimeoutSeconds int64   `json:"maxTimeoutSeconds"`
}

// PaymentHeader is the decoded transport envelope carried by the client in
// a request header. The raw form is the JSON of this struct, base64-encoded.
type PaymentHeader struct {
	X402Version X402Version `json:"x402Version"`
	Scheme      Scheme      `json:"scheme"`
	Network     Network     `json:"network"`
	Payload     Payload     `json:"payload"`
}

// Payload is the signed transfer authorization inside a payment header.
type Payload struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  int64  `json:"validAfter"`
	ValidBefore int64  `json:"validBefore"`
	Nonce       string `json:"nonce"`
	Signature   string `json:"signature"`
	Asset       string `json:"asset"`
}

// VerifyResult is the normalized result of a payment verification.
type VerifyResult struct {
	Valid bool   `json:"valid"`
	Payer string `json:"payer,omitempty"`
	Value string `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

// SettleResult is the normalized result of a payment settlement.
type SettleResult struct {
	Success bool   `json:"success"`
	TxHash  string `json:"txHash,omitempty"`
	IsMock  bool   `json:"isMock,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TokenTransfer is a decoded on-chain transfer event. It is a read-only
// projection of chain state and is never persisted.
type TokenTransfer struct {
	TxHash         string  `json:"txHash"`
	Network        Network `json:"network"`
	AssetContract  string  `json:"assetContract"`
	BlockNumber    uint64  `json:"blockNumber"`
	BlockTimestamp int64   `json:"blockTimestamp"`
	LogIndex       uint    `json:"logIndex"`
	From           string  `json:"from"`
	To             string  `json:"to"`
	Value          string  `json:"value"`
}

// TxVerification is the outcome of reconciling a claimed payment against
// the chain. Exactly one status applies; the block and transfer fields are
// only set when Status is TxConfirmed.
type TxVerification struct {
	Status         TxStatus `json:"status"`
	BlockNumber    uint64   `json:"blockNumber,omitempty"`
	BlockTimestamp int64    `json:"blockTimestamp,omitempty"`
	From           string   `json:"from,omitempty"`
	To             string   `json:"to,omitempty"`
	Value          string   `json:"value,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// SessionPolicy is the seller-configured shape of a session pass.
type SessionPolicy struct {
	Minutes        int `json:"minutes"`
	MessageCredits int `json:"messageCredits"`
}

// SessionClaim is the signed portion of a session pass. CreditsRemaining is
// an advisory snapshot; the live counter in the entitlement store is
// authoritative at validation time.
type SessionClaim struct {
	SubjectWallet    string `json:"subjectWallet"`
	ModuleID         string `json:"moduleId"`
	PaymentTxHash    string `json:"paymentTxHash"`
	CreditsRemaining int    `json:"creditsRemaining"`
	MaxCredits       int    `json:"maxCredits"`
	IssuedAt         int64  `json:"issuedAt"`
	ExpiresAt        int64  `json:"expiresAt"`
}

// AgentWallet is a server-custodied wallet owned by exactly one module.
// Re-creating the wallet for a module replaces the key and bumps KeyVersion.
type AgentWallet struct {
	ID                  string `json:"id"`
	ModuleID            string `json:"moduleId"`
	WalletAddress       string `json:"walletAddress"`
	EncryptedPrivateKey string `json:"-"`
	KeyVersion          int    `json:"keyVersion"`
}
