// Package reconcile independently confirms claimed payments against the
// chain. It is the fallback and cross-check for the facilitator: everything
// here is read-only and idempotent, so two instances verifying the same
// transaction concurrently is safe.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/modulo-ai/paygate/clients"
	"github.com/modulo-ai/paygate/config"
	"github.com/modulo-ai/paygate/types"
)

// transferTopic is the keccak hash of Transfer(address,address,uint256).
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Status-dependent cache TTLs. A confirmed transfer is immutable once
// mined; a missing receipt may still be propagating.
const (
	confirmedTTL = 24 * time.Hour
	notFoundTTL  = 20 * time.Second
	defaultTTL   = 3 * time.Minute
)

// Service verifies individual transfers and enumerates historical
// transfers for a set of payee addresses.
type Service struct {
	cfg    *config.Config
	logger *slog.Logger

	verifyCache *ttlCache[types.TxVerification]

	// Block timestamps are immutable once mined and cached indefinitely.
	tsMu       sync.Mutex
	timestamps map[string]int64

	clientMu   sync.Mutex
	rpcClients map[types.Network]clients.EthClientInterface
}

// New creates a reconciler service.
func New(cfg *config.Config, logger *slog.Logger) *Service {
	return &Service{
		cfg:         cfg,
		logger:      logger,
		verifyCache: newTTLCache[types.TxVerification](4096),
		timestamps:  make(map[string]int64),
		rpcClients:  make(map[types.Network]clients.EthClientInterface),
	}
}

// client returns the RPC client for a network, dialing once per process.
func (s *Service) client(network types.Network) (clients.EthClientInterface, error) {
	nc, ok := s.cfg.Network(network)
	if !ok {
		return nil, fmt.Errorf("no RPC endpoint configured for network %q", network)
	}

	s.clientMu.Lock()
	defer s.clientMu.Unlock()

	if client, ok := s.rpcClients[network]; ok {
		return client, nil
	}
	client, err := clients.NewEthClient(nc.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial RPC client for %q: %w", network, err)
	}
	s.rpcClients[network] = client
	return client, nil
}

// VerifyParams are the expected transfer parameters for VerifyTransfer.
// ExpectedFrom is optional; when empty any sender is accepted.
type VerifyParams struct {
	TxHash        string
	Network       types.Network
	AssetContract string
	ExpectedTo    string
	ExpectedValue string
	ExpectedFrom  string
}

// VerifyTransfer confirms that the transaction identified by TxHash emitted
// a transfer matching the expected parameters. Outcomes are cached with a
// status-dependent TTL so repeated polling cannot hammer the RPC endpoint.
func (s *Service) VerifyTransfer(ctx context.Context, p VerifyParams) types.TxVerification {
	cacheKey := strings.Join([]string{
		string(p.Network), p.AssetContract, p.TxHash,
		p.ExpectedTo, p.ExpectedValue, p.ExpectedFrom,
	}, "|")

	if cached, ok := s.verifyCache.get(cacheKey); ok {
		return cached
	}

	result := s.verifyTransfer(ctx, p)
	s.verifyCache.set(cacheKey, result, cacheTTLFor(result.Status))
	return result
}

func cacheTTLFor(status types.TxStatus) time.Duration {
	switch status {
	case types.TxConfirmed:
		return confirmedTTL
	case types.TxNotFound:
		return notFoundTTL
	default:
		return defaultTTL
	}
}

func (s *Service) verifyTransfer(ctx context.Context, p VerifyParams) types.TxVerification {

	// Unsupported network is a terminal result, not an error, so callers
	// can present it uniformly.
	if _, ok := s.cfg.Network(p.Network); !ok {
		return types.TxVerification{Status: types.TxUnsupportedNetwork}
	}

	expectedValue := new(big.Int)
	if _, ok := expectedValue.SetString(p.ExpectedValue, 10); !ok {
		return types.TxVerification{
			Status: types.TxError,
			Error:  fmt.Sprintf("expected value is not a decimal integer: %q", p.ExpectedValue),
		}
	}

	if !common.IsHexAddress(p.ExpectedTo) {
		return types.TxVerification{
			Status: types.TxError,
			Error:  fmt.Sprintf("expected to is not an address: %q", p.ExpectedTo),
		}
	}
	if p.ExpectedFrom != "" && !common.IsHexAddress(p.ExpectedFrom) {
		return types.TxVerification{
			Status: types.TxError,
			Error:  fmt.Sprintf("expected from is not an address: %q", p.ExpectedFrom),
		}
	}
	if !common.IsHexAddress(p.AssetContract) {
		return types.TxVerification{
			Status: types.TxError,
			Error:  fmt.Sprintf("asset contract is not an address: %q", p.AssetContract),
		}
	}

	client, err := s.client(p.Network)
	if err != nil {
		return types.TxVerification{Status: types.TxError, Error: err.Error()}
	}

	receipt, err := client.TransactionReceipt(ctx, common.HexToHash(p.TxHash))
	if errors.Is(err, ethereum.NotFound) {
		// The transaction may still be propagating; the short cache TTL
		// lets the caller retry soon.
		return types.TxVerification{Status: types.TxNotFound}
	}
	if err != nil {
		return types.TxVerification{
			Status: types.TxError,
			Error:  fmt.Sprintf("fetch receipt: %v", err),
		}
	}

	if receipt.Status == ethtypes.ReceiptStatusFailed {
		return types.TxVerification{Status: types.TxReverted}
	}

	assetAddress := common.HexToAddress(p.AssetContract)
	expectedTo := common.HexToAddress(p.ExpectedTo)

	for _, log := range receipt.Logs {
		if log.Address != assetAddress {
			continue
		}
		transfer, ok := decodeTransferLog(log)
		if !ok {
			continue
		}
		if transfer.to != expectedTo {
			continue
		}
		if transfer.value.Cmp(expectedValue) != 0 {
			continue
		}
		if p.ExpectedFrom != "" && transfer.from != common.HexToAddress(p.ExpectedFrom) {
			continue
		}

		timestamp, err := s.blockTimestamp(ctx, client, p.Network, receipt.BlockNumber.Uint64())
		if err != nil {
			return types.TxVerification{
				Status: types.TxError,
				Error:  fmt.Sprintf("fetch block timestamp: %v", err),
			}
		}

		return types.TxVerification{
			Status:         types.TxConfirmed,
			BlockNumber:    receipt.BlockNumber.Uint64(),
			BlockTimestamp: timestamp,
			From:           transfer.from.Hex(),
			To:             transfer.to.Hex(),
			Value:          transfer.value.String(),
		}
	}

	return types.TxVerification{Status: types.TxMismatch}
}

type decodedTransfer struct {
	from  common.Address
	to    common.Address
	value *big.Int
}

// decodeTransferLog decodes an ERC-20 Transfer event log. Indexed from/to
// live in topics 1 and 2; the value is the 32-byte data word.
func decodeTransferLog(log *ethtypes.Log) (decodedTransfer, bool) {
	if len(log.Topics) != 3 || log.Topics[0] != transferTopic {
		return decodedTransfer{}, false
	}
	if len(log.Data) != 32 {
		return decodedTransfer{}, false
	}
	return decodedTransfer{
		from:  common.BytesToAddress(log.Topics[1].Bytes()),
		to:    common.BytesToAddress(log.Topics[2].Bytes()),
		value: new(big.Int).SetBytes(log.Data),
	}, true
}

// blockTimestamp returns a block's timestamp, fetching it at most once per
// process.
func (s *Service) blockTimestamp(ctx context.Context, client clients.EthClientInterface, network types.Network, blockNumber uint64) (int64, error) {
	key := fmt.Sprintf("%s|%d", network, blockNumber)

	s.tsMu.Lock()
	if ts, ok := s.timestamps[key]; ok {
		s.tsMu.Unlock()
		return ts, nil
	}
	s.tsMu.Unlock()

	header, err := client.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return 0, err
	}
	ts := int64(header.Time)

	s.tsMu.Lock()
	s.timestamps[key] = ts
	s.tsMu.Unlock()

	return ts, nil
}
