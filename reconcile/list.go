package reconcile

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"

	"github.com/modulo-ai/paygate/clients"
	"github.com/modulo-ai/paygate/types"
)

const (
	// initialChunkSize is the starting block range per eth_getLogs query.
	// Most RPC providers cap the range; on any query failure the chunk is
	// halved and retried from the same cursor.
	initialChunkSize = uint64(10_000)

	// minChunkSize is the floor below which a failing scan gives up and
	// surfaces the RPC error instead of looping indefinitely.
	minChunkSize = uint64(500)

	// timestampWorkers bounds concurrent block-timestamp lookups during
	// enrichment so the scan cannot cause a request storm.
	timestampWorkers = 4
)

// ListTransfersTo enumerates transfers of the asset to any of the given
// addresses since the target time, newest first.
func (s *Service) ListTransfersTo(ctx context.Context, network types.Network, assetContract string, toAddresses []string, since time.Time) ([]types.TokenTransfer, error) {
	if !common.IsHexAddress(assetContract) {
		return nil, fmt.Errorf("asset contract is not an address: %q", assetContract)
	}

	client, err := s.client(network)
	if err != nil {
		return nil, err
	}

	head, err := client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch head block: %w", err)
	}

	startBlock, err := s.earliestBlockAtOrAfter(ctx, client, network, head, since.Unix())
	if err != nil {
		return nil, err
	}
	if startBlock > head {
		return nil, nil
	}

	logs, err := s.scanLogs(ctx, client, assetContract, toAddresses, startBlock, head)
	if err != nil {
		return nil, err
	}

	transfers, err := s.enrichTimestamps(ctx, client, network, assetContract, logs)
	if err != nil {
		return nil, err
	}

	sort.Slice(transfers, func(i, j int) bool {
		if transfers[i].BlockTimestamp != transfers[j].BlockTimestamp {
			return transfers[i].BlockTimestamp > transfers[j].BlockTimestamp
		}
		if transfers[i].BlockNumber != transfers[j].BlockNumber {
			return transfers[i].BlockNumber > transfers[j].BlockNumber
		}
		return transfers[i].LogIndex > transfers[j].LogIndex
	})

	return transfers, nil
}

// earliestBlockAtOrAfter finds the smallest block number whose timestamp is
// >= target by binary search, relying on monotonic block timestamps. The
// result may exceed head when every mined block predates the target.
func (s *Service) earliestBlockAtOrAfter(ctx context.Context, client clients.EthClientInterface, network types.Network, head uint64, target int64) (uint64, error) {
	headTS, err := s.blockTimestamp(ctx, client, network, head)
	if err != nil {
		return 0, fmt.Errorf("fetch head timestamp: %w", err)
	}
	if headTS < target {
		return head + 1, nil
	}

	lo, hi := uint64(0), head
	for lo < hi {
		mid := lo + (hi-lo)/2
		ts, err := s.blockTimestamp(ctx, client, network, mid)
		if err != nil {
			return 0, fmt.Errorf("fetch timestamp of block %d: %w", mid, err)
		}
		if ts < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, nil
}

// scanLogs queries transfer logs across [startBlock, head] in adaptive
// chunks. On any query failure the chunk size is halved and the same cursor
// retried; below the floor the failure propagates.
func (s *Service) scanLogs(ctx context.Context, client clients.EthClientInterface, assetContract string, toAddresses []string, startBlock, head uint64) ([]*ethtypes.Log, error) {
	toTopics := make([]common.Hash, 0, len(toAddresses))
	for _, addr := range toAddresses {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("to address is not an address: %q", addr)
		}
		toTopics = append(toTopics, common.BytesToHash(common.LeftPadBytes(common.HexToAddress(addr).Bytes(), 32)))
	}

	var collected []*ethtypes.Log
	chunk := initialChunkSize
	cursor := startBlock

	for cursor <= head {
		end := cursor + chunk - 1
		if end > head {
			end = head
		}

		logs, err := client.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(cursor),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{common.HexToAddress(assetContract)},
			Topics:    [][]common.Hash{{transferTopic}, nil, toTopics},
		})
		if err != nil {
			next := chunk / 2
			if next < minChunkSize {
				return nil, fmt.Errorf("log scan failed at block %d with chunk %d: %w", cursor, chunk, err)
			}
			s.logger.Warn("log query failed, halving chunk",
				"fromBlock", cursor, "chunk", chunk, "error", err)
			chunk = next
			continue
		}

		for i := range logs {
			collected = append(collected, &logs[i])
		}
		cursor = end + 1
	}

	return collected, nil
}

// enrichTimestamps attaches each matched log's block timestamp using a
// bounded-concurrency pool over the distinct block numbers.
func (s *Service) enrichTimestamps(ctx context.Context, client clients.EthClientInterface, network types.Network, assetContract string, logs []*ethtypes.Log) ([]types.TokenTransfer, error) {
	blockNumbers := make(map[uint64]struct{}, len(logs))
	for _, log := range logs {
		blockNumbers[log.BlockNumber] = struct{}{}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(timestampWorkers)
	for blockNumber := range blockNumbers {
		group.Go(func() error {
			_, err := s.blockTimestamp(groupCtx, client, network, blockNumber)
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("fetch block timestamps: %w", err)
	}

	transfers := make([]types.TokenTransfer, 0, len(logs))
	for _, log := range logs {
		decoded, ok := decodeTransferLog(log)
		if !ok {
			continue
		}
		// Cached by the pool above; never hits the network here.
		timestamp, err := s.blockTimestamp(ctx, client, network, log.BlockNumber)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, types.TokenTransfer{
			TxHash:         log.TxHash.Hex(),
			Network:        network,
			AssetContract:  common.HexToAddress(assetContract).Hex(),
			BlockNumber:    log.BlockNumber,
			BlockTimestamp: timestamp,
			LogIndex:       log.Index,
			From:           decoded.from.Hex(),
			To:             decoded.to.Hex(),
			Value:          decoded.value.String(),
		})
	}

	return transfers, nil
}
