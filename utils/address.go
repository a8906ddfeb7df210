package utils

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeAddress converts a hex address to its EIP-55 checksummed form so
// that string comparisons are reliable regardless of the casing a client
// supplied. Returns an error for anything that is not a hex address.
func NormalizeAddress(addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("invalid address: %q", addr)
	}
	return common.HexToAddress(addr).Hex(), nil
}
