package types

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeAddress validates a Polygon wallet address and returns it in
// lower-case hex so map keys and storage rows agree regardless of checksum casing.
func NormalizeAddress(address string) (string, error) {
	trimmed := strings.TrimSpace(address)
	if !common.IsHexAddress(trimmed) {
		return "", recordError(ErrInvalidAddress, "wallet", "address", fmt.Sprintf("not a hex address: %q", address))
	}

	return strings.ToLower(common.HexToAddress(trimmed).Hex()), nil
}

// NormalizeAddresses normalizes a list, dropping entries that are not valid addresses.
func NormalizeAddresses(addresses []string) []string {
	out := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		normalized, err := NormalizeAddress(addr)
		if err != nil {
			continue
		}
		out = append(out, normalized)
	}
	return out
}

// ShortAddress returns 0x1234...abcd for log lines.
func ShortAddress(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
