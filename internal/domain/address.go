package domain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// NormalizeAddress lowercases a 0x-prefixed 20-byte hex address and
// validates its shape. All addresses stored by the engine are normalized so
// equality checks are plain string comparisons.
func NormalizeAddress(addr string) (string, error) {
	trimmed := strings.TrimSpace(addr)
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		return "", fmt.Errorf("address %q missing 0x prefix", addr)
	}
	body := strings.ToLower(trimmed[2:])
	if len(body) != 40 {
		return "", fmt.Errorf("address %q has wrong length", addr)
	}
	if _, err := hex.DecodeString(body); err != nil {
		return "", fmt.Errorf("address %q is not hex: %w", addr, err)
	}
	return "0x" + body, nil
}

// ParseAmount parses a non-negative decimal string into a big integer
// amount. Amounts cross the API and the database as decimal strings to
// preserve precision.
func ParseAmount(s string) (*big.Int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, fmt.Errorf("empty amount")
	}
	n, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a decimal integer", s)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("amount %q is negative", s)
	}
	return n, nil
}

// AmountString renders a possibly-nil amount as a decimal string.
func AmountString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}
