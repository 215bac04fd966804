// Package ethereum provides the byte-level helpers shared by the
// deployment-configuration encoder, hasher and decoder.
package ethereum

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// DecodeAddress decodes a hex address string to an Address.
func DecodeAddress(s string) (common.Address, error) {
	var addr common.Address
	s = trim0x(s)
	if len(s) != 2*common.AddressLength {
		return addr, fmt.Errorf("invalid address length: %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return addr, fmt.Errorf("invalid hex: %w", err)
	}
	copy(addr[:], b)
	return addr, nil
}

// DecodeHash decodes a hex hash string to a Hash.
func DecodeHash(s string) (common.Hash, error) {
	var h common.Hash
	s = trim0x(s)
	if len(s) != 2*common.HashLength {
		return h, fmt.Errorf("invalid hash length: %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hex: %w", err)
	}
	copy(h[:], b)
	return h, nil
}

// DecodeBig decodes a hex string to *big.Int.
func DecodeBig(s string) (*big.Int, error) {
	s = trim0x(s)
	if s == "" {
		return big.NewInt(0), nil
	}
	val := new(big.Int)
	if _, ok := val.SetString(s, 16); !ok {
		return nil, fmt.Errorf("invalid hex number: %s", s)
	}
	return val, nil
}

// DecodeBytes decodes a hex string to []byte. Surrounding whitespace is
// ignored so fixture files and piped input decode without preprocessing.
// Odd-length input is rejected, never padded.
func DecodeBytes(s string) ([]byte, error) {
	s = trim0x(strings.TrimSpace(s))
	if s == "" {
		return []byte{}, nil
	}
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("invalid hex: %w", hexutil.ErrOddLength)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return b, nil
}

// EncodeAddress encodes an Address as lowercase hex with 0x prefix.
func EncodeAddress(addr common.Address) string {
	return fmt.Sprintf("0x%x", addr[:])
}

// EncodeHash encodes a Hash as lowercase hex with 0x prefix.
func EncodeHash(h common.Hash) string {
	return fmt.Sprintf("0x%x", h[:])
}

// EncodeBytes encodes bytes to hex string with 0x prefix.
func EncodeBytes(b []byte) string {
	return fmt.Sprintf("0x%x", b)
}

// NormalizeHex lowercases a hex string and makes sure it carries a 0x prefix.
func NormalizeHex(s string) string {
	return "0x" + strings.ToLower(trim0x(strings.TrimSpace(s)))
}

// Has0xPrefix returns true if the string has a 0x prefix.
func Has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

func trim0x(s string) string {
	if Has0xPrefix(s) {
		return s[2:]
	}
	return s
}
