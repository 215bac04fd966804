package builder

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	holograph "github.com/holographxyz/holograph-sub000"
	"github.com/holographxyz/holograph-sub000/internal/ethereum"
)

// ParseSalt reads a salt given either as 0x-prefixed hex or as a decimal
// integer. Both are read as an unsigned integer below 2^256 and stored
// big-endian in 32 bytes.
func ParseSalt(s string) ([32]byte, error) {
	var salt [32]byte
	s = strings.TrimSpace(s)
	if s == "" {
		return salt, holograph.NewValidationError("salt", "is required")
	}

	base := 10
	if ethereum.Has0xPrefix(s) {
		base = 16
		s = s[2:]
		if s == "" {
			return salt, holograph.NewValidationError("salt", "invalid hex")
		}
	}

	v, ok := new(big.Int).SetString(s, base)
	if !ok || v.Sign() < 0 || strings.HasPrefix(s, "+") {
		if base == 16 {
			return salt, holograph.NewValidationError("salt", "invalid hex")
		}
		return salt, holograph.NewValidationError("salt", "must be hex or a non-negative decimal")
	}
	if v.BitLen() > 256 {
		return salt, holograph.NewValidationError("salt", "exceeds 32 bytes")
	}
	v.FillBytes(salt[:])
	return salt, nil
}

// RandomSalt returns 32 bytes from the system CSPRNG.
func RandomSalt() ([32]byte, error) {
	var salt [32]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return salt, fmt.Errorf("read random salt: %w", err)
	}
	return salt, nil
}

// SaltHex renders a salt as 0x followed by 64 lowercase hex characters.
func SaltHex(salt [32]byte) string {
	return ethereum.EncodeBytes(salt[:])
}
