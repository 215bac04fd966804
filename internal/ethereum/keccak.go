package ethereum

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Keccak256 hashes the concatenation of data with legacy Keccak-256.
func Keccak256(data ...[]byte) common.Hash {
	var h common.Hash
	hasher := sha3.NewLegacyKeccak256()
	for _, b := range data {
		hasher.Write(b)
	}
	hasher.Sum(h[:0])
	return h
}

// TextHash returns the personal-message digest of data:
// keccak256("\x19Ethereum Signed Message:\n" + len(data) + data).
func TextHash(data []byte) common.Hash {
	return Keccak256(
		[]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(data))),
		data,
	)
}
