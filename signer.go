package holograph

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// LocalSigner signs with an in-process private key.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

var _ Signer = (*LocalSigner)(nil)

// NewLocalSigner wraps a private key.
func NewLocalSigner(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// NewLocalSignerFromHex parses a hex private key, with or without 0x.
func NewLocalSignerFromHex(hexKey string) (*LocalSigner, error) {
	if len(hexKey) >= 2 && hexKey[0] == '0' && (hexKey[1] == 'x' || hexKey[1] == 'X') {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, NewValidationError("private_key", err.Error())
	}
	return NewLocalSigner(key), nil
}

// Address returns the signer's address.
func (s *LocalSigner) Address() common.Address {
	return s.address
}

// SignDigest signs a 32-byte digest. The returned v is 0 or 1.
func (s *LocalSigner) SignDigest(ctx context.Context, digest common.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSignatureRejected, err)
	}
	sig, err := crypto.Sign(digest[:], s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign hash: %w", err)
	}
	return sig, nil
}

// ConfirmFunc asks the key holder to approve a signature over digest.
type ConfirmFunc func(ctx context.Context, signer common.Address, digest common.Hash) (bool, error)

// ConfirmingSigner gates another Signer behind an approval step. A declined
// approval fails with ErrSignatureRejected without reaching the wrapped
// signer.
type ConfirmingSigner struct {
	Signer
	Confirm ConfirmFunc
}

var _ Signer = (*ConfirmingSigner)(nil)

// SignDigest implements Signer.
func (s *ConfirmingSigner) SignDigest(ctx context.Context, digest common.Hash) ([]byte, error) {
	ok, err := s.Confirm(ctx, s.Address(), digest)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSignatureRejected, err)
	}
	if !ok {
		return nil, ErrSignatureRejected
	}
	return s.Signer.SignDigest(ctx, digest)
}
