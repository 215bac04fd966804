package holograph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/holographxyz/holograph-sub000/internal/ethereum"
)

// SigningMode selects the message actually signed for a config hash. The
// factory must recover with the same scheme, otherwise it derives a different
// signer.
type SigningMode int

const (
	// RawHash signs the 32-byte config hash directly.
	RawHash SigningMode = iota
	// PrefixedMessage signs the personal-message digest of the config hash,
	// as produced by eth_sign and personal_sign.
	PrefixedMessage
)

// String implements fmt.Stringer.
func (m SigningMode) String() string {
	switch m {
	case RawHash:
		return "raw"
	case PrefixedMessage:
		return "prefixed"
	default:
		return fmt.Sprintf("SigningMode(%d)", int(m))
	}
}

// ParseSigningMode parses "raw" or "prefixed".
func ParseSigningMode(s string) (SigningMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "raw", "raw_hash", "rawhash":
		return RawHash, nil
	case "prefixed", "prefixed_message", "personal":
		return PrefixedMessage, nil
	default:
		return 0, NewValidationError("signing_mode", fmt.Sprintf("unknown signing mode %q", s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m SigningMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *SigningMode) UnmarshalText(text []byte) error {
	mode, err := ParseSigningMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// Digest returns the 32 bytes handed to the signer for configHash.
func (m SigningMode) Digest(configHash common.Hash) common.Hash {
	if m == PrefixedMessage {
		return ethereum.TextHash(configHash[:])
	}
	return configHash
}

// Signer produces secp256k1 signatures over 32-byte digests. SignDigest
// returns 65 bytes r||s||v with v as 0/1 or 27/28. A signer that declines
// must return an error matching ErrSignatureRejected.
type Signer interface {
	Address() common.Address
	SignDigest(ctx context.Context, digest common.Hash) ([]byte, error)
}

// Sign signs configHash with signer under mode. A rejection or cancellation
// surfaces as ErrSignatureRejected; any other failure, including a signature
// that does not recover to signer.Address(), as ErrSigningFailed. A zero
// Signature is never returned with a nil error.
func Sign(ctx context.Context, configHash common.Hash, signer Signer, mode SigningMode) (Signature, error) {
	digest := mode.Digest(configHash)

	raw, err := signer.SignDigest(ctx, digest)
	if err != nil {
		switch {
		case errors.Is(err, ErrSignatureRejected):
			return Signature{}, err
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return Signature{}, fmt.Errorf("%w: %w", ErrSignatureRejected, err)
		default:
			return Signature{}, fmt.Errorf("%w: %w", ErrSigningFailed, err)
		}
	}

	sig, err := SignatureFromBytes(raw)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}
	if sig.IsZero() {
		return Signature{}, fmt.Errorf("%w: degenerate signature", ErrSigningFailed)
	}
	if !verifyDigest(digest, sig, signer.Address()) {
		return Signature{}, fmt.Errorf("%w: signature does not recover to %s", ErrSigningFailed, signer.Address().Hex())
	}
	return sig, nil
}

// RecoverSigner returns the address that produced sig over configHash under
// mode.
func RecoverSigner(configHash common.Hash, sig Signature, mode SigningMode) (common.Address, error) {
	return recoverDigest(mode.Digest(configHash), sig)
}

// Verify reports whether sig over configHash recovers to claimed. Recovery
// errors report false.
func Verify(configHash common.Hash, sig Signature, claimed common.Address, mode SigningMode) bool {
	return verifyDigest(mode.Digest(configHash), sig, claimed)
}

// VerifyHex is Verify for a claimed signer given as hex. The address is
// compared without regard to checksum casing.
func VerifyHex(configHash common.Hash, sig Signature, claimed string, mode SigningMode) bool {
	recovered, err := RecoverSigner(configHash, sig, mode)
	if err != nil {
		return false
	}
	return strings.EqualFold(recovered.Hex(), ethereum.NormalizeHex(claimed))
}

// CheckSignature is Verify returning ErrVerificationFailed on mismatch.
func CheckSignature(configHash common.Hash, sig Signature, claimed common.Address, mode SigningMode) error {
	recovered, err := RecoverSigner(configHash, sig, mode)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	if recovered != claimed {
		return fmt.Errorf("%w: recovered %s, expected %s", ErrVerificationFailed, recovered.Hex(), claimed.Hex())
	}
	return nil
}

// DetectSigningMode reports which signing mode, if any, makes sig recover to
// claimed.
func DetectSigningMode(configHash common.Hash, sig Signature, claimed common.Address) (SigningMode, bool) {
	for _, mode := range []SigningMode{RawHash, PrefixedMessage} {
		if Verify(configHash, sig, claimed, mode) {
			return mode, true
		}
	}
	return RawHash, false
}

func verifyDigest(digest common.Hash, sig Signature, claimed common.Address) bool {
	recovered, err := recoverDigest(digest, sig)
	if err != nil {
		return false
	}
	return recovered == claimed
}

func recoverDigest(digest common.Hash, sig Signature) (common.Address, error) {
	if sig.V != 27 && sig.V != 28 {
		return common.Address{}, fmt.Errorf("%w: v must be 27 or 28, got %d", ErrInvalidSignature, sig.V)
	}
	raw := sig.Bytes()
	raw[64] = sig.RecoveryID()
	if !crypto.ValidateSignatureValues(raw[64], common.BytesToHash(sig.R[:]).Big(), common.BytesToHash(sig.S[:]).Big(), false) {
		return common.Address{}, fmt.Errorf("%w: r or s out of range", ErrInvalidSignature)
	}

	pubKey, err := crypto.SigToPub(digest[:], raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}
