package holograph

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/holographxyz/holograph-sub000/internal/ethereum"
)

// SourceSynced marks metadata fetched from an existing OpenBao key.
const SourceSynced = "synced"

// BaoSigner signs config hashes with a secp256k1 key held in OpenBao. The
// private key never leaves OpenBao; the local store only caches the public
// key and EVM address.
type BaoSigner struct {
	client  *BaoClient
	store   *BaoStore
	keyName string
	address common.Address
	logger  *slog.Logger
}

var _ Signer = (*BaoSigner)(nil)

// NewBaoSigner validates the configuration, checks OpenBao health, opens the
// metadata store and resolves the signing key's address. Keys missing from
// the store are fetched from OpenBao once and cached.
func NewBaoSigner(ctx context.Context, cfg Config, logger *slog.Logger) (*BaoSigner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := NewBaoClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	if err := client.Health(ctx); err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}

	store, err := NewBaoStore(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}

	s := newBaoSigner(client, store, logger)
	if err := s.Use(ctx, cfg.KeyName); err != nil {
		_ = store.Close()
		return nil, err
	}
	return s, nil
}

// Use switches the signer to ref, a key name or the EVM address of an
// indexed key. Names missing from the index are synced from OpenBao.
func (s *BaoSigner) Use(ctx context.Context, ref string) error {
	meta, err := s.store.Resolve(ref)
	if err != nil {
		if isAddressRef(ref) {
			return WrapKeyError("use", ref, err)
		}
		meta, err = s.sync(ctx, ref)
		if err != nil {
			return err
		}
	}

	addr, err := ethereum.DecodeAddress(meta.Address)
	if err != nil {
		return WrapKeyError("use", meta.Name, fmt.Errorf("%w: %v", ErrStoreCorrupted, err))
	}
	s.keyName = meta.Name
	s.address = addr
	return nil
}

// Address returns the EVM address of the active key.
func (s *BaoSigner) Address() common.Address {
	return s.address
}

// KeyName returns the active key name.
func (s *BaoSigner) KeyName() string {
	return s.keyName
}

// SignDigest signs digest in OpenBao and appends the recovery id, found by
// recovering against the key's known address.
func (s *BaoSigner) SignDigest(ctx context.Context, digest common.Hash) ([]byte, error) {
	if s.keyName == "" {
		return nil, ErrMissingKeyName
	}

	start := time.Now()
	rs, err := s.client.SignDigest(ctx, s.keyName, digest)
	if err != nil {
		s.logger.Warn("openbao sign failed",
			slog.String("key", s.keyName),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	sig := make([]byte, 65)
	copy(sig, rs)
	for v := byte(0); v < 2; v++ {
		sig[64] = v
		pub, err := crypto.SigToPub(digest[:], sig)
		if err != nil {
			continue
		}
		if crypto.PubkeyToAddress(*pub) == s.address {
			s.logger.Debug("openbao signature",
				slog.String("key", s.keyName),
				slog.Duration("elapsed", time.Since(start)),
			)
			return sig, nil
		}
	}
	return nil, WrapKeyError("sign", s.keyName, fmt.Errorf("%w: no recovery id matches %s", ErrInvalidSignature, s.address.Hex()))
}

// CreateKey creates a non-exportable key in OpenBao and records its metadata.
func (s *BaoSigner) CreateKey(ctx context.Context, name string, opts KeyOptions) (*KeyMetadata, error) {
	if s.store.Has(name) {
		return nil, fmt.Errorf("%w: %s", ErrKeyExists, name)
	}

	info, err := s.client.CreateKey(ctx, name, opts)
	if err != nil {
		return nil, err
	}

	meta, err := s.metadataFromInfo(name, info, SourceGenerated)
	if err != nil {
		_ = s.client.DeleteKey(ctx, name)
		return nil, err
	}
	meta.Exportable = opts.Exportable

	if err := s.store.Save(meta); err != nil {
		_ = s.client.DeleteKey(ctx, name)
		return nil, err
	}
	s.logger.Info("created signing key",
		slog.String("key", name),
		slog.String("address", meta.Address),
	)
	return meta, nil
}

// ImportKey moves an existing private key into OpenBao and records its
// metadata. key is the raw 32-byte scalar.
func (s *BaoSigner) ImportKey(ctx context.Context, name string, key []byte) (*KeyMetadata, error) {
	if s.store.Has(name) {
		return nil, fmt.Errorf("%w: %s", ErrKeyExists, name)
	}
	if len(key) != 32 {
		return nil, NewValidationError("private_key", "must be 32 bytes")
	}

	info, err := s.client.ImportKey(ctx, name, key, false)
	if err != nil {
		return nil, err
	}
	meta, err := s.metadataFromInfo(name, info, SourceImported)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// Keys returns cached metadata for every known key.
func (s *BaoSigner) Keys() ([]*KeyMetadata, error) {
	return s.store.List()
}

// DeleteKey removes a key from OpenBao and the local store.
func (s *BaoSigner) DeleteKey(ctx context.Context, name string) error {
	if err := s.client.DeleteKey(ctx, name); err != nil {
		return err
	}
	return s.store.Delete(name)
}

// Close releases the key index.
func (s *BaoSigner) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

func (s *BaoSigner) sync(ctx context.Context, name string) (*KeyMetadata, error) {
	info, err := s.client.GetKey(ctx, name)
	if err != nil {
		return nil, err
	}
	meta, err := s.metadataFromInfo(name, info, SourceSynced)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// metadataFromInfo derives the EVM address from the compressed public key
// OpenBao reports. The plugin's own address field is chain-specific and not
// used.
func (s *BaoSigner) metadataFromInfo(name string, info *KeyInfo, source string) (*KeyMetadata, error) {
	pubKeyBytes, err := hex.DecodeString(info.PublicKey)
	if err != nil {
		return nil, WrapKeyError("decode", name, fmt.Errorf("public key: %w", err))
	}
	addr, err := evmAddress(pubKeyBytes)
	if err != nil {
		return nil, WrapKeyError("decode", name, err)
	}

	createdAt := info.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return &KeyMetadata{
		Name:        name,
		PubKeyBytes: pubKeyBytes,
		Address:     addr.Hex(),
		BaoKeyPath:  s.client.keyPath(name),
		Algorithm:   AlgorithmSecp256k1,
		Exportable:  info.Exportable,
		CreatedAt:   createdAt,
		Source:      source,
	}, nil
}

func evmAddress(pubKey []byte) (common.Address, error) {
	switch len(pubKey) {
	case 33:
		pub, err := crypto.DecompressPubkey(pubKey)
		if err != nil {
			return common.Address{}, fmt.Errorf("public key: %w", err)
		}
		return crypto.PubkeyToAddress(*pub), nil
	case 65:
		pub, err := crypto.UnmarshalPubkey(pubKey)
		if err != nil {
			return common.Address{}, fmt.Errorf("public key: %w", err)
		}
		return crypto.PubkeyToAddress(*pub), nil
	default:
		return common.Address{}, fmt.Errorf("public key: unexpected length %d", len(pubKey))
	}
}

// newBaoSigner creates a BaoSigner without a health check or key
// resolution.
func newBaoSigner(client *BaoClient, store *BaoStore, logger *slog.Logger) *BaoSigner {
	if logger == nil {
		logger = slog.Default()
	}
	return &BaoSigner{
		client: client,
		store:  store,
		logger: logger,
	}
}
