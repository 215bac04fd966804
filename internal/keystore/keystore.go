// Package keystore holds private keys in memory for the local signer.
package keystore

import (
	"crypto/ecdsa"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	holograph "github.com/holographxyz/holograph-sub000"
	"github.com/holographxyz/holograph-sub000/internal/pkg/ulid"
)

// Well-known development keys of the default anvil/hardhat mnemonic.
var devKeys = []string{
	"ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
	"59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d",
	"5de4111afa1a4b94908f83103eb1f1706367c2e68ca870fc3fb9a804cdab365a",
}

// Keystore is an in-memory key storage keyed by lowercase address.
// Thread-safe for concurrent access.
type Keystore struct {
	keys map[string]*Key // lowercase address -> key
	mu   sync.RWMutex
}

// Key represents a cryptographic key pair.
type Key struct {
	ID         string
	Name       string
	Address    string // 0x... checksummed address
	PrivateKey *ecdsa.PrivateKey
	PublicKey  []byte
	CreatedAt  time.Time
}

// Signer returns a holograph.Signer backed by the key.
func (k *Key) Signer() *holograph.LocalSigner {
	return holograph.NewLocalSigner(k.PrivateKey)
}

// NewKey wraps priv under name.
func NewKey(name string, priv *ecdsa.PrivateKey) *Key {
	return &Key{
		ID:         ulid.New(),
		Name:       name,
		Address:    crypto.PubkeyToAddress(priv.PublicKey).Hex(),
		PrivateKey: priv,
		PublicKey:  crypto.CompressPubkey(&priv.PublicKey),
		CreatedAt:  time.Now().UTC(),
	}
}

// ParseKey parses a hex private key, with or without 0x.
func ParseKey(name, hexKey string) (*Key, error) {
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X"))
	if err != nil {
		return nil, holograph.NewValidationError("private_key", err.Error())
	}
	return NewKey(name, priv), nil
}

// NewKeystore creates a new in-memory keystore.
func NewKeystore() *Keystore {
	return &Keystore{
		keys: make(map[string]*Key),
	}
}

// LoadDevKeys returns the first three anvil development keys, named dev-0..dev-2.
func LoadDevKeys() ([]*Key, error) {
	keys := make([]*Key, 0, len(devKeys))
	for i, hexKey := range devKeys {
		key, err := ParseKey(fmt.Sprintf("dev-%d", i), hexKey)
		if err != nil {
			return nil, fmt.Errorf("load dev key %d: %w", i, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// AddKey adds a key to the keystore.
func (k *Keystore) AddKey(key *Key) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	addr := strings.ToLower(key.Address)
	if _, exists := k.keys[addr]; exists {
		return holograph.WrapKeyError("add", key.Name, holograph.ErrKeyExists)
	}
	for _, existing := range k.keys {
		if key.Name != "" && existing.Name == key.Name {
			return holograph.WrapKeyError("add", key.Name, holograph.ErrKeyExists)
		}
	}

	k.keys[addr] = key
	return nil
}

// GetKey retrieves a key by address, ignoring checksum casing.
func (k *Keystore) GetKey(address string) (*Key, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	key, exists := k.keys[strings.ToLower(address)]
	if !exists {
		return nil, holograph.WrapKeyError("get", address, holograph.ErrKeyNotFound)
	}

	return key, nil
}

// GetKeyByName retrieves a key by name.
func (k *Keystore) GetKeyByName(name string) (*Key, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	for _, key := range k.keys {
		if key.Name == name {
			return key, nil
		}
	}

	return nil, holograph.WrapKeyError("get", name, holograph.ErrKeyNotFound)
}

// Lookup resolves ref as an address when it is 0x-prefixed, otherwise as a
// key name.
func (k *Keystore) Lookup(ref string) (*Key, error) {
	if strings.HasPrefix(ref, "0x") || strings.HasPrefix(ref, "0X") {
		return k.GetKey(ref)
	}
	return k.GetKeyByName(ref)
}

// ListKeys returns all keys sorted by name.
func (k *Keystore) ListKeys() []*Key {
	k.mu.RLock()
	defer k.mu.RUnlock()

	keys := make([]*Key, 0, len(k.keys))
	for _, key := range k.keys {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Name < keys[j].Name })

	return keys
}

// DeleteKey removes a key from the keystore.
func (k *Keystore) DeleteKey(address string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	addr := strings.ToLower(address)
	if _, exists := k.keys[addr]; !exists {
		return holograph.WrapKeyError("delete", address, holograph.ErrKeyNotFound)
	}

	delete(k.keys, addr)
	return nil
}
