package holograph

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/flock"
)

// BaoStore indexes the OpenBao keys a deployer signs with by name and by EVM
// address. It holds public material only.
//
// Every mutation reloads the file under an advisory lock before rewriting
// it, so holoctl invocations sharing a store do not drop each other's keys.
type BaoStore struct {
	mu     sync.RWMutex
	path   string
	lock   *flock.Flock
	byName map[string]*KeyMetadata
	byAddr map[common.Address]string
}

// NewBaoStore opens the key index at path, creating its directory.
func NewBaoStore(path string) (*BaoStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorePersist, err)
	}
	s := &BaoStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns a copy of the metadata stored under name.
func (s *BaoStore) Get(name string) (*KeyMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, name)
	}
	return copyMetadata(meta), nil
}

// Resolve looks a key up by name, or by EVM address when ref is a 0x-prefixed
// 20-byte hex string.
func (s *BaoStore) Resolve(ref string) (*KeyMetadata, error) {
	if !isAddressRef(ref) {
		return s.Get(ref)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	name, ok := s.byAddr[common.HexToAddress(ref)]
	if !ok {
		return nil, fmt.Errorf("%w: no key controls %s", ErrKeyNotFound, ref)
	}
	return copyMetadata(s.byName[name]), nil
}

// Has reports whether name is indexed.
func (s *BaoStore) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byName[name]
	return ok
}

// List returns every key sorted by name.
func (s *BaoStore) List() ([]*KeyMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*KeyMetadata, 0, len(s.byName))
	for _, meta := range s.byName {
		out = append(out, copyMetadata(meta))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Save indexes meta. Re-saving a name is allowed only for the same address,
// and an address belongs to at most one name.
func (s *BaoStore) Save(meta *KeyMetadata) error {
	if meta == nil {
		return errors.New("metadata cannot be nil")
	}
	if meta.Name == "" {
		return errors.New("metadata name is required")
	}
	if !common.IsHexAddress(meta.Address) {
		return NewValidationError("address", fmt.Sprintf("%q is not an EVM address", meta.Address))
	}
	addr := common.HexToAddress(meta.Address)

	return s.mutate(func() error {
		if prev, ok := s.byName[meta.Name]; ok && common.HexToAddress(prev.Address) != addr {
			return fmt.Errorf("%w: %s is bound to %s", ErrKeyExists, meta.Name, prev.Address)
		}
		if owner, ok := s.byAddr[addr]; ok && owner != meta.Name {
			return fmt.Errorf("%w: %s already indexed as %s", ErrKeyExists, addr.Hex(), owner)
		}
		stored := copyMetadata(meta)
		stored.Address = addr.Hex()
		s.byName[meta.Name] = stored
		s.byAddr[addr] = meta.Name
		return nil
	})
}

// Delete drops name from the index.
func (s *BaoStore) Delete(name string) error {
	return s.mutate(func() error {
		meta, ok := s.byName[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrKeyNotFound, name)
		}
		delete(s.byName, name)
		delete(s.byAddr, common.HexToAddress(meta.Address))
		return nil
	})
}

// Close releases the file lock if a mutation left it held. Writes are
// already on disk.
func (s *BaoStore) Close() error {
	return s.lock.Unlock()
}

// mutate applies fn to the freshly reloaded index and writes the result
// while holding both the in-process and the file lock.
func (s *BaoStore) mutate(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("%w: lock %s: %v", ErrStorePersist, s.lock.Path(), err)
	}
	defer func() { _ = s.lock.Unlock() }()

	if err := s.reloadLocked(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	return s.writeLocked()
}

func (s *BaoStore) reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloadLocked()
}

func (s *BaoStore) reloadLocked() error {
	s.byName = make(map[string]*KeyMetadata)
	s.byAddr = make(map[common.Address]string)

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(raw) == 0) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorePersist, err)
	}

	var data StoreData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreCorrupted, err)
	}
	if data.Version > DefaultStoreVersion {
		return fmt.Errorf("%w: version %d is newer than %d", ErrStoreCorrupted, data.Version, DefaultStoreVersion)
	}
	for name, meta := range data.Keys {
		if meta == nil || meta.Name != name || !common.IsHexAddress(meta.Address) {
			return fmt.Errorf("%w: bad entry %q", ErrStoreCorrupted, name)
		}
		addr := common.HexToAddress(meta.Address)
		if owner, dup := s.byAddr[addr]; dup {
			return fmt.Errorf("%w: %s indexed as both %s and %s", ErrStoreCorrupted, addr.Hex(), owner, name)
		}
		s.byName[name] = meta
		s.byAddr[addr] = name
	}
	return nil
}

// writeLocked replaces the file through a synced temp file in the same
// directory so readers never see a partial index.
func (s *BaoStore) writeLocked() error {
	raw, err := json.MarshalIndent(StoreData{Version: DefaultStoreVersion, Keys: s.byName}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorePersist, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorePersist, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %v", ErrStorePersist, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %v", ErrStorePersist, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorePersist, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("%w: %v", ErrStorePersist, err)
	}
	return nil
}

func isAddressRef(ref string) bool {
	return strings.HasPrefix(ref, "0x") && common.IsHexAddress(ref)
}

func copyMetadata(m *KeyMetadata) *KeyMetadata {
	out := *m
	out.PubKeyBytes = append([]byte(nil), m.PubKeyBytes...)
	return &out
}
