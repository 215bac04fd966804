package chain

import (
	"errors"
	"fmt"
	"sort"

	"github.com/holographxyz/holograph-sub000/internal/config"
)

// ErrUnknownChain is returned when a chain id has no chain type.
var ErrUnknownChain = errors.New("chain: unknown chain")

// Built-in public chain id -> chain type translations.
var defaultChainTypes = map[uint64]uint32{
	1:     1, // ethereum
	56:    2, // bnb smart chain
	43114: 3, // avalanche c-chain
	137:   4, // polygon
	1338:  4294967294,
	1339:  4294967293,
}

// Table translates public chain ids into the internal chain types carried
// in a DeploymentConfig. It is read-only after construction.
type Table struct {
	byID   map[uint64]uint32
	byType map[uint32]uint64
}

// DefaultTable returns the built-in translations.
func DefaultTable() *Table {
	return NewTable(nil)
}

// NewTable returns the built-in translations with every chain that sets a
// non-zero ChainType applied on top.
func NewTable(chains []config.ChainConfig) *Table {
	t := &Table{
		byID:   make(map[uint64]uint32, len(defaultChainTypes)+len(chains)),
		byType: make(map[uint32]uint64, len(defaultChainTypes)+len(chains)),
	}
	for id, ct := range defaultChainTypes {
		t.set(id, ct)
	}
	for _, ch := range chains {
		if ch.ChainType != 0 {
			t.set(ch.ChainID, ch.ChainType)
		}
	}
	return t
}

func (t *Table) set(id uint64, ct uint32) {
	if old, ok := t.byID[id]; ok {
		delete(t.byType, old)
	}
	t.byID[id] = ct
	t.byType[ct] = id
}

// ChainType returns the chain type for a public chain id.
func (t *Table) ChainType(chainID uint64) (uint32, error) {
	ct, ok := t.byID[chainID]
	if !ok {
		return 0, fmt.Errorf("%w: chain id %d", ErrUnknownChain, chainID)
	}
	return ct, nil
}

// ChainID returns the public chain id for a chain type.
func (t *Table) ChainID(chainType uint32) (uint64, error) {
	id, ok := t.byType[chainType]
	if !ok {
		return 0, fmt.Errorf("%w: chain type %d", ErrUnknownChain, chainType)
	}
	return id, nil
}

// ChainIDs returns every known public chain id in ascending order.
func (t *Table) ChainIDs() []uint64 {
	ids := make([]uint64, 0, len(t.byID))
	for id := range t.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
