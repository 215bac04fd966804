package builder

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	holograph "github.com/holographxyz/holograph-sub000"
	"github.com/holographxyz/holograph-sub000/internal/ethereum"
)

// Request carries the template parameters for one deployment. Addresses are
// hex strings and large amounts decimal strings so requests can arrive from
// JSON or flags unchanged.
type Request struct {
	Template  Template `json:"template" validate:"required,oneof=CxipERC721 HolographDropERC721 HolographDropERC721V2 HolographOpenEditionERC721 HolographOpenEditionERC721V2"`
	ChainType uint32   `json:"chainType" validate:"required"`
	Salt      string   `json:"salt" validate:"required"`
	ByteCode  string   `json:"byteCode" validate:"required,hexadecimal"`

	Collection  Collection         `json:"collection"`
	Owner       string             `json:"owner" validate:"required,eth_addr"`
	Drop        *DropParams        `json:"drop,omitempty"`
	OpenEdition *OpenEditionParams `json:"openEdition,omitempty"`
}

// Collection holds the enforcer-level collection settings shared by every
// template.
type Collection struct {
	Name        string `json:"name" validate:"required,max=128"`
	Symbol      string `json:"symbol" validate:"required,max=32"`
	RoyaltyBps  uint16 `json:"royaltyBps" validate:"lte=10000"`
	EventConfig string `json:"eventConfig" validate:"omitempty,numeric"`
	SkipInit    bool   `json:"skipInit"`
}

// DropParams configures the drop initializers. The v1-only fields are
// ignored by v2 templates.
type DropParams struct {
	FundsRecipient       string    `json:"fundsRecipient" validate:"required,eth_addr"`
	EditionSize          uint64    `json:"editionSize"`
	MetadataRenderer     string    `json:"metadataRenderer" validate:"required,eth_addr"`
	MetadataRendererInit string    `json:"metadataRendererInit" validate:"omitempty,hexadecimal"`
	Sales                SalesInfo `json:"sales"`

	ERC721TransferHelper         string `json:"erc721TransferHelper" validate:"omitempty,eth_addr"`
	MarketFilterAddress          string `json:"marketFilterAddress" validate:"omitempty,eth_addr"`
	EnableOpenSeaRoyaltyRegistry bool   `json:"enableOpenSeaRoyaltyRegistry"`
}

// SalesInfo mirrors the drop sales configuration.
type SalesInfo struct {
	PublicSalePrice           string `json:"publicSalePrice" validate:"omitempty,numeric"`
	MaxSalePurchasePerAddress uint32 `json:"maxSalePurchasePerAddress"`
	PublicSaleStart           uint64 `json:"publicSaleStart"`
	PublicSaleEnd             uint64 `json:"publicSaleEnd" validate:"omitempty,gtefield=PublicSaleStart"`
	PresaleStart              uint64 `json:"presaleStart"`
	PresaleEnd                uint64 `json:"presaleEnd" validate:"omitempty,gtefield=PresaleStart"`
	PresaleMerkleRoot         string `json:"presaleMerkleRoot" validate:"omitempty,hexadecimal"`
}

// OpenEditionParams adds the editions renderer metadata to the drop
// parameters. EditionSize in Drop is forced to zero (unlimited).
type OpenEditionParams struct {
	Description  string `json:"description"`
	ImageURI     string `json:"imageURI"`
	AnimationURI string `json:"animationURI"`
}

func parseAddress(field, s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	addr, err := ethereum.DecodeAddress(s)
	if err != nil {
		return common.Address{}, holograph.NewValidationError(field, "invalid address")
	}
	return addr, nil
}

// parseUint parses a non-negative decimal that fits in bits.
func parseUint(field, s string, bits int) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || v.Sign() < 0 {
		return nil, holograph.NewValidationError(field, "must be a non-negative decimal integer")
	}
	if v.BitLen() > bits {
		return nil, holograph.NewValidationError(field, fmt.Sprintf("exceeds uint%d", bits))
	}
	return v, nil
}

func parseBytes(field, s string) ([]byte, error) {
	if s == "" {
		return []byte{}, nil
	}
	b, err := ethereum.DecodeBytes(s)
	if err != nil {
		return nil, holograph.NewValidationError(field, "invalid hex")
	}
	return b, nil
}

// parseWord reads a bytes32 value. Exactly 32 bytes are required: bytes32
// is left-aligned, so shorter input has no unambiguous placement.
func parseWord(field, s string) ([32]byte, error) {
	var w [32]byte
	if s == "" {
		return w, nil
	}
	b, err := parseBytes(field, s)
	if err != nil {
		return w, err
	}
	if len(b) != 32 {
		return w, holograph.NewValidationError(field, fmt.Sprintf("must be exactly 32 bytes, got %d", len(b)))
	}
	copy(w[:], b)
	return w, nil
}

func (s SalesInfo) configuration() (salesConfiguration, error) {
	price, err := parseUint("drop.sales.publicSalePrice", s.PublicSalePrice, 104)
	if err != nil {
		return salesConfiguration{}, err
	}
	root, err := parseWord("drop.sales.presaleMerkleRoot", s.PresaleMerkleRoot)
	if err != nil {
		return salesConfiguration{}, err
	}
	return salesConfiguration{
		PublicSalePrice:           price,
		MaxSalePurchasePerAddress: s.MaxSalePurchasePerAddress,
		PublicSaleStart:           s.PublicSaleStart,
		PublicSaleEnd:             s.PublicSaleEnd,
		PresaleStart:              s.PresaleStart,
		PresaleEnd:                s.PresaleEnd,
		PresaleMerkleRoot:         root,
	}, nil
}
