package builder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Template names a source contract the enforcer can wrap. The name doubles
// as the template namespace tag inside the wrapped init code.
type Template string

const (
	TemplateCxipERC721          Template = "CxipERC721"
	TemplateDropERC721          Template = "HolographDropERC721"
	TemplateDropERC721V2        Template = "HolographDropERC721V2"
	TemplateOpenEditionERC721   Template = "HolographOpenEditionERC721"
	TemplateOpenEditionERC721V2 Template = "HolographOpenEditionERC721V2"
)

// EnforcerContractType is the contract type every template deploys under.
const EnforcerContractType = "HolographERC721"

const maxRoyaltyBps = 10000

// Templates lists every supported template in a stable order.
func Templates() []Template {
	return []Template{
		TemplateCxipERC721,
		TemplateDropERC721,
		TemplateDropERC721V2,
		TemplateOpenEditionERC721,
		TemplateOpenEditionERC721V2,
	}
}

// ParseTemplate resolves a template name.
func ParseTemplate(s string) (Template, error) {
	for _, t := range Templates() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown template %q", s)
}

// IsDrop reports whether the template takes drop initialization parameters.
func (t Template) IsDrop() bool {
	return t != TemplateCxipERC721
}

// IsOpenEdition reports whether the template is an unlimited edition with an
// editions metadata renderer.
func (t Template) IsOpenEdition() bool {
	return t == TemplateOpenEditionERC721 || t == TemplateOpenEditionERC721V2
}

// legacy reports whether the template uses the v1 initializer carrying the
// transfer helper, market filter and OpenSea registry fields.
func (t Template) legacy() bool {
	return t == TemplateDropERC721 || t == TemplateOpenEditionERC721
}

// salesConfiguration mirrors the on-chain SalesConfiguration struct.
type salesConfiguration struct {
	PublicSalePrice           *big.Int `abi:"publicSalePrice"`
	MaxSalePurchasePerAddress uint32   `abi:"maxSalePurchasePerAddress"`
	PublicSaleStart           uint64   `abi:"publicSaleStart"`
	PublicSaleEnd             uint64   `abi:"publicSaleEnd"`
	PresaleStart              uint64   `abi:"presaleStart"`
	PresaleEnd                uint64   `abi:"presaleEnd"`
	PresaleMerkleRoot         [32]byte `abi:"presaleMerkleRoot"`
}

// dropsInitializerV1 mirrors DropsInitializer for the v1 drop contracts.
type dropsInitializerV1 struct {
	Erc721TransferHelper         common.Address     `abi:"erc721TransferHelper"`
	MarketFilterAddress          common.Address     `abi:"marketFilterAddress"`
	InitialOwner                 common.Address     `abi:"initialOwner"`
	FundsRecipient               common.Address     `abi:"fundsRecipient"`
	EditionSize                  uint64             `abi:"editionSize"`
	RoyaltyBPS                   uint16             `abi:"royaltyBPS"`
	EnableOpenSeaRoyaltyRegistry bool               `abi:"enableOpenSeaRoyaltyRegistry"`
	SalesConfiguration           salesConfiguration `abi:"salesConfiguration"`
	MetadataRenderer             common.Address     `abi:"metadataRenderer"`
	MetadataRendererInit         []byte             `abi:"metadataRendererInit"`
}

// dropsInitializerV2 mirrors DropsInitializerV2.
type dropsInitializerV2 struct {
	InitialOwner         common.Address     `abi:"initialOwner"`
	FundsRecipient       common.Address     `abi:"fundsRecipient"`
	EditionSize          uint64             `abi:"editionSize"`
	RoyaltyBPS           uint16             `abi:"royaltyBPS"`
	SalesConfiguration   salesConfiguration `abi:"salesConfiguration"`
	MetadataRenderer     common.Address     `abi:"metadataRenderer"`
	MetadataRendererInit []byte             `abi:"metadataRendererInit"`
}

var salesConfigurationComponents = []abi.ArgumentMarshaling{
	{Name: "publicSalePrice", Type: "uint104"},
	{Name: "maxSalePurchasePerAddress", Type: "uint32"},
	{Name: "publicSaleStart", Type: "uint64"},
	{Name: "publicSaleEnd", Type: "uint64"},
	{Name: "presaleStart", Type: "uint64"},
	{Name: "presaleEnd", Type: "uint64"},
	{Name: "presaleMerkleRoot", Type: "bytes32"},
}

var (
	addressType = mustType("address", nil)
	bytesType   = mustType("bytes", nil)
	bytes32Type = mustType("bytes32", nil)
	stringType  = mustType("string", nil)
	uint16Type  = mustType("uint16", nil)
	uint256Type = mustType("uint256", nil)
	boolType    = mustType("bool", nil)

	dropsInitializerV1Type = mustType("tuple", []abi.ArgumentMarshaling{
		{Name: "erc721TransferHelper", Type: "address"},
		{Name: "marketFilterAddress", Type: "address"},
		{Name: "initialOwner", Type: "address"},
		{Name: "fundsRecipient", Type: "address"},
		{Name: "editionSize", Type: "uint64"},
		{Name: "royaltyBPS", Type: "uint16"},
		{Name: "enableOpenSeaRoyaltyRegistry", Type: "bool"},
		{Name: "salesConfiguration", Type: "tuple", Components: salesConfigurationComponents},
		{Name: "metadataRenderer", Type: "address"},
		{Name: "metadataRendererInit", Type: "bytes"},
	})

	dropsInitializerV2Type = mustType("tuple", []abi.ArgumentMarshaling{
		{Name: "initialOwner", Type: "address"},
		{Name: "fundsRecipient", Type: "address"},
		{Name: "editionSize", Type: "uint64"},
		{Name: "royaltyBPS", Type: "uint16"},
		{Name: "salesConfiguration", Type: "tuple", Components: salesConfigurationComponents},
		{Name: "metadataRenderer", Type: "address"},
		{Name: "metadataRendererInit", Type: "bytes"},
	})
)

var (
	cxipArgs        = abi.Arguments{{Name: "owner", Type: addressType}}
	dropV1Args      = abi.Arguments{{Name: "initializer", Type: dropsInitializerV1Type}}
	dropV2Args      = abi.Arguments{{Name: "initializer", Type: dropsInitializerV2Type}}
	wrappedInitArgs = abi.Arguments{
		{Name: "contractType", Type: bytes32Type},
		{Name: "registry", Type: addressType},
		{Name: "initCode", Type: bytesType},
	}
	editionsInitArgs = abi.Arguments{
		{Name: "description", Type: stringType},
		{Name: "imageURI", Type: stringType},
		{Name: "animationURI", Type: stringType},
	}
	enforcerInitArgs = abi.Arguments{
		{Name: "contractName", Type: stringType},
		{Name: "contractSymbol", Type: stringType},
		{Name: "contractBps", Type: uint16Type},
		{Name: "eventConfig", Type: uint256Type},
		{Name: "skipInit", Type: boolType},
		{Name: "initCode", Type: bytesType},
	}
)

func mustType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(fmt.Sprintf("builder: abi type %s: %v", t, err))
	}
	return typ
}
