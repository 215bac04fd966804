// Package builder assembles DeploymentConfig values from contract template
// parameters. Init code is layered the way the enforcer unwraps it: the
// template's own initializer, wrapped with the template namespace and
// registry, wrapped again with the collection settings.
package builder

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"

	holograph "github.com/holographxyz/holograph-sub000"
	"github.com/holographxyz/holograph-sub000/internal/ethereum"
)

// Builder builds deployment configs against one registry. It holds no
// mutable state and is safe for concurrent use.
type Builder struct {
	registry common.Address
	validate *validator.Validate
}

// New creates a Builder whose wrapped init code names registry.
func New(registry common.Address) *Builder {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Builder{registry: registry, validate: v}
}

// Registry returns the registry address embedded in wrapped init code.
func (b *Builder) Registry() common.Address {
	return b.registry
}

// Build validates req and returns its deployment config. Every failure is a
// *holograph.ValidationError.
func (b *Builder) Build(req Request) (holograph.DeploymentConfig, error) {
	if err := b.Validate(req); err != nil {
		return holograph.DeploymentConfig{}, err
	}

	salt, err := ParseSalt(req.Salt)
	if err != nil {
		return holograph.DeploymentConfig{}, err
	}
	byteCode, err := parseBytes("byteCode", req.ByteCode)
	if err != nil {
		return holograph.DeploymentConfig{}, err
	}
	owner, err := parseAddress("owner", req.Owner)
	if err != nil {
		return holograph.DeploymentConfig{}, err
	}

	inner := CxipInit(owner)
	if req.Template.IsDrop() {
		inner, err = b.dropInit(req.Template, owner, req.Collection.RoyaltyBps, req.Drop, req.OpenEdition)
		if err != nil {
			return holograph.DeploymentConfig{}, err
		}
	}

	initCode, err := b.InitCode(req.Template, req.Collection, inner)
	if err != nil {
		return holograph.DeploymentConfig{}, err
	}

	return holograph.DeploymentConfig{
		ContractType: ethereum.MustNamespace(EnforcerContractType),
		ChainType:    req.ChainType,
		Salt:         salt,
		ByteCode:     byteCode,
		InitCode:     initCode,
	}, nil
}

// Validate checks req without encoding anything.
func (b *Builder) Validate(req Request) error {
	if err := b.validate.Struct(req); err != nil {
		return validationError(err)
	}
	if req.Template.IsDrop() && req.Drop == nil {
		return holograph.NewValidationError("drop", fmt.Sprintf("required for template %s", req.Template))
	}
	if req.Template.IsOpenEdition() && req.OpenEdition == nil {
		return holograph.NewValidationError("openEdition", fmt.Sprintf("required for template %s", req.Template))
	}
	return nil
}

// InitCode wraps a template's encoded initializer: first with the template
// namespace and registry, then with the collection settings.
func (b *Builder) InitCode(t Template, c Collection, inner []byte) ([]byte, error) {
	ns, err := ethereum.Namespace(string(t))
	if err != nil {
		return nil, holograph.NewValidationError("template", err.Error())
	}
	if c.RoyaltyBps > maxRoyaltyBps {
		return nil, holograph.NewValidationError("collection.royaltyBps", "must be at most 10000")
	}
	eventConfig, err := parseUint("collection.eventConfig", c.EventConfig, 256)
	if err != nil {
		return nil, err
	}
	if inner == nil {
		inner = []byte{}
	}

	wrapped, err := wrappedInitArgs.Pack(ns, b.registry, inner)
	if err != nil {
		return nil, fmt.Errorf("encode wrapped init: %w", err)
	}
	initCode, err := enforcerInitArgs.Pack(c.Name, c.Symbol, c.RoyaltyBps, eventConfig, c.SkipInit, wrapped)
	if err != nil {
		return nil, fmt.Errorf("encode enforcer init: %w", err)
	}
	return initCode, nil
}

func (b *Builder) dropInit(t Template, owner common.Address, royaltyBps uint16, p *DropParams, oe *OpenEditionParams) ([]byte, error) {
	funds, err := parseAddress("drop.fundsRecipient", p.FundsRecipient)
	if err != nil {
		return nil, err
	}
	renderer, err := parseAddress("drop.metadataRenderer", p.MetadataRenderer)
	if err != nil {
		return nil, err
	}
	sales, err := p.Sales.configuration()
	if err != nil {
		return nil, err
	}

	editionSize := p.EditionSize
	var rendererInit []byte
	if t.IsOpenEdition() {
		editionSize = 0
		rendererInit, err = EditionsRendererInit(oe.Description, oe.ImageURI, oe.AnimationURI)
	} else {
		rendererInit, err = parseBytes("drop.metadataRendererInit", p.MetadataRendererInit)
	}
	if err != nil {
		return nil, err
	}

	if t.legacy() {
		helper, err := parseAddress("drop.erc721TransferHelper", p.ERC721TransferHelper)
		if err != nil {
			return nil, err
		}
		filter, err := parseAddress("drop.marketFilterAddress", p.MarketFilterAddress)
		if err != nil {
			return nil, err
		}
		inner, err := dropV1Args.Pack(dropsInitializerV1{
			Erc721TransferHelper:         helper,
			MarketFilterAddress:          filter,
			InitialOwner:                 owner,
			FundsRecipient:               funds,
			EditionSize:                  editionSize,
			RoyaltyBPS:                   royaltyBps,
			EnableOpenSeaRoyaltyRegistry: p.EnableOpenSeaRoyaltyRegistry,
			SalesConfiguration:           sales,
			MetadataRenderer:             renderer,
			MetadataRendererInit:         rendererInit,
		})
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", t, err)
		}
		return inner, nil
	}

	inner, err := dropV2Args.Pack(dropsInitializerV2{
		InitialOwner:         owner,
		FundsRecipient:       funds,
		EditionSize:          editionSize,
		RoyaltyBPS:           royaltyBps,
		SalesConfiguration:   sales,
		MetadataRenderer:     renderer,
		MetadataRendererInit: rendererInit,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	return inner, nil
}

// EditionsRendererInit encodes the editions metadata renderer's
// initialization data.
func EditionsRendererInit(description, imageURI, animationURI string) ([]byte, error) {
	out, err := editionsInitArgs.Pack(description, imageURI, animationURI)
	if err != nil {
		return nil, fmt.Errorf("encode renderer init: %w", err)
	}
	return out, nil
}

// CxipInit encodes the CxipERC721 initializer for owner.
func CxipInit(owner common.Address) []byte {
	out, err := cxipArgs.Pack(owner)
	if err != nil {
		// A single static address never fails to pack.
		panic(err)
	}
	return out
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return holograph.NewValidationError("request", err.Error())
	}

	fe := verrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "Request.")
	if field == "" {
		field = fe.Field()
	}
	return holograph.NewValidationError(lowerFirst(field), describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "eth_addr":
		return "must be a 0x-prefixed 20-byte hex address"
	case "hexadecimal":
		return "must be hex"
	case "numeric":
		return "must be a decimal number"
	case "lte":
		return "must be at most " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of " + fe.Param()
	case "gtefield":
		return "must not precede " + lowerFirst(fe.Param())
	default:
		return "failed " + fe.Tag() + " validation"
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
