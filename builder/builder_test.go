package builder

import (
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	holograph "github.com/holographxyz/holograph-sub000"
	"github.com/holographxyz/holograph-sub000/internal/ethereum"
)

var (
	testRegistry = common.HexToAddress("0xb47c0e0170306583aa979bf30c0407e2bfe234b2")
	testOwner    = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testFunds    = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	testRenderer = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
)

func cxipRequest() Request {
	return Request{
		Template:  TemplateCxipERC721,
		ChainType: 1,
		Salt:      "1",
		ByteCode:  "0x6080604052",
		Owner:     testOwner,
		Collection: Collection{
			Name:       "Holograph Test",
			Symbol:     "HTEST",
			RoyaltyBps: 1000,
		},
	}
}

func testSales() SalesInfo {
	return SalesInfo{
		PublicSalePrice:           "10000000000000000",
		MaxSalePurchasePerAddress: 5,
		PublicSaleStart:           1700000000,
		PublicSaleEnd:             1800000000,
	}
}

func dropV2Request() Request {
	return Request{
		Template:   TemplateDropERC721V2,
		ChainType:  1,
		Salt:       "0x01",
		ByteCode:   "0x6080604052",
		Owner:      testOwner,
		Collection: Collection{Name: "Drop", Symbol: "DROP", RoyaltyBps: 500},
		Drop: &DropParams{
			FundsRecipient:       testFunds,
			EditionSize:          100,
			MetadataRenderer:     testRenderer,
			MetadataRendererInit: "0xc0ffee",
			Sales:                testSales(),
		},
	}
}

func openEditionV1Request() Request {
	return Request{
		Template:   TemplateOpenEditionERC721,
		ChainType:  1,
		Salt:       "1",
		ByteCode:   "0x6080604052",
		Owner:      testOwner,
		Collection: Collection{Name: "Open", Symbol: "OPEN", RoyaltyBps: 500},
		Drop: &DropParams{
			FundsRecipient:               testFunds,
			EditionSize:                  100,
			MetadataRenderer:             testRenderer,
			MarketFilterAddress:          "0x000000000000AAeB6D7670E522A718067333cd4E",
			EnableOpenSeaRoyaltyRegistry: true,
			Sales:                        testSales(),
		},
		OpenEdition: &OpenEditionParams{
			Description: "An open edition",
			ImageURI:    "ipfs://image",
		},
	}
}

// ============================================
// Golden Tests
// ============================================

func TestBuild_Golden(t *testing.T) {
	b := New(testRegistry)
	signer := common.HexToAddress(testOwner)

	tests := []struct {
		name         string
		req          Request
		initCodeLen  int
		initCodeHash string
	}{
		{
			name:         "CxipERC721",
			req:          cxipRequest(),
			initCodeLen:  512,
			initCodeHash: "0x847d4ad26e58a36f72b99986d19651a1f345d08bcba06a781c073a4e93a3f74e",
		},
		{
			name:         "drop v2",
			req:          dropV2Request(),
			initCodeLen:  992,
			initCodeHash: "0x2b74a1cbea936909489308f7f55cd6bbdd703b7699e2965665a55007f622ea10",
		},
		{
			name:         "open edition v1",
			req:          openEditionV1Request(),
			initCodeLen:  1312,
			initCodeHash: "0x12970197c08a28f2838d56a176e08b2ecc0838210bec4b760d790c9f39624322",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := b.Build(tt.req)
			require.NoError(t, err)

			assert.Equal(t, "HolographERC721", ethereum.NamespaceName(cfg.ContractType))
			assert.Equal(t, uint32(1), cfg.ChainType)
			assert.Equal(t, common.BigToHash(common.Big1), common.Hash(cfg.Salt))
			assert.Equal(t, common.FromHex("0x6080604052"), cfg.ByteCode)
			assert.Len(t, cfg.InitCode, tt.initCodeLen)
			assert.Equal(t, tt.initCodeHash, ethereum.Keccak256(cfg.InitCode).Hex())
		})
	}

	t.Run("config hash", func(t *testing.T) {
		cfg, err := b.Build(cxipRequest())
		require.NoError(t, err)
		h := holograph.ComputeConfigHash(cfg, signer)
		assert.Equal(t, "0xba3c5b293b5ab65519011ebf525d0a7bdfb78aa755a8c02b5ccece85a61dc22a", h.Hex())
	})
}

func TestEditionsRendererInit(t *testing.T) {
	out, err := EditionsRendererInit("An open edition", "ipfs://image", "")
	require.NoError(t, err)
	assert.Len(t, out, 256)
	assert.Equal(t, "0xc2e936edb442404c2745b008b7af08afc3873c9b6a31badd198ec1569d9d97ca", ethereum.Keccak256(out).Hex())
}

func TestBuild_InitCodeLayers(t *testing.T) {
	b := New(testRegistry)
	cfg, err := b.Build(cxipRequest())
	require.NoError(t, err)

	outer, err := enforcerInitArgs.UnpackValues(cfg.InitCode)
	require.NoError(t, err)
	require.Len(t, outer, 6)
	assert.Equal(t, "Holograph Test", outer[0])
	assert.Equal(t, "HTEST", outer[1])
	assert.Equal(t, uint16(1000), outer[2])
	assert.Equal(t, 0, outer[3].(*big.Int).Sign())
	assert.Equal(t, false, outer[4])

	wrapped, err := wrappedInitArgs.UnpackValues(outer[5].([]byte))
	require.NoError(t, err)
	assert.Equal(t, "CxipERC721", ethereum.NamespaceName(wrapped[0].([32]byte)))
	assert.Equal(t, testRegistry, wrapped[1])
	assert.Equal(t, CxipInit(common.HexToAddress(testOwner)), wrapped[2])
}

func TestBuild_OpenEditionForcesUnlimitedSupply(t *testing.T) {
	b := New(testRegistry)

	for _, tmpl := range []Template{TemplateOpenEditionERC721, TemplateOpenEditionERC721V2} {
		t.Run(string(tmpl), func(t *testing.T) {
			req := openEditionV1Request()
			req.Template = tmpl
			a, err := b.Build(req)
			require.NoError(t, err)

			req.Drop.EditionSize = 1
			c, err := b.Build(req)
			require.NoError(t, err)
			assert.True(t, a.Equal(c))
		})
	}
}

func TestBuild_AllTemplatesDistinct(t *testing.T) {
	b := New(testRegistry)
	seen := make(map[string]Template)

	for _, tmpl := range Templates() {
		req := openEditionV1Request()
		req.Template = tmpl
		cfg, err := b.Build(req)
		require.NoError(t, err, tmpl)

		key := ethereum.Keccak256(cfg.InitCode).Hex()
		if prev, ok := seen[key]; ok {
			t.Fatalf("%s and %s produced the same init code", prev, tmpl)
		}
		seen[key] = tmpl
	}
}

func TestBuild_RegistryIsBound(t *testing.T) {
	a, err := New(testRegistry).Build(cxipRequest())
	require.NoError(t, err)
	b, err := New(common.HexToAddress("0x01")).Build(cxipRequest())
	require.NoError(t, err)
	assert.False(t, a.Equal(b))
}

func TestBuild_ConcurrentUse(t *testing.T) {
	b := New(testRegistry)
	want, err := b.Build(dropV2Request())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := b.Build(dropV2Request())
			assert.NoError(t, err)
			assert.True(t, want.Equal(got))
		}()
	}
	wg.Wait()
}

// ============================================
// Validation Tests
// ============================================

func TestBuild_ValidationErrors(t *testing.T) {
	b := New(testRegistry)

	tests := []struct {
		name   string
		mutate func(r *Request)
		field  string
	}{
		{name: "unknown template", mutate: func(r *Request) { r.Template = "ERC20" }, field: "template"},
		{name: "missing chain type", mutate: func(r *Request) { r.ChainType = 0 }, field: "chainType"},
		{name: "missing salt", mutate: func(r *Request) { r.Salt = "" }, field: "salt"},
		{name: "bad salt", mutate: func(r *Request) { r.Salt = "-5" }, field: "salt"},
		{name: "oversized salt", mutate: func(r *Request) { r.Salt = "0x" + strings.Repeat("ab", 33) }, field: "salt"},
		{name: "bytecode not hex", mutate: func(r *Request) { r.ByteCode = "0xzz" }, field: "byteCode"},
		{name: "bytecode odd length", mutate: func(r *Request) { r.ByteCode = "0x123" }, field: "byteCode"},
		{name: "renderer init odd length", mutate: func(r *Request) {
			r.Template = TemplateDropERC721V2
			r.OpenEdition = nil
			r.Drop.MetadataRendererInit = "0xc0ffe"
		}, field: "drop.metadataRendererInit"},
		{name: "merkle root too short", mutate: func(r *Request) { r.Drop.Sales.PresaleMerkleRoot = "0xabcd" }, field: "drop.sales.presaleMerkleRoot"},
		{name: "merkle root too long", mutate: func(r *Request) {
			r.Drop.Sales.PresaleMerkleRoot = "0x" + strings.Repeat("ab", 33)
		}, field: "drop.sales.presaleMerkleRoot"},
		{name: "malformed owner", mutate: func(r *Request) { r.Owner = "0x1234" }, field: "owner"},
		{name: "royalty above 100%", mutate: func(r *Request) { r.Collection.RoyaltyBps = 10001 }, field: "collection.royaltyBps"},
		{name: "missing name", mutate: func(r *Request) { r.Collection.Name = "" }, field: "collection.name"},
		{name: "event config not numeric", mutate: func(r *Request) { r.Collection.EventConfig = "0xff" }, field: "collection.eventConfig"},
		{name: "drop params missing", mutate: func(r *Request) { r.Drop = nil }, field: "drop"},
		{name: "open edition params missing", mutate: func(r *Request) { r.OpenEdition = nil }, field: "openEdition"},
		{name: "malformed funds recipient", mutate: func(r *Request) { r.Drop.FundsRecipient = "nope" }, field: "drop.fundsRecipient"},
		{name: "sale price overflows uint104", mutate: func(r *Request) {
			r.Drop.Sales.PublicSalePrice = new(big.Int).Lsh(big.NewInt(1), 104).String()
		}, field: "drop.sales.publicSalePrice"},
		{name: "sale ends before start", mutate: func(r *Request) { r.Drop.Sales.PublicSaleEnd = 1 }, field: "drop.sales.publicSaleEnd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := openEditionV1Request()
			tt.mutate(&req)

			cfg, err := b.Build(req)
			require.Error(t, err)
			assert.True(t, cfg.Equal(holograph.DeploymentConfig{}), "no partial config on error")

			var ve *holograph.ValidationError
			require.True(t, errors.As(err, &ve), "got %T: %v", err, err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestParseTemplate(t *testing.T) {
	for _, tmpl := range Templates() {
		got, err := ParseTemplate(string(tmpl))
		require.NoError(t, err)
		assert.Equal(t, tmpl, got)
	}

	_, err := ParseTemplate("HolographERC20")
	assert.Error(t, err)

	assert.False(t, TemplateCxipERC721.IsDrop())
	assert.True(t, TemplateDropERC721.IsDrop())
	assert.True(t, TemplateOpenEditionERC721V2.IsOpenEdition())
	assert.False(t, TemplateDropERC721V2.IsOpenEdition())
}

func TestBuild_PresaleMerkleRoot(t *testing.T) {
	root := "0x" + strings.Repeat("ab", 31) + "cd"
	req := dropV2Request()
	req.Drop.Sales.PresaleMerkleRoot = root

	sales, err := req.Drop.Sales.configuration()
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash(root), common.Hash(sales.PresaleMerkleRoot))

	cfg, err := New(testRegistry).Build(req)
	require.NoError(t, err)
	plain, err := New(testRegistry).Build(dropV2Request())
	require.NoError(t, err)
	assert.False(t, cfg.Equal(plain))
}
