package chain

import (
	"context"
	"math/big"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/retry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	holograph "github.com/holographxyz/holograph-sub000"
	"github.com/holographxyz/holograph-sub000/internal/config"
)

const testChainID = 1338

var (
	testRegistry = common.HexToAddress("0xb47c0e0170306583aa979bf30c0407e2bfe234b2")
	testFactory  = common.HexToAddress("0x90425798cc0e33932f11edc3EeDBD4f3f88DFF64")
)

func fastRetry() Option {
	return WithRetry(3, retry.Fixed(time.Millisecond))
}

// ============================================
// Chain Type Table
// ============================================

func TestTable_Defaults(t *testing.T) {
	table := DefaultTable()

	ct, err := table.ChainType(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), ct)

	ct, err = table.ChainType(1338)
	require.NoError(t, err)
	assert.Equal(t, uint32(4294967294), ct)

	id, err := table.ChainID(4)
	require.NoError(t, err)
	assert.Equal(t, uint64(137), id)

	_, err = table.ChainType(999999)
	assert.ErrorIs(t, err, ErrUnknownChain)
	_, err = table.ChainID(12345)
	assert.ErrorIs(t, err, ErrUnknownChain)
}

func TestTable_Overrides(t *testing.T) {
	table := NewTable([]config.ChainConfig{
		{Name: "base", ChainID: 8453, ChainType: 9},
		{Name: "ethereum", ChainID: 1, ChainType: 100},
		{Name: "no-override", ChainID: 10},
	})

	ct, err := table.ChainType(8453)
	require.NoError(t, err)
	assert.Equal(t, uint32(9), ct)

	ct, err = table.ChainType(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), ct)

	_, err = table.ChainID(1)
	assert.ErrorIs(t, err, ErrUnknownChain, "replaced translation is gone in reverse")

	_, err = table.ChainType(10)
	assert.ErrorIs(t, err, ErrUnknownChain)

	ids := table.ChainIDs()
	assert.Contains(t, ids, uint64(8453))
	assert.IsIncreasing(t, ids)
}

// ============================================
// Client
// ============================================

func TestDial_ChainIDMismatch(t *testing.T) {
	node := newFakeNode(testChainID)
	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", node))
	hs := httptest.NewServer(srv)
	defer hs.Close()

	_, err := Dial(context.Background(), config.ChainConfig{Name: "wrong", ChainID: 1, RPCURL: hs.URL})
	assert.ErrorIs(t, err, ErrChainMismatch)
}

func TestDial_RetriesTransientFailures(t *testing.T) {
	node := newFakeNode(testChainID)
	node.failures = 2

	c, _ := startNode(t, node, fastRetry())
	assert.Equal(t, uint64(testChainID), c.ChainID())
	assert.Equal(t, 3, node.calls)
}

func TestDial_GivesUpAfterAttempts(t *testing.T) {
	node := newFakeNode(testChainID)
	node.failures = 10
	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", node))
	hs := httptest.NewServer(srv)
	defer hs.Close()

	_, err := Dial(context.Background(), config.ChainConfig{RPCURL: hs.URL}, fastRetry())
	assert.Error(t, err)
	assert.Equal(t, 3, node.calls)
}

func TestClient_TransactionInput(t *testing.T) {
	node := newFakeNode(testChainID)
	c, _ := startNode(t, node, fastRetry())

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	input := []byte{0xdf, 0x65, 0x16, 0xbd, 0x01, 0x02}
	tx, err := types.SignNewTx(key, types.NewLondonSigner(big.NewInt(testChainID)), &types.DynamicFeeTx{
		ChainID:   big.NewInt(testChainID),
		To:        &testFactory,
		Gas:       100000,
		GasFeeCap: big.NewInt(2),
		GasTipCap: big.NewInt(1),
		Data:      input,
	})
	require.NoError(t, err)
	node.addTx(tx)

	got, to, err := c.TransactionInput(context.Background(), tx.Hash())
	require.NoError(t, err)
	assert.Equal(t, input, got)
	require.NotNil(t, to)
	assert.Equal(t, testFactory, *to)

	_, _, err = c.TransactionInput(context.Background(), common.HexToHash("0x01"))
	assert.Error(t, err)
}

func TestClient_Registry(t *testing.T) {
	node := newFakeNode(testChainID)
	configHash := common.HexToHash("0xb96faa45e2ee4f5a1d1b54a1b5b8bbf1fe4f06ea2a5d4be1eb4c57ea0e3de7b2")
	deployed := common.HexToAddress("0x39fe1cb7ad2f74b82e91d252260fd7a441ac6977")
	node.hashAddrs[configHash] = deployed
	c, _ := startNode(t, node, fastRetry())
	ctx := context.Background()

	addr, err := c.HolographedAddress(ctx, testRegistry, configHash)
	require.NoError(t, err)
	assert.Equal(t, deployed, addr)

	addr, err = c.HolographedAddress(ctx, testRegistry, common.HexToHash("0x02"))
	require.NoError(t, err)
	assert.Equal(t, common.Address{}, addr)

	ok, err := c.IsHolographed(ctx, testRegistry, deployed)
	require.NoError(t, err)
	assert.True(t, ok)

	impl, err := c.ContractTypeAddress(ctx, testRegistry, [32]byte{})
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xc0ffee"), impl)
}

// ============================================
// Submitter
// ============================================

func TestTxContext_Validate(t *testing.T) {
	ok := TxContext{GasFeeCap: big.NewInt(10), GasTipCap: big.NewInt(1)}
	assert.NoError(t, ok.Validate())
	assert.Equal(t, uint64(1), ok.Next().Nonce)
	assert.Equal(t, uint64(0), ok.Nonce, "Next does not mutate the receiver")

	assert.Error(t, TxContext{}.Validate())
	assert.Error(t, TxContext{GasFeeCap: big.NewInt(1)}.Validate())
	assert.Error(t, TxContext{GasFeeCap: big.NewInt(1), GasTipCap: big.NewInt(2)}.Validate())
}

func TestSubmitter_SubmitAndWait(t *testing.T) {
	node := newFakeNode(testChainID)
	c, _ := startNode(t, node, fastRetry())
	ctx := context.Background()

	key, err := crypto.HexToECDSA("ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)
	s := NewSubmitter(c, key, nil)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), s.From())

	txc, err := s.TxContext(ctx, 500000)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), txc.Nonce)
	assert.Equal(t, big.NewInt(21_000_000_000), txc.GasFeeCap)
	assert.Equal(t, big.NewInt(1_000_000_000), txc.GasTipCap)

	d := &holograph.Deployment{
		Shape: holograph.ShapeDeploy,
		Config: holograph.DeploymentConfig{
			ChainType: 1,
			ByteCode:  []byte{0x60, 0x80},
			InitCode:  []byte{},
		},
		Signature: holograph.Signature{R: [32]byte{1}, S: [32]byte{2}, V: 27},
		Signer:    s.From(),
	}
	hash, err := s.SubmitDeployment(ctx, testFactory, d, txc)
	require.NoError(t, err)

	receipt, err := s.WaitForReceipt(ctx, hash, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, hash, receipt.TxHash)

	input, _, err := c.TransactionInput(ctx, hash)
	require.NoError(t, err)
	decoded, err := holograph.Decode(input)
	require.NoError(t, err)
	assert.True(t, decoded.Config.Equal(d.Config))

	// The caller advances the context; a reused nonce is refused by the node.
	_, err = s.Submit(ctx, testFactory, nil, txc)
	assert.Error(t, err)
	_, err = s.Submit(ctx, testFactory, nil, txc.Next())
	assert.NoError(t, err)
}

func TestSubmitter_RejectsInvalidContext(t *testing.T) {
	node := newFakeNode(testChainID)
	c, _ := startNode(t, node, fastRetry())
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	_, err = NewSubmitter(c, key, nil).Submit(context.Background(), testFactory, nil, TxContext{})
	assert.Error(t, err)
}

func TestSubmitter_WaitForReceiptHonorsContext(t *testing.T) {
	node := newFakeNode(testChainID)
	c, _ := startNode(t, node, fastRetry())
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = NewSubmitter(c, key, nil).WaitForReceipt(ctx, common.HexToHash("0x01"), time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
