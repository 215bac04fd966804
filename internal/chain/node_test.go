package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"

	"github.com/holographxyz/holograph-sub000/internal/config"
)

// fakeNode serves the subset of the eth namespace the chain package uses.
type fakeNode struct {
	mu        sync.Mutex
	chainID   uint64
	nonces    map[common.Address]uint64
	txs       map[common.Hash]*types.Transaction
	receipts  map[common.Hash]*types.Receipt
	hashAddrs map[common.Hash]common.Address
	failures  int // eth_chainId calls to fail before answering
	calls     int
}

func newFakeNode(chainID uint64) *fakeNode {
	return &fakeNode{
		chainID:   chainID,
		nonces:    make(map[common.Address]uint64),
		txs:       make(map[common.Hash]*types.Transaction),
		receipts:  make(map[common.Hash]*types.Receipt),
		hashAddrs: make(map[common.Hash]common.Address),
	}
}

type callArgs struct {
	To    *common.Address `json:"to"`
	Input hexutil.Bytes   `json:"input"`
	Data  hexutil.Bytes   `json:"data"`
}

func (n *fakeNode) ChainId() (hexutil.Uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.failures > 0 {
		n.failures--
		return 0, errors.New("node warming up")
	}
	return hexutil.Uint64(n.chainID), nil
}

func (n *fakeNode) GetTransactionCount(addr common.Address, block string) hexutil.Uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return hexutil.Uint64(n.nonces[addr])
}

func (n *fakeNode) GasPrice() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(10_000_000_000))
}

func (n *fakeNode) MaxPriorityFeePerGas() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(1_000_000_000))
}

func (n *fakeNode) GetTransactionByHash(hash common.Hash) *types.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.txs[hash]
}

func (n *fakeNode) GetTransactionReceipt(hash common.Hash) *types.Receipt {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.receipts[hash]
}

func (n *fakeNode) SendRawTransaction(raw hexutil.Bytes) (common.Hash, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, err
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return common.Hash{}, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if tx.Nonce() != n.nonces[from] {
		return common.Hash{}, errors.New("nonce too low")
	}
	n.nonces[from]++
	n.txs[tx.Hash()] = tx
	n.receipts[tx.Hash()] = &types.Receipt{
		Type:              tx.Type(),
		Status:            types.ReceiptStatusSuccessful,
		CumulativeGasUsed: 21000,
		Logs:              []*types.Log{},
		TxHash:            tx.Hash(),
		GasUsed:           21000,
		BlockNumber:       big.NewInt(1),
	}
	return tx.Hash(), nil
}

func (n *fakeNode) Call(args callArgs, block string) (hexutil.Bytes, error) {
	input := args.Input
	if len(input) == 0 {
		input = args.Data
	}
	if len(input) < 4 {
		return nil, errors.New("execution reverted")
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	switch {
	case bytes.Equal(input[:4], selector("getHolographedHashAddress(bytes32)")):
		addr := n.hashAddrs[common.BytesToHash(input[4:36])]
		return common.LeftPadBytes(addr.Bytes(), 32), nil
	case bytes.Equal(input[:4], selector("isHolographedContract(address)")):
		want := common.BytesToAddress(input[4:36])
		for _, addr := range n.hashAddrs {
			if addr == want {
				return common.LeftPadBytes([]byte{1}, 32), nil
			}
		}
		return make([]byte, 32), nil
	case bytes.Equal(input[:4], selector("getContractTypeAddress(bytes32)")):
		return common.LeftPadBytes(common.HexToAddress("0xc0ffee").Bytes(), 32), nil
	default:
		return nil, errors.New("execution reverted")
	}
}

func selector(sig string) []byte {
	return crypto.Keccak256([]byte(sig))[:4]
}

func (n *fakeNode) addTx(tx *types.Transaction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.txs[tx.Hash()] = tx
}

// startNode serves node over HTTP and returns a dialed client.
func startNode(t *testing.T, node *fakeNode, opts ...Option) (*Client, string) {
	t.Helper()
	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", node))
	hs := httptest.NewServer(srv)
	t.Cleanup(func() {
		hs.Close()
		srv.Stop()
	})

	c, err := Dial(context.Background(), config.ChainConfig{Name: "test", ChainID: node.chainID, RPCURL: hs.URL}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, hs.URL
}
