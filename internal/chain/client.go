// Package chain talks to EVM nodes on behalf of the auditor and the
// deployment submitter: chain-type translation, registry lookups,
// transaction fetches and submission.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/retry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lmittmann/w3"
	"github.com/lmittmann/w3/module/eth"
	"github.com/lmittmann/w3/w3types"

	"github.com/holographxyz/holograph-sub000/internal/config"
	"github.com/holographxyz/holograph-sub000/internal/metrics"
)

const defaultAttempts = 3

// ErrChainMismatch is returned when a node reports a different chain id
// than the one configured for it.
var ErrChainMismatch = errors.New("chain: node chain id mismatch")

var (
	funcGetHolographedHashAddress = w3.MustNewFunc(
		"getHolographedHashAddress(bytes32)", "address",
	)
	funcIsHolographedContract = w3.MustNewFunc(
		"isHolographedContract(address)", "bool",
	)
	funcGetContractTypeAddress = w3.MustNewFunc(
		"getContractTypeAddress(bytes32)", "address",
	)
)

// Client is a retrying JSON-RPC client bound to one chain.
type Client struct {
	rpc      *w3.Client
	name     string
	chainID  uint64
	attempts int
	strategy retry.Strategy
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRetry sets the attempt count and backoff for read calls.
func WithRetry(attempts int, strategy retry.Strategy) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.strategy = strategy
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Dial connects to cfg.RPCURL and checks that the node serves cfg.ChainID.
// A zero ChainID accepts whatever the node reports.
func Dial(ctx context.Context, cfg config.ChainConfig, opts ...Option) (*Client, error) {
	rpc, err := w3.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	c := NewClient(rpc, cfg.Name, opts...)
	chainID, err := c.fetchChainID(ctx)
	if err != nil {
		rpc.Close()
		return nil, err
	}
	if cfg.ChainID != 0 && cfg.ChainID != chainID {
		rpc.Close()
		return nil, fmt.Errorf("%w: %s configured as %d, node reports %d", ErrChainMismatch, cfg.Name, cfg.ChainID, chainID)
	}
	c.chainID = chainID

	c.logger.Debug("connected to chain",
		slog.String("chain", cfg.Name),
		slog.Uint64("chain_id", chainID),
	)
	return c, nil
}

// NewClient wraps an existing w3 client. The chain id is unknown until
// Dial or SetChainID fills it in.
func NewClient(rpc *w3.Client, name string, opts ...Option) *Client {
	c := &Client{
		rpc:      rpc,
		name:     name,
		attempts: defaultAttempts,
		strategy: retry.Exponential(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the configured chain name.
func (c *Client) Name() string {
	return c.name
}

// ChainID returns the chain id reported by the node.
func (c *Client) ChainID() uint64 {
	return c.chainID
}

// SetChainID records the chain id without asking the node.
func (c *Client) SetChainID(id uint64) {
	c.chainID = id
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.rpc.Close()
}

func (c *Client) fetchChainID(ctx context.Context) (uint64, error) {
	var id uint64
	if err := c.call(ctx, "eth_chainId", eth.ChainID().Returns(&id)); err != nil {
		return 0, fmt.Errorf("get chain id: %w", err)
	}
	return id, nil
}

// call runs calls as one batch, retrying the whole batch on failure.
func (c *Client) call(ctx context.Context, method string, calls ...w3types.RPCCaller) error {
	start := time.Now()
	_, err := retry.Do(ctx, c.attempts, c.strategy, func() (struct{}, error) {
		err := c.rpc.CallCtx(ctx, calls...)
		if err != nil && ctx.Err() == nil {
			c.logger.Debug("chain call failed",
				slog.String("chain", c.name),
				slog.String("method", method),
				slog.String("error", err.Error()),
			)
		}
		return struct{}{}, err
	})
	metrics.ObserveChainCall(method, start, err)
	return err
}

// Nonce returns the pending-inclusive account nonce at the latest block.
func (c *Client) Nonce(ctx context.Context, addr common.Address) (uint64, error) {
	var nonce uint64
	if err := c.call(ctx, "eth_getTransactionCount", eth.Nonce(addr, nil).Returns(&nonce)); err != nil {
		return 0, fmt.Errorf("get nonce: %w", err)
	}
	return nonce, nil
}

// SuggestFees returns an EIP-1559 fee cap and tip cap: the tip the node
// suggests and twice the current gas price plus that tip.
func (c *Client) SuggestFees(ctx context.Context) (gasFeeCap, gasTipCap *big.Int, err error) {
	var gasPrice, tip *big.Int
	if err := c.call(ctx, "eth_gasPrice",
		eth.GasPrice().Returns(&gasPrice),
		eth.GasTipCap().Returns(&tip),
	); err != nil {
		return nil, nil, fmt.Errorf("suggest fees: %w", err)
	}
	feeCap := new(big.Int).Mul(gasPrice, big.NewInt(2))
	feeCap.Add(feeCap, tip)
	return feeCap, tip, nil
}

// Transaction fetches a transaction by hash.
func (c *Client) Transaction(ctx context.Context, hash common.Hash) (*types.Transaction, error) {
	var tx *types.Transaction
	if err := c.call(ctx, "eth_getTransactionByHash", eth.Tx(hash).Returns(&tx)); err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", hash.Hex(), err)
	}
	if tx == nil {
		return nil, fmt.Errorf("get transaction %s: not found", hash.Hex())
	}
	return tx, nil
}

// TransactionInput returns the call input and recipient of a transaction.
// The recipient is nil for contract creations.
func (c *Client) TransactionInput(ctx context.Context, hash common.Hash) ([]byte, *common.Address, error) {
	tx, err := c.Transaction(ctx, hash)
	if err != nil {
		return nil, nil, err
	}
	return tx.Data(), tx.To(), nil
}

// Receipt fetches a transaction receipt. It fails while the transaction is
// pending.
func (c *Client) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	if err := c.rpc.CallCtx(ctx, eth.TxReceipt(hash).Returns(&receipt)); err != nil {
		return nil, fmt.Errorf("get receipt %s: %w", hash.Hex(), err)
	}
	if receipt == nil {
		return nil, fmt.Errorf("get receipt %s: not found", hash.Hex())
	}
	return receipt, nil
}

// SendTransaction broadcasts a signed transaction. It is not retried: a
// resend of the same signed transaction is left to the caller.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	start := time.Now()
	err := c.rpc.CallCtx(ctx, eth.SendTx(tx).Returns(nil))
	metrics.ObserveChainCall("eth_sendRawTransaction", start, err)
	if err != nil {
		return fmt.Errorf("send tx: %w", err)
	}
	return nil
}

// HolographedAddress asks registry which contract was deployed for
// configHash. The zero address means none.
func (c *Client) HolographedAddress(ctx context.Context, registry common.Address, configHash common.Hash) (common.Address, error) {
	var addr common.Address
	if err := c.viewCall(ctx, registry, funcGetHolographedHashAddress, &addr, configHash); err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

// IsHolographed reports whether registry knows addr as a holographed
// contract.
func (c *Client) IsHolographed(ctx context.Context, registry, addr common.Address) (bool, error) {
	var ok bool
	if err := c.viewCall(ctx, registry, funcIsHolographedContract, &ok, addr); err != nil {
		return false, err
	}
	return ok, nil
}

// ContractTypeAddress resolves the implementation registered for a
// contract type tag.
func (c *Client) ContractTypeAddress(ctx context.Context, registry common.Address, contractType [32]byte) (common.Address, error) {
	var addr common.Address
	if err := c.viewCall(ctx, registry, funcGetContractTypeAddress, &addr, common.Hash(contractType)); err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

func (c *Client) viewCall(ctx context.Context, to common.Address, fn *w3.Func, out any, args ...any) error {
	var raw []byte
	if err := c.call(ctx, "eth_call", eth.Call(&w3types.Message{
		To:   &to,
		Func: fn,
		Args: args,
	}, nil, nil).Returns(&raw)); err != nil {
		return fmt.Errorf("call %s: %w", fn.Signature, err)
	}
	if err := fn.DecodeReturns(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", fn.Signature, err)
	}
	return nil
}
