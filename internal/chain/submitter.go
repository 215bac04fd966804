package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	holograph "github.com/holographxyz/holograph-sub000"
)

// DefaultDeployGasLimit is used when a TxContext leaves GasLimit unset.
const DefaultDeployGasLimit uint64 = 7_000_000

// TxContext carries the per-transaction nonce and gas parameters. Callers
// own it; the submitter keeps no nonce or gas state between calls.
type TxContext struct {
	Nonce     uint64
	GasFeeCap *big.Int
	GasTipCap *big.Int
	GasLimit  uint64
}

// Next returns the context for the following transaction from the same
// sender.
func (t TxContext) Next() TxContext {
	t.Nonce++
	return t
}

// Validate checks that the fee fields are usable.
func (t TxContext) Validate() error {
	if t.GasFeeCap == nil || t.GasFeeCap.Sign() <= 0 {
		return holograph.NewValidationError("gasFeeCap", "must be positive")
	}
	if t.GasTipCap == nil || t.GasTipCap.Sign() < 0 {
		return holograph.NewValidationError("gasTipCap", "must be non-negative")
	}
	if t.GasTipCap.Cmp(t.GasFeeCap) > 0 {
		return holograph.NewValidationError("gasTipCap", "exceeds gasFeeCap")
	}
	return nil
}

// Submitter signs and broadcasts deployment transactions for one sender.
type Submitter struct {
	client *Client
	key    *ecdsa.PrivateKey
	from   common.Address
	signer types.Signer
	logger *slog.Logger
}

// NewSubmitter creates a submitter sending from key on client's chain.
func NewSubmitter(client *Client, key *ecdsa.PrivateKey, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{
		client: client,
		key:    key,
		from:   crypto.PubkeyToAddress(key.PublicKey),
		signer: types.NewLondonSigner(new(big.Int).SetUint64(client.ChainID())),
		logger: logger,
	}
}

// From returns the sending address.
func (s *Submitter) From() common.Address {
	return s.from
}

// TxContext builds a context from the sender's current nonce and the
// node's fee suggestion.
func (s *Submitter) TxContext(ctx context.Context, gasLimit uint64) (TxContext, error) {
	nonce, err := s.client.Nonce(ctx, s.from)
	if err != nil {
		return TxContext{}, err
	}
	feeCap, tipCap, err := s.client.SuggestFees(ctx)
	if err != nil {
		return TxContext{}, err
	}
	return TxContext{
		Nonce:     nonce,
		GasFeeCap: feeCap,
		GasTipCap: tipCap,
		GasLimit:  gasLimit,
	}, nil
}

// Submit signs a dynamic-fee call to `to` under txc and broadcasts it.
func (s *Submitter) Submit(ctx context.Context, to common.Address, data []byte, txc TxContext) (common.Hash, error) {
	if err := txc.Validate(); err != nil {
		return common.Hash{}, err
	}
	gas := txc.GasLimit
	if gas == 0 {
		gas = DefaultDeployGasLimit
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(s.client.ChainID()),
		Nonce:     txc.Nonce,
		To:        &to,
		GasFeeCap: txc.GasFeeCap,
		GasTipCap: txc.GasTipCap,
		Gas:       gas,
		Data:      data,
	})
	signed, err := types.SignTx(tx, s.signer, s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}

	s.logger.Info("transaction submitted",
		slog.String("chain", s.client.Name()),
		slog.String("tx_hash", signed.Hash().Hex()),
		slog.String("to", to.Hex()),
		slog.Uint64("nonce", txc.Nonce),
	)
	return signed.Hash(), nil
}

// SubmitDeployment encodes d in its call shape and sends it to target,
// the factory for direct deploys or the operator for jobs.
func (s *Submitter) SubmitDeployment(ctx context.Context, target common.Address, d *holograph.Deployment, txc TxContext) (common.Hash, error) {
	data, err := holograph.Encode(d)
	if err != nil {
		return common.Hash{}, err
	}
	return s.Submit(ctx, target, data, txc)
}

// WaitForReceipt polls for the receipt of hash every poll interval until it
// is available or ctx ends.
func (s *Submitter) WaitForReceipt(ctx context.Context, hash common.Hash, poll time.Duration) (*types.Receipt, error) {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		receipt, err := s.client.Receipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
