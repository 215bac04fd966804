// Package audit composes the decoder, hasher, predictor and verifier into
// reports about deployment call input, optionally fetched from a chain.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	holograph "github.com/holographxyz/holograph-sub000"
	"github.com/holographxyz/holograph-sub000/internal/database"
	"github.com/holographxyz/holograph-sub000/internal/ethereum"
	"github.com/holographxyz/holograph-sub000/internal/metrics"
	"github.com/holographxyz/holograph-sub000/internal/pkg/ulid"
)

var (
	// ErrNoChain is returned when a transaction audit names a chain the
	// auditor has no client for.
	ErrNoChain = errors.New("audit: no client for chain")
	// ErrNoArchive is returned by archive lookups when no store is
	// configured.
	ErrNoArchive = errors.New("audit: no report archive configured")
	// ErrReportNotFound is returned for an unknown report id.
	ErrReportNotFound = errors.New("audit: report not found")
)

// Cache stores encoded reports. Get returns database.ErrCacheMiss for a
// missing key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Store archives reports and serves them back. GetByID returns nil, nil for
// an unknown id.
type Store interface {
	Create(ctx context.Context, report *Report) error
	GetByID(ctx context.Context, id string) (*Report, error)
	ListByConfigHash(ctx context.Context, configHash common.Hash) ([]*Report, error)
	ListBySigner(ctx context.Context, signer common.Address, limit int) ([]*Report, error)
}

// ChainReader is the chain access a transaction audit needs.
type ChainReader interface {
	ChainID() uint64
	TransactionInput(ctx context.Context, hash common.Hash) ([]byte, *common.Address, error)
	HolographedAddress(ctx context.Context, registry common.Address, configHash common.Hash) (common.Address, error)
	IsHolographed(ctx context.Context, registry, addr common.Address) (bool, error)
	ContractTypeAddress(ctx context.Context, registry common.Address, contractType [32]byte) (common.Address, error)
}

// Auditor produces audit reports. It is safe for concurrent use once
// constructed.
type Auditor struct {
	predictor        *holograph.Predictor
	enforcerBytecode []byte
	registry         common.Address
	chains           map[uint64]ChainReader
	cache            Cache
	cacheTTL         time.Duration
	store            Store
	logger           *slog.Logger
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithCache caches reports in c for ttl.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(a *Auditor) {
		a.cache = c
		a.cacheTTL = ttl
	}
}

// WithStore archives every fresh report in s.
func WithStore(s Store) Option {
	return func(a *Auditor) {
		a.store = s
	}
}

// WithChain registers a chain for transaction audits.
func WithChain(c ChainReader) Option {
	return func(a *Auditor) {
		a.chains[c.ChainID()] = c
	}
}

// WithRegistry sets the registry transaction audits check the contract type,
// the deployment and, without an expected address, its location against.
func WithRegistry(registry common.Address) Option {
	return func(a *Auditor) {
		a.registry = registry
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Auditor) {
		a.logger = logger
	}
}

// New creates an Auditor predicting addresses for factory and
// enforcerBytecode.
func New(factory common.Address, enforcerBytecode []byte, opts ...Option) *Auditor {
	a := &Auditor{
		predictor:        holograph.NewPredictor(factory, enforcerBytecode),
		enforcerBytecode: enforcerBytecode,
		chains:           make(map[uint64]ChainReader),
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Factory returns the default factory.
func (a *Auditor) Factory() common.Address {
	return a.predictor.Factory()
}

// Audit decodes raw and reports its config hash, the address factory would
// deploy it to and whether the signature holds. It touches no cache, store
// or network. Decode failures return no report.
func (a *Auditor) Audit(raw []byte, factory common.Address) (*Report, error) {
	shape, _ := holograph.ShapeOf(raw)
	d, err := holograph.Decode(raw)
	metrics.ObserveDecode(shape, err)
	if err != nil {
		return nil, err
	}

	configHash := holograph.ComputeConfigHash(d.Config, d.Signer)
	predicted := a.predictor.Predict(configHash)
	if factory != a.predictor.Factory() {
		predicted = holograph.PredictAddress(configHash, factory, a.enforcerBytecode)
	}

	mode, valid := holograph.DetectSigningMode(configHash, d.Signature, d.Signer)
	metrics.ObserveVerify(valid)

	report := &Report{
		ID:               ulid.NewPrefixed(ulid.KindAudit),
		Source:           SourceInput,
		CreatedAt:        time.Now().UTC(),
		InputHash:        ethereum.Keccak256(raw),
		Shape:            d.Shape,
		Config:           d.Config,
		ContractType:     ethereum.NamespaceName(d.Config.ContractType),
		Signer:           d.Signer,
		Signature:        d.Signature,
		Job:              d.Job,
		ConfigHash:       configHash,
		Factory:          factory,
		PredictedAddress: predicted,
		SignatureValid:   valid,
	}
	if valid {
		report.SigningMode = mode.String()
	}
	return report, nil
}

// AuditInput audits raw against the default factory, using the cache and
// archive when configured.
func (a *Auditor) AuditInput(ctx context.Context, raw []byte) (report *Report, err error) {
	start := time.Now()
	defer func() { metrics.ObserveAudit(string(SourceInput), start, err) }()

	factory := a.Factory()
	key := inputKey(factory, ethereum.Keccak256(raw))
	if cached := a.cached(ctx, key); cached != nil {
		return cached, nil
	}

	report, err = a.Audit(raw, factory)
	if err != nil {
		return nil, err
	}
	a.persist(ctx, key, report)
	return report, nil
}

// AuditTransaction fetches the input of txHash on chainID and audits it.
// Direct deploy calls are predicted against the transaction's recipient;
// operator jobs against the default factory.
//
// Only the input-derived report is cached. With a registry configured, every
// call asks it whether the contract type is registered, whether the
// predicted address is deployed and, when expected is nil, where the config
// hash was deployed; expected is then compared against that.
func (a *Auditor) AuditTransaction(ctx context.Context, chainID uint64, txHash common.Hash, expected *common.Address) (report *Report, err error) {
	start := time.Now()
	defer func() { metrics.ObserveAudit(string(SourceTransaction), start, err) }()

	chain, ok := a.chains[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoChain, chainID)
	}

	key := txKey(chainID, txHash)
	report = a.cached(ctx, key)
	fresh := report == nil
	if fresh {
		report, err = a.auditTransactionInput(ctx, chain, txHash)
		if err != nil {
			return nil, err
		}
		a.cacheReport(ctx, key, report)
	} else {
		report.clearChecks()
	}

	a.checkRegistry(ctx, chain, report, expected)
	if fresh {
		a.archive(ctx, report)
	}
	return report, nil
}

func (a *Auditor) auditTransactionInput(ctx context.Context, chain ChainReader, txHash common.Hash) (*Report, error) {
	raw, to, err := chain.TransactionInput(ctx, txHash)
	if err != nil {
		return nil, err
	}

	factory := a.Factory()
	if shape, err := holograph.ShapeOf(raw); err == nil && shape != holograph.ShapeJob && to != nil {
		factory = *to
	}

	report, err := a.Audit(raw, factory)
	if err != nil {
		return nil, err
	}
	report.Source = SourceTransaction
	report.ChainID = chain.ChainID()
	report.TxHash = &txHash
	return report, nil
}

// checkRegistry fills the live checks on report. Registry failures are
// logged and leave the affected field unset.
func (a *Auditor) checkRegistry(ctx context.Context, chain ChainReader, report *Report, expected *common.Address) {
	if a.registry != (common.Address{}) {
		impl, err := chain.ContractTypeAddress(ctx, a.registry, report.Config.ContractType)
		if err != nil {
			a.registryFailed(report, "getContractTypeAddress", err)
		} else {
			report.Implementation = &impl
		}

		deployed, err := chain.IsHolographed(ctx, a.registry, report.PredictedAddress)
		if err != nil {
			a.registryFailed(report, "isHolographedContract", err)
		} else {
			report.Deployed = &deployed
		}

		if expected == nil {
			at, err := chain.HolographedAddress(ctx, a.registry, report.ConfigHash)
			if err != nil {
				a.registryFailed(report, "getHolographedHashAddress", err)
			} else if at != (common.Address{}) {
				expected = &at
			}
		}
	}
	if expected != nil {
		report.Compare(*expected)
	}
}

func (a *Auditor) registryFailed(report *Report, call string, err error) {
	a.logger.Warn("registry lookup failed",
		slog.String("call", call),
		slog.Uint64("chain_id", report.ChainID),
		slog.String("config_hash", report.ConfigHash.Hex()),
		slog.String("error", err.Error()),
	)
}

// ArchivedReport returns an archived report by id.
func (a *Auditor) ArchivedReport(ctx context.Context, id string) (*Report, error) {
	if a.store == nil {
		return nil, ErrNoArchive
	}
	report, err := a.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	return report, nil
}

// ReportsForConfig returns the archived reports for configHash, newest
// first.
func (a *Auditor) ReportsForConfig(ctx context.Context, configHash common.Hash) ([]*Report, error) {
	if a.store == nil {
		return nil, ErrNoArchive
	}
	return a.store.ListByConfigHash(ctx, configHash)
}

// ReportsBySigner returns up to limit archived reports for signer, newest
// first. The store caps limit.
func (a *Auditor) ReportsBySigner(ctx context.Context, signer common.Address, limit int) ([]*Report, error) {
	if a.store == nil {
		return nil, ErrNoArchive
	}
	return a.store.ListBySigner(ctx, signer, limit)
}

func (a *Auditor) cached(ctx context.Context, key string) *Report {
	if a.cache == nil {
		return nil
	}
	raw, err := a.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, database.ErrCacheMiss) {
			a.logger.Warn("report cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		metrics.ObserveCacheLookup(false)
		return nil
	}

	var report Report
	if err := json.Unmarshal(raw, &report); err != nil {
		a.logger.Warn("discarding undecodable cached report", slog.String("key", key), slog.String("error", err.Error()))
		metrics.ObserveCacheLookup(false)
		return nil
	}
	metrics.ObserveCacheLookup(true)
	return &report
}

// persist caches and archives a fresh report.
func (a *Auditor) persist(ctx context.Context, key string, report *Report) {
	a.cacheReport(ctx, key, report)
	a.archive(ctx, report)
}

// cacheReport stores report as it is now. Failures are logged; the report
// stays valid without the cache.
func (a *Auditor) cacheReport(ctx context.Context, key string, report *Report) {
	if a.cache == nil {
		return
	}
	raw, err := json.Marshal(report)
	if err == nil {
		err = a.cache.Set(ctx, key, raw, a.cacheTTL)
	}
	if err != nil {
		a.logger.Warn("report cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// archive records a completed report. Failures are logged.
func (a *Auditor) archive(ctx context.Context, report *Report) {
	if a.store != nil {
		if err := a.store.Create(ctx, report); err != nil {
			a.logger.Error("failed to archive audit report",
				slog.String("report_id", report.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	a.logger.Info("audit complete",
		slog.String("report_id", report.ID),
		slog.String("shape", string(report.Shape)),
		slog.String("config_hash", report.ConfigHash.Hex()),
		slog.String("predicted_address", strings.ToLower(report.PredictedAddress.Hex())),
		slog.Bool("signature_valid", report.SignatureValid),
	)
}

func inputKey(factory common.Address, inputHash common.Hash) string {
	return fmt.Sprintf("audit:input:%s:%s", strings.ToLower(factory.Hex()), inputHash.Hex())
}

func txKey(chainID uint64, txHash common.Hash) string {
	return fmt.Sprintf("audit:tx:%d:%s", chainID, txHash.Hex())
}
