// Package repository provides data access layer implementations.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/holographxyz/holograph-sub000/internal/audit"
	"github.com/holographxyz/holograph-sub000/internal/pkg/ulid"
)

const maxListLimit = 100

// ReportRepository archives audit reports.
type ReportRepository interface {
	Create(ctx context.Context, report *audit.Report) error
	GetByID(ctx context.Context, id string) (*audit.Report, error)
	ListByConfigHash(ctx context.Context, configHash common.Hash) ([]*audit.Report, error)
	ListBySigner(ctx context.Context, signer common.Address, limit int) ([]*audit.Report, error)
}

// dbtx is the part of *pgxpool.Pool the repository queries through.
type dbtx interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type reportRepo struct {
	db dbtx
}

// NewReportRepository creates a new audit report repository.
func NewReportRepository(pool *pgxpool.Pool) ReportRepository {
	return &reportRepo{db: pool}
}

var _ ReportRepository = (*reportRepo)(nil)
var _ audit.Store = (*reportRepo)(nil)

// reportRow is the column form of a report. The full report is kept as
// JSON; the other columns exist for lookups.
type reportRow struct {
	ID               string
	InputHash        []byte
	Shape            string
	ChainID          *int64
	TxHash           []byte
	ConfigHash       []byte
	ContractType     string
	ChainType        int64
	Signer           []byte
	Factory          []byte
	PredictedAddress []byte
	ExpectedAddress  []byte
	SignatureValid   bool
	SigningMode      *string
	Report           []byte
}

func toRow(r *audit.Report) (reportRow, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return reportRow{}, fmt.Errorf("encode report: %w", err)
	}

	row := reportRow{
		ID:               r.ID,
		InputHash:        r.InputHash.Bytes(),
		Shape:            string(r.Shape),
		ConfigHash:       r.ConfigHash.Bytes(),
		ContractType:     r.ContractType,
		ChainType:        int64(r.Config.ChainType),
		Signer:           r.Signer.Bytes(),
		Factory:          r.Factory.Bytes(),
		PredictedAddress: r.PredictedAddress.Bytes(),
		SignatureValid:   r.SignatureValid,
		Report:           body,
	}
	if r.ChainID != 0 {
		id := int64(r.ChainID)
		row.ChainID = &id
	}
	if r.TxHash != nil {
		row.TxHash = r.TxHash.Bytes()
	}
	if r.ExpectedAddress != nil {
		row.ExpectedAddress = r.ExpectedAddress.Bytes()
	}
	if r.SigningMode != "" {
		mode := r.SigningMode
		row.SigningMode = &mode
	}
	return row, nil
}

func fromJSON(body []byte) (*audit.Report, error) {
	var r audit.Report
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}

// Create inserts a report, assigning an id when it has none.
func (r *reportRepo) Create(ctx context.Context, report *audit.Report) error {
	if report.ID == "" {
		report.ID = ulid.NewPrefixed(ulid.KindAudit)
	}
	row, err := toRow(report)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO audit_reports (id, input_hash, shape, chain_id, tx_hash, config_hash, contract_type, chain_type,
			signer, factory, predicted_address, expected_address, signature_valid, signing_mode, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at`

	err = r.db.QueryRow(ctx, query,
		row.ID,
		row.InputHash,
		row.Shape,
		row.ChainID,
		row.TxHash,
		row.ConfigHash,
		row.ContractType,
		row.ChainType,
		row.Signer,
		row.Factory,
		row.PredictedAddress,
		row.ExpectedAddress,
		row.SignatureValid,
		row.SigningMode,
		row.Report,
	).Scan(&report.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Already archived under this id.
		return nil
	}
	return err
}

// GetByID retrieves a report by id. A missing report returns nil, nil.
func (r *reportRepo) GetByID(ctx context.Context, id string) (*audit.Report, error) {
	query := `SELECT report FROM audit_reports WHERE id = $1`

	var body []byte
	err := r.db.QueryRow(ctx, query, id).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fromJSON(body)
}

// ListByConfigHash returns every report for a config hash, newest first.
func (r *reportRepo) ListByConfigHash(ctx context.Context, configHash common.Hash) ([]*audit.Report, error) {
	query := `
		SELECT report FROM audit_reports
		WHERE config_hash = $1
		ORDER BY created_at DESC
		LIMIT $2`

	return r.list(ctx, query, configHash.Bytes(), maxListLimit)
}

// ListBySigner returns the latest reports for a signer, newest first.
func (r *reportRepo) ListBySigner(ctx context.Context, signer common.Address, limit int) ([]*audit.Report, error) {
	query := `
		SELECT report FROM audit_reports
		WHERE signer = $1
		ORDER BY created_at DESC
		LIMIT $2`

	return r.list(ctx, query, signer.Bytes(), clampLimit(limit))
}

func (r *reportRepo) list(ctx context.Context, query string, args ...any) ([]*audit.Report, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReports(rows)
}

// scanReports decodes the report column of every row.
func scanReports(rows pgx.Rows) ([]*audit.Report, error) {
	var reports []*audit.Report
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		report, err := fromJSON(body)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
