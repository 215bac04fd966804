package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	holograph "github.com/holographxyz/holograph-sub000"
	"github.com/holographxyz/holograph-sub000/internal/audit"
	"github.com/holographxyz/holograph-sub000/internal/ethereum"
)

// fakeDB records queries and serves canned rows.
type fakeDB struct {
	rows     *fakeRows
	row      fakeRow
	queryErr error
	sql      string
	args     []any
}

func (f *fakeDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.sql, f.args = sql, args
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.rows, nil
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.sql, f.args = sql, args
	return f.row
}

// fakeRows yields one report column per row.
type fakeRows struct {
	bodies [][]byte
	pos    int
	err    error
	closed bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return [][]byte{r.bodies[r.pos-1]} }
func (r *fakeRows) Values() ([]any, error)                       { return []any{r.bodies[r.pos-1]}, nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.bodies) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	if len(dest) != 1 {
		return fmt.Errorf("scan: want 1 destination, got %d", len(dest))
	}
	body, ok := dest[0].(*[]byte)
	if !ok {
		return fmt.Errorf("scan: unexpected destination %T", dest[0])
	}
	*body = r.bodies[r.pos-1]
	return nil
}

type fakeRow struct {
	body []byte
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*[]byte) = r.body
	return nil
}

func encodeReports(t *testing.T, reports ...*audit.Report) [][]byte {
	t.Helper()
	var out [][]byte
	for _, r := range reports {
		body, err := json.Marshal(r)
		require.NoError(t, err)
		out = append(out, body)
	}
	return out
}

func testReport() *audit.Report {
	txHash := common.HexToHash("0xabc")
	return &audit.Report{
		ID:        "aud_01HV0000000000000000000000",
		Source:    audit.SourceTransaction,
		CreatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		InputHash: common.HexToHash("0x01"),
		Shape:     holograph.ShapeDeploy,
		Config: holograph.DeploymentConfig{
			ContractType: ethereum.MustNamespace("HolographERC721"),
			ChainType:    1,
			ByteCode:     []byte{0x60},
			InitCode:     []byte{},
		},
		ContractType:     "HolographERC721",
		Signer:           common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		Signature:        holograph.Signature{R: [32]byte{1}, S: [32]byte{2}, V: 28},
		ConfigHash:       common.HexToHash("0xb96faa45d3fe124caef7ebdf18dc359e3e7293e25c1f8007e26f9a294f05e7b2"),
		Factory:          common.HexToAddress("0x90425798cc0e33932f11edc3EeDBD4f3f88DFF64"),
		PredictedAddress: common.HexToAddress("0x39fe1cb7ad2f74b82e91d252260fd7a441ac6977"),
		SignatureValid:   true,
		SigningMode:      "raw",
		ChainID:          1,
		TxHash:           &txHash,
	}
}

func TestToRow(t *testing.T) {
	r := testReport()
	r.Compare(r.PredictedAddress)

	row, err := toRow(r)
	require.NoError(t, err)

	assert.Equal(t, r.ID, row.ID)
	assert.Equal(t, "deploy", row.Shape)
	assert.Equal(t, int64(1), row.ChainType)
	require.NotNil(t, row.ChainID)
	assert.Equal(t, int64(1), *row.ChainID)
	assert.Len(t, row.TxHash, 32)
	assert.Len(t, row.Signer, 20)
	assert.Len(t, row.ExpectedAddress, 20)
	require.NotNil(t, row.SigningMode)
	assert.Equal(t, "raw", *row.SigningMode)

	back, err := fromJSON(row.Report)
	require.NoError(t, err)
	assert.Equal(t, r.ConfigHash, back.ConfigHash)
	assert.True(t, back.Config.Equal(r.Config))
	assert.Equal(t, r.Signature, back.Signature)
	require.NotNil(t, back.AddressMatches)
	assert.True(t, *back.AddressMatches)
}

func TestToRow_InputAudit(t *testing.T) {
	r := testReport()
	r.Source = audit.SourceInput
	r.ChainID = 0
	r.TxHash = nil
	r.SigningMode = ""
	r.SignatureValid = false

	row, err := toRow(r)
	require.NoError(t, err)
	assert.Nil(t, row.ChainID)
	assert.Nil(t, row.TxHash)
	assert.Nil(t, row.ExpectedAddress)
	assert.Nil(t, row.SigningMode)
	assert.False(t, row.SignatureValid)
}

func TestFromJSON_Invalid(t *testing.T) {
	_, err := fromJSON([]byte(`{"config": 5}`))
	assert.Error(t, err)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, maxListLimit, clampLimit(0))
	assert.Equal(t, maxListLimit, clampLimit(-1))
	assert.Equal(t, maxListLimit, clampLimit(1000))
	assert.Equal(t, 25, clampLimit(25))
}

// ============================================
// Query Tests
// ============================================

func TestListByConfigHash_ScansRows(t *testing.T) {
	newer := testReport()
	older := testReport()
	older.ID = "aud_01HU0000000000000000000000"
	older.SignatureValid = false

	db := &fakeDB{rows: &fakeRows{bodies: encodeReports(t, newer, older)}}
	repo := &reportRepo{db: db}

	got, err := repo.ListByConfigHash(context.Background(), newer.ConfigHash)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.ID, got[0].ID)
	assert.Equal(t, older.ID, got[1].ID)
	assert.False(t, got[1].SignatureValid)
	assert.True(t, got[0].Config.Equal(newer.Config))
	assert.Equal(t, newer.Signature, got[0].Signature)

	assert.Contains(t, db.sql, "WHERE config_hash = $1")
	assert.Equal(t, []any{newer.ConfigHash.Bytes(), maxListLimit}, db.args)
	assert.True(t, db.rows.closed)
}

func TestListBySigner_ClampsLimit(t *testing.T) {
	signer := testReport().Signer
	tests := []struct {
		limit int
		want  int
	}{
		{limit: 0, want: maxListLimit},
		{limit: 10, want: 10},
		{limit: 5000, want: maxListLimit},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("limit %d", tt.limit), func(t *testing.T) {
			db := &fakeDB{rows: &fakeRows{}}
			repo := &reportRepo{db: db}

			got, err := repo.ListBySigner(context.Background(), signer, tt.limit)
			require.NoError(t, err)
			assert.Empty(t, got)
			assert.Contains(t, db.sql, "WHERE signer = $1")
			assert.Equal(t, []any{signer.Bytes(), tt.want}, db.args)
		})
	}
}

func TestList_Errors(t *testing.T) {
	ctx := context.Background()
	hash := common.HexToHash("0x01")

	t.Run("query", func(t *testing.T) {
		repo := &reportRepo{db: &fakeDB{queryErr: errors.New("connection reset")}}
		_, err := repo.ListByConfigHash(ctx, hash)
		assert.EqualError(t, err, "connection reset")
	})

	t.Run("undecodable row", func(t *testing.T) {
		rows := &fakeRows{bodies: append(encodeReports(t, testReport()), []byte(`{"config": 5}`))}
		repo := &reportRepo{db: &fakeDB{rows: rows}}
		_, err := repo.ListByConfigHash(ctx, hash)
		assert.ErrorContains(t, err, "decode report")
		assert.True(t, rows.closed)
	})

	t.Run("iteration", func(t *testing.T) {
		rows := &fakeRows{bodies: encodeReports(t, testReport()), err: errors.New("conn closed")}
		repo := &reportRepo{db: &fakeDB{rows: rows}}
		_, err := repo.ListByConfigHash(ctx, hash)
		assert.EqualError(t, err, "conn closed")
	})
}

func TestGetByID(t *testing.T) {
	ctx := context.Background()
	want := testReport()

	db := &fakeDB{row: fakeRow{body: encodeReports(t, want)[0]}}
	got, err := (&reportRepo{db: db}).GetByID(ctx, want.ID)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, []any{want.ID}, db.args)

	missing, err := (&reportRepo{db: &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}}).GetByID(ctx, "aud_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = (&reportRepo{db: &fakeDB{row: fakeRow{err: errors.New("timeout")}}}).GetByID(ctx, want.ID)
	assert.EqualError(t, err, "timeout")
}
