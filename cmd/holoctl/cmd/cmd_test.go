package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	holograph "github.com/holographxyz/holograph-sub000"
	"github.com/holographxyz/holograph-sub000/builder"
	"github.com/holographxyz/holograph-sub000/internal/audit"
	"github.com/holographxyz/holograph-sub000/internal/config"
	"github.com/holographxyz/holograph-sub000/internal/ethereum"
	"github.com/holographxyz/holograph-sub000/internal/jsonrpc"
)

// ============================================
// Test Helpers
// ============================================

const (
	testFactory    = "0xa3ddc040d3baf4af5e9de7ec8b4f17f11f5a4c8a"
	testEnforcer   = "0x6080604052"
	testRegistry   = "0xb47c0e0170306583aa979bf30c0407e2bfe234b2"
	testSigner     = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
	testPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

	goldenConfigHash = "0xb96faa45d3fe124caef7ebdf18dc359e3e7293e25c1f8007e26f9a294f05e7b2"
	goldenAddress    = "0x39fe1cb7ad2f74b82e91d252260fd7a441ac6977"
)

func testConfig() holograph.DeploymentConfig {
	initCode := make([]byte, 70)
	for i := range initCode {
		initCode[i] = byte(i)
	}
	return holograph.DeploymentConfig{
		ContractType: ethereum.MustNamespace("HolographERC721"),
		ChainType:    1,
		Salt:         common.BigToHash(common.Big1),
		ByteCode:     common.FromHex("0x6080604052"),
		InitCode:     initCode,
	}
}

// signedInput returns deploy call input for testConfig signed by the first
// development key.
func signedInput(t *testing.T) string {
	t.Helper()
	signer, err := holograph.NewLocalSignerFromHex(testPrivateKey)
	require.NoError(t, err)
	hash := holograph.ComputeConfigHash(testConfig(), signer.Address())
	sig, err := holograph.Sign(context.Background(), hash, signer, holograph.RawHash)
	require.NoError(t, err)
	input, err := holograph.EncodeDeployCall(testConfig(), sig, signer.Address())
	require.NoError(t, err)
	return ethereum.EncodeBytes(input)
}

// run executes holoctl in an empty directory so no config file is found.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	var out, stderr bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func protocolFlags(args ...string) []string {
	return append(args, "--factory", testFactory, "--enforcer-bytecode", testEnforcer)
}

// ============================================
// Hash / Predict Tests
// ============================================

func TestHash_FromInput(t *testing.T) {
	out, err := run(t, "", "hash", "--input", signedInput(t))
	require.NoError(t, err)
	assert.Equal(t, goldenConfigHash, strings.TrimSpace(out))
}

func TestHash_FromDeploymentJSON(t *testing.T) {
	raw, err := json.Marshal(map[string]interface{}{"config": testConfig()})
	require.NoError(t, err)

	out, err := run(t, string(raw), "hash", "--deployment", "-", "--signer", testSigner)
	require.NoError(t, err)
	assert.Equal(t, goldenConfigHash, strings.TrimSpace(out))
}

func TestHash_RequiresSigner(t *testing.T) {
	raw, err := json.Marshal(testConfig())
	require.NoError(t, err)

	_, err = run(t, string(raw), "hash", "--deployment", "-")
	var ve *holograph.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "signer", ve.Field)
}

func TestPredict(t *testing.T) {
	t.Run("from hash", func(t *testing.T) {
		out, err := run(t, "", protocolFlags("predict", goldenConfigHash)...)
		require.NoError(t, err)
		assert.Equal(t, goldenAddress, strings.TrimSpace(out))
	})

	t.Run("from input", func(t *testing.T) {
		out, err := run(t, "", protocolFlags("predict", "--input", signedInput(t), "--json")...)
		require.NoError(t, err)

		var got struct {
			ConfigHash common.Hash    `json:"configHash"`
			Address    common.Address `json:"address"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, goldenConfigHash, ethereum.EncodeHash(got.ConfigHash))
		assert.Equal(t, goldenAddress, ethereum.EncodeAddress(got.Address))
	})

	t.Run("missing factory", func(t *testing.T) {
		_, err := run(t, "", "predict", goldenConfigHash, "--enforcer-bytecode", testEnforcer)
		var ve *holograph.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "protocol.factory", ve.Field)
	})
}

// ============================================
// Sign / Verify Tests
// ============================================

func TestSignThenVerify(t *testing.T) {
	for _, mode := range []string{"raw", "prefixed"} {
		t.Run(mode, func(t *testing.T) {
			out, err := run(t, "", "sign", goldenConfigHash, "--mode", mode)
			require.NoError(t, err)
			packed := strings.TrimSpace(out)
			assert.Len(t, packed, 2+130)

			out, err = run(t, "", "verify", goldenConfigHash, "--signature", packed, "--signer", testSigner)
			require.NoError(t, err)
			assert.Contains(t, out, "valid")
			assert.Contains(t, out, mode)
		})
	}
}

func TestSign_EncodeProducesFixtureInput(t *testing.T) {
	raw, err := json.Marshal(testConfig())
	require.NoError(t, err)

	out, err := run(t, string(raw), "sign", "--deployment", "-", "--encode")
	require.NoError(t, err)
	assert.Equal(t, signedInput(t), strings.TrimSpace(out))
}

func TestSign_ConfirmDeclined(t *testing.T) {
	_, err := run(t, "n\n", "sign", goldenConfigHash, "--confirm")
	assert.ErrorIs(t, err, holograph.ErrSignatureRejected)
}

func TestSign_ConfirmAccepted(t *testing.T) {
	out, err := run(t, "yes\n", "sign", goldenConfigHash, "--confirm")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out), "0x"))
}

func TestSign_KeyFlag(t *testing.T) {
	out, err := run(t, "", "sign", goldenConfigHash, "--key", "dev-1", "--json")
	require.NoError(t, err)

	var got signOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"), got.Signer)
	assert.Equal(t, "raw", got.Mode)
}

func TestVerify_WrongSigner(t *testing.T) {
	out, err := run(t, "", "sign", goldenConfigHash)
	require.NoError(t, err)

	_, err = run(t, "", "verify", goldenConfigHash,
		"--signature", strings.TrimSpace(out),
		"--signer", "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
	)
	assert.ErrorIs(t, err, holograph.ErrVerificationFailed)
}

// ============================================
// Decode / Audit Tests
// ============================================

func TestDecode(t *testing.T) {
	out, err := run(t, "", "decode", signedInput(t))
	require.NoError(t, err)
	assert.Contains(t, out, "HolographERC721")
	assert.Contains(t, out, goldenConfigHash)
	assert.Contains(t, out, testSigner)
}

func TestDecode_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.hex")
	require.NoError(t, os.WriteFile(path, []byte(signedInput(t)+"\n"), 0o600))

	out, err := run(t, "", "decode", "@"+path, "--json")
	require.NoError(t, err)

	var d holograph.Deployment
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.True(t, testConfig().Equal(d.Config))
}

func TestDecode_UnknownSelector(t *testing.T) {
	_, err := run(t, "", "decode", "0xdeadbeef")
	assert.ErrorIs(t, err, holograph.ErrUnknownSelector)
}

func TestAuditInput(t *testing.T) {
	out, err := run(t, "", protocolFlags("audit", "input", signedInput(t))...)
	require.NoError(t, err)

	var report struct {
		ConfigHash       common.Hash    `json:"configHash"`
		PredictedAddress common.Address `json:"predictedAddress"`
		SignatureValid   bool           `json:"signatureValid"`
		SigningMode      string         `json:"signingMode"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, goldenConfigHash, ethereum.EncodeHash(report.ConfigHash))
	assert.Equal(t, goldenAddress, ethereum.EncodeAddress(report.PredictedAddress))
	assert.True(t, report.SignatureValid)
	assert.Equal(t, "raw", report.SigningMode)
}

func TestAuditTx_UnconfiguredChain(t *testing.T) {
	_, err := run(t, "", protocolFlags("audit", "tx", "mainnet", goldenConfigHash)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestAuditShow_WithoutArchive(t *testing.T) {
	_, err := run(t, "", protocolFlags("audit", "show", "aud_01HV0000000000000000000000")...)
	assert.ErrorIs(t, err, audit.ErrNoArchive)
}

func TestAuditHistory_Selectors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{name: "neither", args: nil},
		{name: "both", args: []string{"--config-hash", goldenConfigHash, "--signer", testSigner}},
		{name: "bad hash", args: []string{"--config-hash", "0x1234"}},
		{name: "by config without archive", args: []string{"--config-hash", goldenConfigHash}, wantErr: audit.ErrNoArchive},
		{name: "by signer without archive", args: []string{"--signer", testSigner}, wantErr: audit.ErrNoArchive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := protocolFlags(append([]string{"audit", "history"}, tt.args...)...)
			_, err := run(t, "", args...)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			var ve *holograph.ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
}

// ============================================
// Build Tests
// ============================================

func TestBuild_CxipRequest(t *testing.T) {
	req := builder.Request{
		Template:  builder.TemplateCxipERC721,
		ChainType: 1,
		Salt:      "1",
		ByteCode:  "0x6080604052",
		Owner:     testSigner,
		Collection: builder.Collection{
			Name:       "Holograph Test",
			Symbol:     "HTEST",
			RoyaltyBps: 1000,
		},
	}
	raw, err := json.Marshal(req)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "request.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	out, err := run(t, "", protocolFlags("build", "@"+path, "--signer", testSigner, "--registry", testRegistry)...)
	require.NoError(t, err)

	var got buildOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, builder.TemplateCxipERC721, got.Template)
	assert.Len(t, got.Config.InitCode, 512)
	require.NotNil(t, got.ConfigHash)
	assert.Equal(t, "0xba3c5b293b5ab65519011ebf525d0a7bdfb78aa755a8c02b5ccece85a61dc22a", ethereum.EncodeHash(*got.ConfigHash))
	require.NotNil(t, got.SigningDigest)
	assert.Equal(t, *got.ConfigHash, *got.SigningDigest)
	assert.NotNil(t, got.PredictedAddress)
}

func TestBuild_InvalidRequest(t *testing.T) {
	_, err := run(t, `{"template":"CxipERC721"}`, "build", "-")
	var ve *holograph.ValidationError
	require.True(t, errors.As(err, &ve))
}

// ============================================
// Config / Keys Tests
// ============================================

func TestConfigShow_MasksSecrets(t *testing.T) {
	t.Setenv("HOLOGRAPH_SIGNER_PRIVATE_KEY", testPrivateKey)

	out, err := run(t, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "# config file:")
	assert.Contains(t, out, "signing_mode: raw")
	assert.Contains(t, out, masked)
	assert.NotContains(t, out, strings.TrimPrefix(testPrivateKey, "0x"))
}

func TestConfigShow_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "holograph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("protocol:\n  factory: "+testFactory+"\n  signing_mode: prefixed\n"), 0o600))

	out, err := run(t, "", "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.Contains(t, out, "signing_mode: prefixed")
	assert.Contains(t, out, testFactory)
}

func TestConfig_InvalidSigningMode(t *testing.T) {
	_, err := run(t, "", "config", "show", "--signing-mode", "eip712")
	var ve *holograph.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "signing_mode", ve.Field)
}

func TestKeysList(t *testing.T) {
	out, err := run(t, "", "keys", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	for _, name := range []string{"dev-0", "dev-1", "dev-2"} {
		assert.Contains(t, out, name)
	}
}

func TestKeysList_ConfiguredKeyShadowsDevKey(t *testing.T) {
	t.Setenv("HOLOGRAPH_SIGNER_PRIVATE_KEY", testPrivateKey)

	out, err := run(t, "", "keys", "list", "--json")
	require.NoError(t, err)

	var rows []keyRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.Name)
	}
	assert.ElementsMatch(t, []string{"configured", "dev-1", "dev-2"}, names)
}

func TestKeysCreate_RequiresOpenBao(t *testing.T) {
	_, err := run(t, "", "keys", "create", "deployer")
	assert.ErrorIs(t, err, errLocalBackend)
}

// ============================================
// Router Tests
// ============================================

type fakeReady struct {
	component string
	err       error
}

func (f fakeReady) Ready(ctx context.Context) (string, error) {
	return f.component, f.err
}

func testRouter(ready readiness) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rpc := jsonrpc.NewServer(jsonrpc.ServerConfig{
		Builder:          builder.New(common.HexToAddress(testRegistry)),
		Factory:          common.HexToAddress(testFactory),
		EnforcerBytecode: common.FromHex(testEnforcer),
		SigningMode:      holograph.RawHash,
		Logger:           logger,
	})
	cfg := config.ServerConfig{CORSOrigins: []string{"*"}, WriteTimeout: 5 * time.Second}
	return newRouter(rpc, ready, cfg, logger)
}

func TestRouter_Health(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(fakeReady{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestRouter_Ready(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(fakeReady{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	down := fakeReady{component: "redis", err: errors.New("connection refused")}
	testRouter(down).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"error","component":"redis"}`, rec.Body.String())
}

func TestRouter_RPC(t *testing.T) {
	router := testRouter(fakeReady{})
	body := `{"jsonrpc":"2.0","method":"holo_predictAddress","params":{"configHash":"` + goldenConfigHash + `"},"id":1}`

	for _, path := range []string{"/", "/rpc"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), goldenAddress)
		})
	}
}

func TestRouter_Metrics(t *testing.T) {
	router := testRouter(fakeReady{})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "holograph_")
}
