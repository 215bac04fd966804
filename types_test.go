package holograph

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()
	assert.Equal(t, DefaultSecp256k1Path, cfg.Secp256k1Path)
	assert.Equal(t, DefaultHTTPTimeout, cfg.HTTPTimeout)

	custom := Config{Secp256k1Path: "evm", HTTPTimeout: time.Second}.WithDefaults()
	assert.Equal(t, "evm", custom.Secp256k1Path)
	assert.Equal(t, time.Second, custom.HTTPTimeout)
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{BaoAddr: "https://bao:8200", BaoToken: "t", StorePath: "/tmp/s.json", KeyName: "deployer"}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing addr", mutate: func(c *Config) { c.BaoAddr = "" }, wantErr: ErrMissingBaoAddr},
		{name: "missing token", mutate: func(c *Config) { c.BaoToken = "" }, wantErr: ErrMissingBaoToken},
		{name: "missing store", mutate: func(c *Config) { c.StorePath = "" }, wantErr: ErrMissingStorePath},
		{name: "missing key", mutate: func(c *Config) { c.KeyName = "" }, wantErr: ErrMissingKeyName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDeploymentConfig_JSON(t *testing.T) {
	cfg := testConfig(t)

	raw, err := json.Marshal(cfg)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "0x486f6c6f67726170684552433732310000000000000000000000000000000000", fields["contractType"])
	assert.Equal(t, float64(1), fields["chainType"])
	assert.Equal(t, "0x0000000000000000000000000000000000000000000000000000000000000001", fields["salt"])
	assert.Equal(t, "0x6080604052", fields["byteCode"])

	var back DeploymentConfig
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, cfg.Equal(back))

	err = json.Unmarshal([]byte(`{"contractType":"0x12","salt":"0x00"}`), &back)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "contractType", ve.Field)
}

func TestDeploymentConfig_Equal(t *testing.T) {
	a := testConfig(t)
	b := testConfig(t)
	assert.True(t, a.Equal(b))

	b.InitCode = append(b.InitCode, 0)
	assert.False(t, a.Equal(b))

	empty := DeploymentConfig{}
	assert.True(t, empty.Equal(DeploymentConfig{ByteCode: []byte{}}))
}

func TestSignatureFromBytes(t *testing.T) {
	raw := fixtureSignature().Bytes()

	t.Run("27 kept", func(t *testing.T) {
		sig, err := SignatureFromBytes(raw)
		require.NoError(t, err)
		assert.Equal(t, fixtureSignature(), sig)
		assert.Equal(t, byte(0), sig.RecoveryID())
	})

	t.Run("0 and 1 shifted", func(t *testing.T) {
		raw := fixtureSignature().Bytes()
		raw[64] = 1
		sig, err := SignatureFromBytes(raw)
		require.NoError(t, err)
		assert.Equal(t, uint8(28), sig.V)
		assert.Equal(t, byte(1), sig.RecoveryID())
	})

	t.Run("wrong length", func(t *testing.T) {
		_, err := SignatureFromBytes(raw[:64])
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("unexpected v", func(t *testing.T) {
		raw := fixtureSignature().Bytes()
		raw[64] = 35
		_, err := SignatureFromBytes(raw)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
}

func TestSignature_JSON(t *testing.T) {
	sig := fixtureSignature()
	raw, err := json.Marshal(sig)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"r": "0x1111111111111111111111111111111111111111111111111111111111111111",
		"s": "0x2222222222222222222222222222222222222222222222222222222222222222",
		"v": "27"
	}`, string(raw))

	var back Signature
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, sig, back)

	t.Run("hex and raw recovery ids", func(t *testing.T) {
		var s Signature
		in := `{"r":"0x1111111111111111111111111111111111111111111111111111111111111111","s":"0x2222222222222222222222222222222222222222222222222222222222222222","v":"0x1c"}`
		require.NoError(t, json.Unmarshal([]byte(in), &s))
		assert.Equal(t, uint8(28), s.V)

		in = `{"r":"0x1111111111111111111111111111111111111111111111111111111111111111","s":"0x2222222222222222222222222222222222222222222222222222222222222222","v":"0"}`
		require.NoError(t, json.Unmarshal([]byte(in), &s))
		assert.Equal(t, uint8(27), s.V)
	})

	t.Run("bad v", func(t *testing.T) {
		var s Signature
		in := `{"r":"0x1111111111111111111111111111111111111111111111111111111111111111","s":"0x2222222222222222222222222222222222222222222222222222222222222222","v":"99"}`
		err := json.Unmarshal([]byte(in), &s)
		var ve *ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "v", ve.Field)
	})
}

func TestSignature_IsZero(t *testing.T) {
	assert.True(t, Signature{}.IsZero())
	assert.True(t, Signature{R: [32]byte{1}}.IsZero())
	assert.False(t, fixtureSignature().IsZero())
}
