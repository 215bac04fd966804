package holograph

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BaoClient talks to the OpenBao secp256k1 plugin that holds deployer keys.
// Only the operations a deployer needs are exposed: key lifecycle and
// prehashed signing of config hash digests.
type BaoClient struct {
	http      *http.Client
	base      *url.URL
	mount     string
	token     string
	namespace string
}

// NewBaoClient builds a client for cfg.BaoAddr.
func NewBaoClient(cfg Config) (*BaoClient, error) {
	cfg = cfg.WithDefaults()

	base, err := url.Parse(strings.TrimSuffix(cfg.BaoAddr, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, NewValidationError("bao_addr", fmt.Sprintf("%q is not an absolute URL", cfg.BaoAddr))
	}

	tlsConfig := cfg.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	tlsConfig.InsecureSkipVerify = tlsConfig.InsecureSkipVerify || cfg.SkipTLSVerify

	return &BaoClient{
		http: &http.Client{
			Timeout: cfg.HTTPTimeout,
			Transport: &http.Transport{
				TLSClientConfig:     tlsConfig,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     time.Minute,
			},
		},
		base:      base,
		mount:     strings.Trim(cfg.Secp256k1Path, "/"),
		token:     cfg.BaoToken,
		namespace: cfg.BaoNamespace,
	}, nil
}

// Health maps the sys/health status onto the sealed and unavailable errors.
func (c *BaoClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.JoinPath("v1", "sys", "health").String(), nil)
	if err != nil {
		return ErrBaoConnection
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return ErrBaoConnection
	}
	_ = resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusServiceUnavailable:
		return ErrBaoSealed
	default:
		return ErrBaoUnavailable
	}
}

// GetKey reads the public half of a key.
func (c *BaoClient) GetKey(ctx context.Context, name string) (*KeyInfo, error) {
	info, err := call[KeyInfo](ctx, c, http.MethodGet, c.keyPath(name), nil)
	return info, WrapKeyError("get", name, err)
}

// CreateKey generates a key inside OpenBao.
func (c *BaoClient) CreateKey(ctx context.Context, name string, opts KeyOptions) (*KeyInfo, error) {
	info, err := call[KeyInfo](ctx, c, http.MethodPost, c.keyPath(name), map[string]any{
		"exportable": opts.Exportable,
	})
	return info, WrapKeyError("create", name, err)
}

// ImportKey moves a raw 32-byte private key into OpenBao.
func (c *BaoClient) ImportKey(ctx context.Context, name string, key []byte, exportable bool) (*KeyInfo, error) {
	info, err := call[KeyInfo](ctx, c, http.MethodPost, c.keyPath(name)+"/import", map[string]any{
		"ciphertext": base64.StdEncoding.EncodeToString(key),
		"exportable": exportable,
	})
	return info, WrapKeyError("import", name, err)
}

// DeleteKey lifts the plugin's deletion guard and removes the key.
func (c *BaoClient) DeleteKey(ctx context.Context, name string) error {
	if _, err := call[json.RawMessage](ctx, c, http.MethodPost, c.keyPath(name)+"/config", map[string]any{
		"deletion_allowed": true,
	}); err != nil {
		return WrapKeyError("delete", name, err)
	}
	_, err := call[json.RawMessage](ctx, c, http.MethodDelete, c.keyPath(name), nil)
	return WrapKeyError("delete", name, err)
}

// SignDigest signs digest as-is and returns r||s. The plugin reports no
// recovery id; BaoSigner recovers it against the key's address.
func (c *BaoClient) SignDigest(ctx context.Context, name string, digest common.Hash) ([]byte, error) {
	resp, err := call[SignResponse](ctx, c, http.MethodPost, c.mount+"/sign/"+name, map[string]any{
		"input":         base64.StdEncoding.EncodeToString(digest[:]),
		"prehashed":     true,
		"output_format": "cosmos",
	})
	if err != nil {
		return nil, WrapKeyError("sign", name, err)
	}

	rs, err := base64.StdEncoding.DecodeString(resp.Signature)
	if err != nil {
		return nil, WrapKeyError("sign", name, fmt.Errorf("%w: %v", ErrInvalidSignature, err))
	}
	if len(rs) != 64 {
		return nil, WrapKeyError("sign", name, fmt.Errorf("%w: got %d bytes", ErrInvalidSignature, len(rs)))
	}
	return rs, nil
}

// keyPath is the mount-relative path recorded in KeyMetadata.BaoKeyPath.
func (c *BaoClient) keyPath(name string) string {
	return c.mount + "/keys/" + name
}

// call sends one plugin request and unwraps the "data" envelope of the
// reply. Empty replies yield a zero T.
func call[T any](ctx context.Context, c *BaoClient, method, path string, body any) (*T, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath("v1", path).String(), reader)
	if err != nil {
		return nil, ErrBaoConnection
	}
	req.Header.Set("X-Vault-Token", c.token)
	if c.namespace != "" {
		req.Header.Set("X-Vault-Namespace", c.namespace)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrBaoConnection
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ErrBaoConnection
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var failure struct {
			Errors []string `json:"errors"`
		}
		_ = json.Unmarshal(raw, &failure)
		return nil, NewBaoError(resp.StatusCode, failure.Errors, resp.Header.Get("X-Request-Id"))
	}

	var envelope struct {
		Data T `json:"data"`
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return &envelope.Data, nil
}
