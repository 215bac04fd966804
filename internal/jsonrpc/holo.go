package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	holograph "github.com/holographxyz/holograph-sub000"
	"github.com/holographxyz/holograph-sub000/builder"
	"github.com/holographxyz/holograph-sub000/internal/audit"
	"github.com/holographxyz/holograph-sub000/internal/ethereum"
	"github.com/holographxyz/holograph-sub000/internal/metrics"
)

// HoloHandler serves the holo_* methods over the library.
type HoloHandler struct {
	builder          *builder.Builder
	predictor        *holograph.Predictor
	enforcerBytecode []byte
	auditor          *audit.Auditor
	mode             holograph.SigningMode
}

// NewHoloHandler creates a handler. auditor may be nil, in which case
// holo_auditInput is not served.
func NewHoloHandler(b *builder.Builder, factory common.Address, enforcerBytecode []byte, auditor *audit.Auditor, mode holograph.SigningMode) *HoloHandler {
	return &HoloHandler{
		builder:          b,
		predictor:        holograph.NewPredictor(factory, enforcerBytecode),
		enforcerBytecode: enforcerBytecode,
		auditor:          auditor,
		mode:             mode,
	}
}

// BuildConfigParams is a builder request plus an optional signer. With a
// signer the result also carries the config hash and predicted address.
type BuildConfigParams struct {
	builder.Request
	Signer string `json:"signer,omitempty"`
}

// BuildConfigResult is the holo_buildConfig result. SigningDigest is the
// digest a signer produces its signature over under the configured mode.
type BuildConfigResult struct {
	Config           holograph.DeploymentConfig `json:"config"`
	ConfigHash       *common.Hash               `json:"configHash,omitempty"`
	SigningDigest    *common.Hash               `json:"signingDigest,omitempty"`
	PredictedAddress *common.Address            `json:"predictedAddress,omitempty"`
}

// HandleBuildConfig implements holo_buildConfig.
func (h *HoloHandler) HandleBuildConfig(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p BuildConfigParams
	if rpcErr := unmarshalParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}

	cfg, err := h.builder.Build(p.Request)
	if err != nil {
		return nil, FromError(err)
	}
	result := BuildConfigResult{Config: cfg}
	if p.Signer != "" {
		signer, rpcErr := parseAddress("signer", p.Signer)
		if rpcErr != nil {
			return nil, rpcErr
		}
		hash, addr := h.predictor.PredictConfig(cfg, signer)
		digest := h.mode.Digest(hash)
		result.ConfigHash = &hash
		result.SigningDigest = &digest
		result.PredictedAddress = &addr
	}
	return result, nil
}

// ConfigHashParams names a config and its signer.
type ConfigHashParams struct {
	Config holograph.DeploymentConfig `json:"config"`
	Signer string                     `json:"signer"`
}

// HandleComputeConfigHash implements holo_computeConfigHash.
func (h *HoloHandler) HandleComputeConfigHash(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p ConfigHashParams
	if rpcErr := unmarshalParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	signer, rpcErr := parseAddress("signer", p.Signer)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return holograph.ComputeConfigHash(p.Config, signer), nil
}

// PredictAddressParams takes either a config hash or a config with its
// signer. Factory overrides the configured factory.
type PredictAddressParams struct {
	ConfigHash string                      `json:"configHash,omitempty"`
	Config     *holograph.DeploymentConfig `json:"config,omitempty"`
	Signer     string                      `json:"signer,omitempty"`
	Factory    string                      `json:"factory,omitempty"`
}

// PredictAddressResult is the holo_predictAddress result.
type PredictAddressResult struct {
	ConfigHash common.Hash    `json:"configHash"`
	Factory    common.Address `json:"factory"`
	Address    common.Address `json:"address"`
}

// HandlePredictAddress implements holo_predictAddress.
func (h *HoloHandler) HandlePredictAddress(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p PredictAddressParams
	if rpcErr := unmarshalParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}

	var hash common.Hash
	switch {
	case p.ConfigHash != "":
		var err error
		if hash, err = ethereum.DecodeHash(p.ConfigHash); err != nil {
			return nil, ErrInvalidParams(fmt.Sprintf("invalid configHash: %v", err))
		}
	case p.Config != nil:
		signer, rpcErr := parseAddress("signer", p.Signer)
		if rpcErr != nil {
			return nil, rpcErr
		}
		hash = holograph.ComputeConfigHash(*p.Config, signer)
	default:
		return nil, ErrInvalidParams("configHash or config and signer required")
	}

	factory := h.predictor.Factory()
	addr := h.predictor.Predict(hash)
	if p.Factory != "" {
		f, rpcErr := parseAddress("factory", p.Factory)
		if rpcErr != nil {
			return nil, rpcErr
		}
		if f != factory {
			factory = f
			addr = holograph.PredictAddress(hash, f, h.enforcerBytecode)
		}
	}
	return PredictAddressResult{ConfigHash: hash, Factory: factory, Address: addr}, nil
}

// InputParams carries hex call input.
type InputParams struct {
	Input string `json:"input"`
}

// HandleDecodeDeployment implements holo_decodeDeployment.
func (h *HoloHandler) HandleDecodeDeployment(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p InputParams
	if rpcErr := unmarshalParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	input, err := ethereum.DecodeBytes(p.Input)
	if err != nil {
		return nil, ErrInvalidParams(fmt.Sprintf("invalid input hex: %v", err))
	}

	shape, _ := holograph.ShapeOf(input)
	d, err := holograph.Decode(input)
	metrics.ObserveDecode(shape, err)
	if err != nil {
		return nil, FromError(err)
	}
	return d, nil
}

// VerifySignatureParams asks whether signature over configHash recovers to
// signer. An empty SigningMode tries both modes.
type VerifySignatureParams struct {
	ConfigHash  string              `json:"configHash"`
	Signature   holograph.Signature `json:"signature"`
	Signer      string              `json:"signer"`
	SigningMode string              `json:"signingMode,omitempty"`
}

// VerifySignatureResult is the holo_verifySignature result. SigningMode is
// set when Valid.
type VerifySignatureResult struct {
	Valid       bool   `json:"valid"`
	SigningMode string `json:"signingMode,omitempty"`
}

// HandleVerifySignature implements holo_verifySignature.
func (h *HoloHandler) HandleVerifySignature(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p VerifySignatureParams
	if rpcErr := unmarshalParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	hash, err := ethereum.DecodeHash(p.ConfigHash)
	if err != nil {
		return nil, ErrInvalidParams(fmt.Sprintf("invalid configHash: %v", err))
	}
	signer, rpcErr := parseAddress("signer", p.Signer)
	if rpcErr != nil {
		return nil, rpcErr
	}

	var result VerifySignatureResult
	if p.SigningMode == "" {
		mode, ok := holograph.DetectSigningMode(hash, p.Signature, signer)
		result.Valid = ok
		if ok {
			result.SigningMode = mode.String()
		}
	} else {
		mode, err := holograph.ParseSigningMode(p.SigningMode)
		if err != nil {
			return nil, FromError(err)
		}
		result.Valid = holograph.Verify(hash, p.Signature, signer, mode)
		if result.Valid {
			result.SigningMode = mode.String()
		}
	}
	metrics.ObserveVerify(result.Valid)
	return result, nil
}

// HandleAuditInput implements holo_auditInput.
func (h *HoloHandler) HandleAuditInput(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p InputParams
	if rpcErr := unmarshalParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	input, err := ethereum.DecodeBytes(p.Input)
	if err != nil {
		return nil, ErrInvalidParams(fmt.Sprintf("invalid input hex: %v", err))
	}

	report, err := h.auditor.AuditInput(ctx, input)
	if err != nil {
		return nil, FromError(err)
	}
	return report, nil
}

// ReportIDParams names an archived report.
type ReportIDParams struct {
	ID string `json:"id"`
}

// HandleGetAuditReport implements holo_getAuditReport.
func (h *HoloHandler) HandleGetAuditReport(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p ReportIDParams
	if rpcErr := unmarshalParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if p.ID == "" {
		return nil, ErrInvalidParams("id is required")
	}

	report, err := h.auditor.ArchivedReport(ctx, p.ID)
	if err != nil {
		return nil, FromError(err)
	}
	return report, nil
}

// ListAuditReportsParams selects archived reports by config hash or by
// signer. Limit applies to signer listings.
type ListAuditReportsParams struct {
	ConfigHash string `json:"configHash,omitempty"`
	Signer     string `json:"signer,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// HandleListAuditReports implements holo_listAuditReports.
func (h *HoloHandler) HandleListAuditReports(ctx context.Context, params json.RawMessage) (interface{}, *Error) {
	var p ListAuditReportsParams
	if rpcErr := unmarshalParams(params, &p); rpcErr != nil {
		return nil, rpcErr
	}
	if (p.ConfigHash == "") == (p.Signer == "") {
		return nil, ErrInvalidParams("exactly one of configHash and signer is required")
	}

	var (
		reports []*audit.Report
		err     error
	)
	if p.ConfigHash != "" {
		configHash, decodeErr := ethereum.DecodeHash(p.ConfigHash)
		if decodeErr != nil {
			return nil, NewErrorWithData(ErrCodeValidation, "invalid config hash", validationData{Field: "configHash"})
		}
		reports, err = h.auditor.ReportsForConfig(ctx, configHash)
	} else {
		signer, rpcErr := parseAddress("signer", p.Signer)
		if rpcErr != nil {
			return nil, rpcErr
		}
		reports, err = h.auditor.ReportsBySigner(ctx, signer, p.Limit)
	}
	if err != nil {
		return nil, FromError(err)
	}
	if reports == nil {
		reports = []*audit.Report{}
	}
	return reports, nil
}

// unmarshalParams accepts named params or a one-element positional array
// holding them.
func unmarshalParams(params json.RawMessage, v interface{}) *Error {
	raw := bytes.TrimSpace(params)
	if len(raw) == 0 {
		return ErrInvalidParams("missing params")
	}
	if raw[0] == '[' {
		var args []json.RawMessage
		if err := json.Unmarshal(raw, &args); err != nil {
			return ErrInvalidParams(fmt.Sprintf("failed to parse params: %v", err))
		}
		if len(args) != 1 {
			return ErrInvalidParams("expected a single params object")
		}
		raw = args[0]
	}
	if err := json.Unmarshal(raw, v); err != nil {
		if rpcErr := FromError(err); rpcErr.Code == ErrCodeValidation {
			return rpcErr
		}
		return ErrInvalidParams(fmt.Sprintf("failed to parse params: %v", err))
	}
	return nil
}

func parseAddress(field, s string) (common.Address, *Error) {
	addr, err := ethereum.DecodeAddress(s)
	if err != nil {
		return common.Address{}, NewErrorWithData(ErrCodeValidation, "invalid address", validationData{Field: field})
	}
	return addr, nil
}
