package audit

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	holograph "github.com/holographxyz/holograph-sub000"
)

// Source says where the audited input came from.
type Source string

// Audit sources.
const (
	SourceInput       Source = "input"
	SourceTransaction Source = "transaction"
)

// Report is the outcome of auditing one deployment call input.
type Report struct {
	ID        string    `json:"id"`
	Source    Source    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`

	InputHash    common.Hash                `json:"inputHash"`
	Shape        holograph.CallShape        `json:"shape"`
	Config       holograph.DeploymentConfig `json:"config"`
	ContractType string                     `json:"contractType"`
	Signer       common.Address             `json:"signer"`
	Signature    holograph.Signature        `json:"signature"`
	Job          *holograph.JobEnvelope     `json:"job,omitempty"`

	ConfigHash       common.Hash    `json:"configHash"`
	Factory          common.Address `json:"factory"`
	PredictedAddress common.Address `json:"predictedAddress"`

	// SignatureValid reports whether the signature recovers to Signer under
	// either signing mode; SigningMode names the one that matched.
	SignatureValid bool   `json:"signatureValid"`
	SigningMode    string `json:"signingMode,omitempty"`

	ChainID uint64       `json:"chainId,omitempty"`
	TxHash  *common.Hash `json:"txHash,omitempty"`

	// Checks below depend on the caller or on live registry state. They are
	// recomputed on every transaction audit and never cached.
	ExpectedAddress *common.Address `json:"expectedAddress,omitempty"`
	AddressMatches  *bool           `json:"addressMatches,omitempty"`
	Implementation  *common.Address `json:"implementation,omitempty"`
	Deployed        *bool           `json:"deployed,omitempty"`
}

// Compare records expected and whether the predicted address equals it.
func (r *Report) Compare(expected common.Address) {
	matches := expected == r.PredictedAddress
	r.ExpectedAddress = &expected
	r.AddressMatches = &matches
}

// Passed reports whether the signature is valid, an expected address, when
// compared, matched, and the registry, when asked, knows the contract type.
func (r *Report) Passed() bool {
	if !r.SignatureValid {
		return false
	}
	if r.Implementation != nil && *r.Implementation == (common.Address{}) {
		return false
	}
	return r.AddressMatches == nil || *r.AddressMatches
}

// clearChecks drops the caller- and registry-dependent fields.
func (r *Report) clearChecks() {
	r.ExpectedAddress = nil
	r.AddressMatches = nil
	r.Implementation = nil
	r.Deployed = nil
}
