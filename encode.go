package holograph

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EncodeDeployArgs ABI-encodes (config, signature, signer) without a selector.
// This is the payload a bridge-in request carries to the destination factory.
func EncodeDeployArgs(cfg DeploymentConfig, sig Signature, signer common.Address) ([]byte, error) {
	packed, err := deployArgs.Pack(cfg, sig, signer)
	if err != nil {
		return nil, fmt.Errorf("pack deploy args: %w", err)
	}
	return packed, nil
}

// EncodeDeployCall builds calldata for a single-chain factory deployment.
func EncodeDeployCall(cfg DeploymentConfig, sig Signature, signer common.Address) ([]byte, error) {
	packed, err := EncodeDeployArgs(cfg, sig, signer)
	if err != nil {
		return nil, err
	}
	return append(append([]byte{}, deployMethod.ID...), packed...), nil
}

// EncodeMultiChainDeployCall builds calldata for a deployment that is also
// bridged to the chains named in settings.
func EncodeMultiChainDeployCall(cfg DeploymentConfig, sig Signature, signer common.Address, deployOnCurrentChain bool, settings []BridgeSettings) ([]byte, error) {
	normalized := make([]BridgeSettings, len(settings))
	for i, s := range settings {
		s.Value = orZero(s.Value)
		if s.Data == nil {
			s.Data = []byte{}
		}
		normalized[i] = s
	}
	packed, err := multiChainArgs.Pack(cfg, sig, signer, deployOnCurrentChain, normalized)
	if err != nil {
		return nil, fmt.Errorf("pack multichain deploy args: %w", err)
	}
	return append(append([]byte{}, multiChainMethod.ID...), packed...), nil
}

// EncodeBridgeInRequest builds the bridge-in call for payload followed by the
// operator trailer words taken from env.
func EncodeBridgeInRequest(env JobEnvelope, payload []byte) ([]byte, error) {
	args, err := bridgeInArgs.Pack(
		orZero(env.Nonce),
		env.FromChain,
		env.HolographableContract,
		env.HToken,
		env.HTokenRecipient,
		orZero(env.HTokenValue),
		env.DoNotRevert,
		payload,
	)
	if err != nil {
		return nil, fmt.Errorf("pack bridge-in request: %w", err)
	}
	trailer, err := jobTrailerArgs.Pack(orZero(env.GasPrice), orZero(env.GasLimit))
	if err != nil {
		return nil, fmt.Errorf("pack job trailer: %w", err)
	}

	out := make([]byte, 0, len(bridgeInMethod.ID)+len(args)+len(trailer))
	out = append(out, bridgeInMethod.ID...)
	out = append(out, args...)
	return append(out, trailer...), nil
}

// EncodeJobCall wraps a deployment in a bridge-in request and an operator
// executeJob call.
func EncodeJobCall(env JobEnvelope, cfg DeploymentConfig, sig Signature, signer common.Address) ([]byte, error) {
	payload, err := EncodeDeployArgs(cfg, sig, signer)
	if err != nil {
		return nil, err
	}
	request, err := EncodeBridgeInRequest(env, payload)
	if err != nil {
		return nil, err
	}
	packed, err := jobArgs.Pack(request)
	if err != nil {
		return nil, fmt.Errorf("pack job: %w", err)
	}
	return append(append([]byte{}, jobMethod.ID...), packed...), nil
}

// Encode re-encodes a decoded deployment in its original call shape.
// Multi-chain settings are not carried by Deployment, so that shape is
// re-encoded with deployOnCurrentChain set and no bridge settings.
func Encode(d *Deployment) ([]byte, error) {
	switch d.Shape {
	case ShapeDeploy:
		return EncodeDeployCall(d.Config, d.Signature, d.Signer)
	case ShapeDeployMultiChain:
		return EncodeMultiChainDeployCall(d.Config, d.Signature, d.Signer, true, nil)
	case ShapeJob:
		env := JobEnvelope{}
		if d.Job != nil {
			env = *d.Job
		}
		return EncodeJobCall(env, d.Config, d.Signature, d.Signer)
	default:
		return nil, fmt.Errorf("%w: shape %q", ErrUnknownSelector, d.Shape)
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
