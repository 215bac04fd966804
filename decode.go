package holograph

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/holographxyz/holograph-sub000/internal/ethereum"
)

const selectorLen = 4

// ShapeOf identifies the call shape from the leading selector of input.
func ShapeOf(input []byte) (CallShape, error) {
	if len(input) < selectorLen {
		return "", fmt.Errorf("%w: %d bytes of input", ErrUnknownSelector, len(input))
	}
	sel := input[:selectorLen]
	switch {
	case bytes.Equal(sel, deployMethod.ID):
		return ShapeDeploy, nil
	case bytes.Equal(sel, multiChainMethod.ID):
		return ShapeDeployMultiChain, nil
	case bytes.Equal(sel, jobMethod.ID):
		return ShapeJob, nil
	default:
		return "", fmt.Errorf("%w: 0x%x", ErrUnknownSelector, sel)
	}
}

// MinInputSize returns the shortest input accepted for a call shape.
func MinInputSize(shape CallShape) int {
	switch shape {
	case ShapeDeploy:
		return selectorLen + minArgsSize(deployArgs)
	case ShapeDeployMultiChain:
		return selectorLen + minArgsSize(multiChainArgs)
	case ShapeJob:
		return jobLayout.HeadSize() + minArgsSize(deployArgs) + jobLayout.TailSize()
	default:
		return 0
	}
}

// Decode recovers the deployment carried by factory or operator call input.
// Input that starts with none of the known selectors fails with
// ErrUnknownSelector; input shorter than its shape's layout fails with
// ErrTruncatedInput. Nothing is returned on error.
func Decode(input []byte) (*Deployment, error) {
	shape, err := ShapeOf(input)
	if err != nil {
		return nil, err
	}
	if minLen := MinInputSize(shape); len(input) < minLen {
		return nil, decodeError(shape, "length", fmt.Errorf("%w: got %d bytes, need at least %d", ErrTruncatedInput, len(input), minLen))
	}

	switch shape {
	case ShapeJob:
		return decodeJob(input)
	default:
		// The multi-chain call shares the deploy head for its first three
		// arguments; the bridge settings after them are not read.
		return decodeDeployArgs(shape, input[selectorLen:])
	}
}

// DecodeHex is Decode for 0x-prefixed hex input.
func DecodeHex(s string) (*Deployment, error) {
	input, err := ethereum.DecodeBytes(s)
	if err != nil {
		return nil, decodeError("", "hex", fmt.Errorf("%w: %v", ErrMalformedInput, err))
	}
	return Decode(input)
}

// DecodeDeployArgs decodes a selector-less (config, signature, signer)
// encoding, the form carried as a bridge-in payload.
func DecodeDeployArgs(data []byte) (*Deployment, error) {
	if minLen := minArgsSize(deployArgs); len(data) < minLen {
		return nil, decodeError(ShapeDeploy, "length", fmt.Errorf("%w: got %d bytes, need at least %d", ErrTruncatedInput, len(data), minLen))
	}
	return decodeDeployArgs(ShapeDeploy, data)
}

func decodeDeployArgs(shape CallShape, data []byte) (*Deployment, error) {
	out, err := deployArgs.UnpackValues(data)
	if err != nil {
		return nil, decodeError(shape, "unpack", fmt.Errorf("%w: %v", ErrMalformedInput, err))
	}
	if len(out) != len(deployArgs) {
		return nil, decodeError(shape, "unpack", ErrMalformedInput)
	}

	cfg := *abi.ConvertType(out[0], new(DeploymentConfig)).(*DeploymentConfig)
	sig := *abi.ConvertType(out[1], new(Signature)).(*Signature)
	signer, ok := out[2].(common.Address)
	if !ok {
		return nil, decodeError(shape, "signer", ErrMalformedInput)
	}

	return &Deployment{
		Shape:     shape,
		Config:    cfg,
		Signature: sig,
		Signer:    signer,
	}, nil
}

// decodeJob slices the deployment payload out of an executeJob call using
// the derived job layout, then decodes it as deploy arguments. The bridge-in
// envelope is decoded separately and must agree with the sliced payload.
func decodeJob(input []byte) (*Deployment, error) {
	layout := jobLayout

	// executeJob(bytes): offset word must point at the first argument slot.
	offset := new(big.Int).SetBytes(input[selectorLen : selectorLen+ethereum.WordSize])
	if offset.Cmp(big.NewInt(ethereum.WordSize)) != 0 {
		return nil, decodeError(ShapeJob, "job offset", fmt.Errorf("%w: offset %s", ErrMalformedInput, offset))
	}
	outerLen, err := readLength(input, selectorLen+ethereum.WordSize)
	if err != nil {
		return nil, decodeError(ShapeJob, "job length", err)
	}
	if layout.OuterHead+ethereum.PaddedLen(outerLen) != len(input) {
		return nil, decodeError(ShapeJob, "job length", fmt.Errorf("%w: declared %d bytes in %d bytes of input", ErrMalformedInput, outerLen, len(input)))
	}

	request := input[layout.OuterHead : layout.OuterHead+outerLen]
	if !bytes.Equal(request[:selectorLen], bridgeInMethod.ID) {
		return nil, decodeError(ShapeJob, "bridge-in selector", fmt.Errorf("%w: 0x%x", ErrUnknownSelector, request[:selectorLen]))
	}

	head, tail := layout.HeadSize(), layout.TailSize()
	middle := input[head : len(input)-tail]
	payloadLen, err := readLength(input, head-ethereum.WordSize)
	if err != nil {
		return nil, decodeError(ShapeJob, "payload length", err)
	}
	if ethereum.PaddedLen(payloadLen) != len(middle) {
		return nil, decodeError(ShapeJob, "payload length", fmt.Errorf("%w: declared %d bytes, layout leaves %d", ErrMalformedInput, payloadLen, len(middle)))
	}
	payload := middle[:payloadLen]

	d, err := DecodeDeployArgs(payload)
	if err != nil {
		return nil, decodeError(ShapeJob, "payload", err)
	}
	d.Shape = ShapeJob

	env, envPayload, err := decodeBridgeIn(request[selectorLen : len(request)-layout.Trailer])
	if err != nil {
		return nil, decodeError(ShapeJob, "bridge-in request", err)
	}
	if !bytes.Equal(envPayload, payload) {
		return nil, decodeError(ShapeJob, "bridge-in request", fmt.Errorf("%w: payload does not match job layout", ErrMalformedInput))
	}
	trailer, err := jobTrailerArgs.UnpackValues(request[len(request)-layout.Trailer:])
	if err != nil {
		return nil, decodeError(ShapeJob, "trailer", fmt.Errorf("%w: %v", ErrMalformedInput, err))
	}
	env.GasPrice = trailer[0].(*big.Int)
	env.GasLimit = trailer[1].(*big.Int)
	d.Job = env

	return d, nil
}

func decodeBridgeIn(args []byte) (*JobEnvelope, []byte, error) {
	out, err := bridgeInArgs.UnpackValues(args)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if len(out) != len(bridgeInArgs) {
		return nil, nil, ErrMalformedInput
	}
	env := &JobEnvelope{
		Nonce:                 out[0].(*big.Int),
		FromChain:             out[1].(uint32),
		HolographableContract: out[2].(common.Address),
		HToken:                out[3].(common.Address),
		HTokenRecipient:       out[4].(common.Address),
		HTokenValue:           out[5].(*big.Int),
		DoNotRevert:           out[6].(bool),
	}
	return env, out[7].([]byte), nil
}

// readLength reads the ABI length word at off and bounds it to the input.
func readLength(input []byte, off int) (int, error) {
	word := input[off : off+ethereum.WordSize]
	for _, b := range word[:ethereum.WordSize-8] {
		if b != 0 {
			return 0, fmt.Errorf("%w: length word overflows", ErrMalformedInput)
		}
	}
	n := binary.BigEndian.Uint64(word[ethereum.WordSize-8:])
	if n > uint64(len(input)) {
		return 0, fmt.Errorf("%w: length %d exceeds input", ErrMalformedInput, n)
	}
	return int(n), nil
}
