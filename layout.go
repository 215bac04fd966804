package holograph

import (
	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/holographxyz/holograph-sub000/internal/ethereum"
)

// ABI layouts of the factory, bridge and operator calls that carry a
// DeploymentConfig. Selectors are derived from these declarations.
var (
	deploymentConfigType = mustNewType("tuple", []abi.ArgumentMarshaling{
		{Name: "contractType", Type: "bytes32"},
		{Name: "chainType", Type: "uint32"},
		{Name: "salt", Type: "bytes32"},
		{Name: "byteCode", Type: "bytes"},
		{Name: "initCode", Type: "bytes"},
	})
	verificationType = mustNewType("tuple", []abi.ArgumentMarshaling{
		{Name: "r", Type: "bytes32"},
		{Name: "s", Type: "bytes32"},
		{Name: "v", Type: "uint8"},
	})
	bridgeSettingsType = mustNewType("tuple[]", []abi.ArgumentMarshaling{
		{Name: "value", Type: "uint256"},
		{Name: "operator", Type: "address"},
		{Name: "toChain", Type: "uint32"},
		{Name: "data", Type: "bytes"},
	})

	addressType = mustNewType("address", nil)
	boolType    = mustNewType("bool", nil)
	bytesType   = mustNewType("bytes", nil)
	uint32Type  = mustNewType("uint32", nil)
	uint256Type = mustNewType("uint256", nil)

	// deployArgs is (DeploymentConfig config, Verification signature, address signer).
	// It is also the bridge-in payload the factory decodes on the destination chain.
	deployArgs = abi.Arguments{
		{Name: "config", Type: deploymentConfigType},
		{Name: "signature", Type: verificationType},
		{Name: "signer", Type: addressType},
	}

	multiChainArgs = abi.Arguments{
		{Name: "config", Type: deploymentConfigType},
		{Name: "signature", Type: verificationType},
		{Name: "signer", Type: addressType},
		{Name: "deployOnCurrentChain", Type: boolType},
		{Name: "bridgeSettings", Type: bridgeSettingsType},
	}

	bridgeInArgs = abi.Arguments{
		{Name: "nonce", Type: uint256Type},
		{Name: "fromChain", Type: uint32Type},
		{Name: "holographableContract", Type: addressType},
		{Name: "hToken", Type: addressType},
		{Name: "hTokenRecipient", Type: addressType},
		{Name: "hTokenValue", Type: uint256Type},
		{Name: "doNotRevert", Type: boolType},
		{Name: "bridgeInPayload", Type: bytesType},
	}

	// jobTrailerArgs are the words the operator appends after the bridge-in
	// call inside a job payload, read as gas price then gas limit.
	jobTrailerArgs = abi.Arguments{
		{Name: "gasPrice", Type: uint256Type},
		{Name: "gasLimit", Type: uint256Type},
	}

	jobArgs = abi.Arguments{
		{Name: "bridgeInRequestPayload", Type: bytesType},
	}

	deployMethod     = newMethod("deployHolographableContract", deployArgs)
	multiChainMethod = newMethod("deployHolographableContractMultiChain", multiChainArgs)
	bridgeInMethod   = newMethod("bridgeInRequest", bridgeInArgs)
	jobMethod        = newMethod("executeJob", jobArgs)

	jobLayout = deriveJobLayout(jobArgs, bridgeInArgs, jobTrailerArgs)
)

func mustNewType(t string, components []abi.ArgumentMarshaling) abi.Type {
	typ, err := abi.NewType(t, "", components)
	if err != nil {
		panic(err)
	}
	return typ
}

func newMethod(name string, inputs abi.Arguments) abi.Method {
	return abi.NewMethod(name, name, abi.Function, "nonpayable", false, false, inputs, nil)
}

// Selector returns the 4-byte function selector for a call shape.
func Selector(shape CallShape) ([4]byte, bool) {
	var sel [4]byte
	switch shape {
	case ShapeDeploy:
		copy(sel[:], deployMethod.ID)
	case ShapeDeployMultiChain:
		copy(sel[:], multiChainMethod.ID)
	case ShapeJob:
		copy(sel[:], jobMethod.ID)
	default:
		return sel, false
	}
	return sel, true
}

// MethodSignature returns the canonical signature a call shape's selector is
// derived from.
func MethodSignature(shape CallShape) string {
	switch shape {
	case ShapeDeploy:
		return deployMethod.Sig
	case ShapeDeployMultiChain:
		return multiChainMethod.Sig
	case ShapeJob:
		return jobMethod.Sig
	default:
		return ""
	}
}

// JobLayout describes where the deployment payload sits inside an operator
// job call. All sizes are in bytes and derived from the declared argument
// lists of executeJob, bridgeInRequest and the operator trailer.
type JobLayout struct {
	// OuterHead covers the executeJob selector plus the offset and length
	// words of its bytes argument.
	OuterHead int
	// InnerHead covers the bridgeInRequest selector, its static head words
	// and the offset and length words of the payload argument.
	InnerHead int
	// Trailer is the appended static words after the bridge-in call.
	Trailer int
	// Padding rounds the outer bytes argument up to a whole word.
	Padding int
}

// HeadSize is the number of bytes before the deployment payload.
func (l JobLayout) HeadSize() int {
	return l.OuterHead + l.InnerHead
}

// TailSize is the number of bytes after the deployment payload.
func (l JobLayout) TailSize() int {
	return l.Trailer + l.Padding
}

// CurrentJobLayout returns the layout used to decode job calls.
func CurrentJobLayout() JobLayout {
	return jobLayout
}

// deriveJobLayout computes head and tail sizes for a call of the form
// outer(bytes) whose bytes argument is inner(..., bytes payload) followed by
// trailer words. The payload must be the last and only dynamic argument of
// inner so that its data starts right after inner's head.
func deriveJobLayout(outer, inner, trailer abi.Arguments) JobLayout {
	const selectorLen = 4

	if len(outer) != 1 || outer[0].Type.T != abi.BytesTy {
		panic("job layout: outer call must take a single bytes argument")
	}
	last := inner[len(inner)-1]
	if last.Type.T != abi.BytesTy {
		panic("job layout: inner payload must be the last argument")
	}

	innerHead := 0
	for _, arg := range inner[:len(inner)-1] {
		if isDynamicType(arg.Type) {
			panic("job layout: inner arguments before the payload must be static")
		}
		innerHead += staticSize(arg.Type)
	}
	trailerSize := 0
	for _, arg := range trailer {
		if isDynamicType(arg.Type) {
			panic("job layout: trailer must be static")
		}
		trailerSize += staticSize(arg.Type)
	}

	return JobLayout{
		// selector, offset word, length word
		OuterHead: selectorLen + 2*ethereum.WordSize,
		// selector, static head, payload offset word, payload length word
		InnerHead: selectorLen + innerHead + 2*ethereum.WordSize,
		Trailer:   trailerSize,
		// every other component of the outer bytes is word-aligned
		Padding: ethereum.PaddingFor(selectorLen + trailerSize),
	}
}

func isDynamicType(t abi.Type) bool {
	switch t.T {
	case abi.StringTy, abi.BytesTy, abi.SliceTy:
		return true
	case abi.TupleTy:
		for _, elem := range t.TupleElems {
			if isDynamicType(*elem) {
				return true
			}
		}
		return false
	case abi.ArrayTy:
		return isDynamicType(*t.Elem)
	default:
		return false
	}
}

// staticSize returns the head size of a static type.
func staticSize(t abi.Type) int {
	switch t.T {
	case abi.TupleTy:
		size := 0
		for _, elem := range t.TupleElems {
			size += staticSize(*elem)
		}
		return size
	case abi.ArrayTy:
		return t.Size * staticSize(*t.Elem)
	default:
		return ethereum.WordSize
	}
}

// minEncodedSize returns the smallest valid encoding of t: every dynamic
// value empty.
func minEncodedSize(t abi.Type) int {
	if !isDynamicType(t) {
		return staticSize(t)
	}
	switch t.T {
	case abi.StringTy, abi.BytesTy, abi.SliceTy:
		return ethereum.WordSize
	case abi.TupleTy:
		size := 0
		for _, elem := range t.TupleElems {
			if isDynamicType(*elem) {
				size += ethereum.WordSize + minEncodedSize(*elem)
			} else {
				size += staticSize(*elem)
			}
		}
		return size
	case abi.ArrayTy:
		return t.Size * (ethereum.WordSize + minEncodedSize(*t.Elem))
	default:
		return ethereum.WordSize
	}
}

// minArgsSize returns the smallest valid encoding of an argument list.
func minArgsSize(args abi.Arguments) int {
	size := 0
	for _, arg := range args {
		if isDynamicType(arg.Type) {
			size += ethereum.WordSize + minEncodedSize(arg.Type)
		} else {
			size += staticSize(arg.Type)
		}
	}
	return size
}
