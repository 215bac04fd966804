package ethereum

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"
)

// Namespace converts a reserved template name into its 32-byte tag: the
// UTF-8 bytes right-padded with zeros.
func Namespace(name string) ([32]byte, error) {
	var tag [32]byte
	if name == "" {
		return tag, errors.New("namespace name is empty")
	}
	if !utf8.ValidString(name) {
		return tag, errors.New("namespace name is not valid UTF-8")
	}
	if len(name) > len(tag) {
		return tag, fmt.Errorf("namespace %q is %d bytes, limit is %d", name, len(name), len(tag))
	}
	copy(tag[:], name)
	return tag, nil
}

// MustNamespace is like Namespace but panics on error. Intended for
// package-level constants.
func MustNamespace(name string) [32]byte {
	tag, err := Namespace(name)
	if err != nil {
		panic(err)
	}
	return tag
}

// NamespaceHex renders a tag as 0x followed by 64 lowercase hex characters.
func NamespaceHex(tag [32]byte) string {
	return EncodeBytes(tag[:])
}

// NamespaceName returns the template name held in a tag with the zero padding
// removed.
func NamespaceName(tag [32]byte) string {
	return string(bytes.TrimRight(tag[:], "\x00"))
}
