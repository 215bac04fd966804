// Package ulid generates sortable identifiers for audit records and keys.
package ulid

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Record kind prefixes.
const (
	KindAudit = "aud"
	KindKey   = "key"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// New generates a new ULID. IDs generated within the same millisecond are
// strictly increasing.
func New() string {
	return NewFromTime(time.Now())
}

// NewFromTime generates a new ULID with a specific timestamp.
func NewFromTime(t time.Time) string {
	entropyLock.Lock()
	defer entropyLock.Unlock()

	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// NewPrefixed returns kind_ULID, e.g. aud_01HV....
func NewPrefixed(kind string) string {
	return kind + "_" + New()
}

// SplitPrefixed separates a prefixed id into its kind and ULID.
func SplitPrefixed(s string) (string, ulid.ULID, error) {
	kind, raw, ok := strings.Cut(s, "_")
	if !ok || kind == "" {
		return "", ulid.ULID{}, fmt.Errorf("id %q has no kind prefix", s)
	}
	id, err := ulid.Parse(raw)
	if err != nil {
		return "", ulid.ULID{}, fmt.Errorf("id %q: %w", s, err)
	}
	return kind, id, nil
}

// Parse parses a ULID string.
func Parse(s string) (ulid.ULID, error) {
	return ulid.Parse(s)
}

// IsValid checks if a string is a valid ULID, with or without a kind prefix.
func IsValid(s string) bool {
	if _, err := ulid.Parse(s); err == nil {
		return true
	}
	_, _, err := SplitPrefixed(s)
	return err == nil
}

// Time extracts the timestamp from a ULID string, with or without a kind
// prefix.
func Time(s string) (time.Time, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		if _, id, err = SplitPrefixed(s); err != nil {
			return time.Time{}, err
		}
	}
	return ulid.Time(id.Time()), nil
}
