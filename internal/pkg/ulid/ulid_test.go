package ulid

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Monotonic(t *testing.T) {
	ids := make([]string, 100)
	for i := range ids {
		ids[i] = New()
	}
	assert.True(t, sort.StringsAreSorted(ids))
	for i := 1; i < len(ids); i++ {
		assert.NotEqual(t, ids[i-1], ids[i])
	}
}

func TestNewFromTime(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.UTC)
	id := NewFromTime(ts)
	require.True(t, IsValid(id))

	got, err := Time(id)
	require.NoError(t, err)
	assert.True(t, got.Equal(ts.Truncate(time.Millisecond)))
}

func TestPrefixed(t *testing.T) {
	id := NewPrefixed(KindAudit)
	assert.True(t, strings.HasPrefix(id, "aud_"))
	assert.True(t, IsValid(id))

	kind, parsed, err := SplitPrefixed(id)
	require.NoError(t, err)
	assert.Equal(t, KindAudit, kind)
	assert.Equal(t, strings.TrimPrefix(id, "aud_"), parsed.String())

	_, err = Time(id)
	assert.NoError(t, err)
}

func TestInvalid(t *testing.T) {
	for _, s := range []string{"", "nope", "_01HV000000000000000000000", "aud_notaulid"} {
		assert.False(t, IsValid(s), s)
	}
	_, err := Time("nope")
	assert.Error(t, err)
	_, _, err = SplitPrefixed("01HV0000000000000000000000")
	assert.Error(t, err)
}
