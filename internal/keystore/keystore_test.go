package keystore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	holograph "github.com/holographxyz/holograph-sub000"
)

var devAddresses = []string{
	"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
	"0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
	"0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC",
}

func loadedKeystore(t *testing.T) *Keystore {
	t.Helper()
	keys, err := LoadDevKeys()
	require.NoError(t, err)

	ks := NewKeystore()
	for _, key := range keys {
		require.NoError(t, ks.AddKey(key))
	}
	return ks
}

func TestLoadDevKeys(t *testing.T) {
	keys, err := LoadDevKeys()
	require.NoError(t, err)
	require.Len(t, keys, 3)

	for i, key := range keys {
		assert.Equal(t, devAddresses[i], key.Address)
		assert.Equal(t, "dev-"+string(rune('0'+i)), key.Name)
		assert.Len(t, key.PublicKey, 33)
		assert.NotEmpty(t, key.ID)
	}
}

func TestParseKey(t *testing.T) {
	withPrefix, err := ParseKey("a", "0x"+devKeys[0])
	require.NoError(t, err)
	bare, err := ParseKey("b", devKeys[0])
	require.NoError(t, err)
	assert.Equal(t, withPrefix.Address, bare.Address)

	_, err = ParseKey("bad", "0x1234")
	var ve *holograph.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestKeystore_GetKey(t *testing.T) {
	ks := loadedKeystore(t)

	t.Run("checksummed", func(t *testing.T) {
		key, err := ks.GetKey(devAddresses[1])
		require.NoError(t, err)
		assert.Equal(t, "dev-1", key.Name)
	})

	t.Run("lowercase", func(t *testing.T) {
		key, err := ks.GetKey(strings.ToLower(devAddresses[2]))
		require.NoError(t, err)
		assert.Equal(t, "dev-2", key.Name)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := ks.GetKey("0x0000000000000000000000000000000000000001")
		assert.ErrorIs(t, err, holograph.ErrKeyNotFound)
	})
}

func TestKeystore_Lookup(t *testing.T) {
	ks := loadedKeystore(t)

	byName, err := ks.Lookup("dev-0")
	require.NoError(t, err)
	byAddr, err := ks.Lookup(devAddresses[0])
	require.NoError(t, err)
	assert.Same(t, byName, byAddr)

	_, err = ks.Lookup("dev-9")
	assert.ErrorIs(t, err, holograph.ErrKeyNotFound)
}

func TestKeystore_AddDuplicate(t *testing.T) {
	ks := loadedKeystore(t)

	again, err := ParseKey("other", devKeys[0])
	require.NoError(t, err)
	assert.ErrorIs(t, ks.AddKey(again), holograph.ErrKeyExists)

	fresh, err := ParseKey("dev-0", "0x0123456789012345678901234567890123456789012345678901234567890123")
	require.NoError(t, err)
	assert.ErrorIs(t, ks.AddKey(fresh), holograph.ErrKeyExists, "names are unique too")
}

func TestKeystore_ListAndDelete(t *testing.T) {
	ks := loadedKeystore(t)

	keys := ks.ListKeys()
	require.Len(t, keys, 3)
	assert.Equal(t, "dev-0", keys[0].Name)
	assert.Equal(t, "dev-2", keys[2].Name)

	require.NoError(t, ks.DeleteKey(strings.ToLower(devAddresses[0])))
	assert.Len(t, ks.ListKeys(), 2)
	assert.ErrorIs(t, ks.DeleteKey(devAddresses[0]), holograph.ErrKeyNotFound)
}

func TestKey_Signer(t *testing.T) {
	ks := loadedKeystore(t)
	key, err := ks.GetKeyByName("dev-2")
	require.NoError(t, err)

	signer := key.Signer()
	assert.Equal(t, common.HexToAddress(devAddresses[2]), signer.Address())

	hash := common.HexToHash("0xb96faa45e2ee4f5a1d1b54a1b5b8bbf1fe4f06ea2a5d4be1eb4c57ea0e3de7b2")
	sig, err := holograph.Sign(context.Background(), hash, signer, holograph.RawHash)
	require.NoError(t, err)
	assert.True(t, holograph.Verify(hash, sig, signer.Address(), holograph.RawHash))
}

func TestKeystore_Concurrent(t *testing.T) {
	ks := loadedKeystore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := ks.GetKey(devAddresses[i%3])
			assert.NoError(t, err)
			_ = ks.ListKeys()
		}(i)
	}
	wg.Wait()
}
