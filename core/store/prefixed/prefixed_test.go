package prefixed

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/crush/internal/testing/fake"
)

func TestSnapshot_SetGetDelete(t *testing.T) {
	parent := fake.NewSnapshot()

	nonces := NewSnapshot("nonce", parent)
	balances := NewSnapshot("rent", parent)

	require.NoError(t, nonces.Set([]byte("alice"), []byte{1}))
	require.NoError(t, balances.Set([]byte("alice"), []byte{2}))
	require.Equal(t, 2, parent.Len())

	value, err := nonces.Get([]byte("alice"))
	require.NoError(t, err)
	require.Equal(t, []byte{1}, value)

	value, err = balances.Get([]byte("alice"))
	require.NoError(t, err)
	require.Equal(t, []byte{2}, value)

	value, err = parent.Get(NewPrefixedKey([]byte("rent"), []byte("alice")))
	require.NoError(t, err)
	require.Equal(t, []byte{2}, value)

	require.NoError(t, nonces.Delete([]byte("alice")))
	require.Equal(t, 1, parent.Len())

	value, err = NewReadable("nonce", parent).Get([]byte("alice"))
	require.NoError(t, err)
	require.Nil(t, value)
}

func TestNewPrefixedKey(t *testing.T) {
	key := NewPrefixedKey([]byte("A"), []byte("B"))
	require.Len(t, key, 32)

	require.Equal(t, key, NewPrefixedKey([]byte("A"), []byte("B")))

	// The length of each part is hashed so that boundaries cannot be moved.
	require.NotEqual(t, key, NewPrefixedKey([]byte("AB"), nil))
	require.NotEqual(t, key, NewPrefixedKey(nil, []byte("AB")))
}
