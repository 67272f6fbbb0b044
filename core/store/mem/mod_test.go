package mem

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/crush/internal/testing/fake"
)

func TestSnapshot_Get(t *testing.T) {
	parent := NewSnapshot(nil)
	parent.store["B"] = item{value: []byte{2}}
	parent.store["D"] = item{value: []byte{3}}

	snap := NewSnapshot(parent)
	snap.store["A"] = item{value: []byte{1}}

	value, err := snap.Get([]byte("A"))
	require.NoError(t, err)
	require.Equal(t, []byte{1}, value)

	value, err = snap.Get([]byte("B"))
	require.NoError(t, err)
	require.Equal(t, []byte{2}, value)

	value, err = snap.Get([]byte("C"))
	require.NoError(t, err)
	require.Nil(t, value)

	snap.store["D"] = item{deleted: true}
	value, err = snap.Get([]byte("D"))
	require.NoError(t, err)
	require.Nil(t, value)

	snap = NewSnapshot(fake.NewBadSnapshot())
	_, err = snap.Get([]byte("A"))
	require.EqualError(t, err, fake.Err("parent failed"))
}

func TestSnapshot_Set(t *testing.T) {
	snap := NewSnapshot(nil)

	value := []byte{1}
	require.NoError(t, snap.Set([]byte("A"), value))
	require.Equal(t, item{value: []byte{1}}, snap.store["A"])

	value[0] = 2
	require.Equal(t, item{value: []byte{1}}, snap.store["A"])
}

func TestSnapshot_Delete(t *testing.T) {
	snap := NewSnapshot(nil)
	snap.store["A"] = item{value: []byte{1}}

	require.NoError(t, snap.Delete([]byte("A")))
	require.Equal(t, item{deleted: true}, snap.store["A"])

	require.NoError(t, snap.Delete([]byte("B")))
	require.Equal(t, item{deleted: true}, snap.store["B"])
	require.Equal(t, 2, snap.Len())
}

func TestSnapshot_Apply(t *testing.T) {
	parent := fake.NewSnapshot()
	require.NoError(t, parent.Set([]byte("B"), []byte{2}))

	snap := NewSnapshot(parent)
	require.NoError(t, snap.Set([]byte("A"), []byte{1}))
	require.NoError(t, snap.Delete([]byte("B")))

	value, err := parent.Get([]byte("A"))
	require.NoError(t, err)
	require.Nil(t, value)

	require.NoError(t, snap.Apply(parent))

	value, err = parent.Get([]byte("A"))
	require.NoError(t, err)
	require.Equal(t, []byte{1}, value)

	value, err = parent.Get([]byte("B"))
	require.NoError(t, err)
	require.Nil(t, value)

	err = snap.Apply(fake.NewBadSnapshot())
	require.EqualError(t, err, fake.Err("failed to apply key 0x41"))
}
