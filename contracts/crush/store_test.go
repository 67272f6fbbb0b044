package crush

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/crush/core/address"
	"go.dedis.ch/crush/core/store/mem"
	"go.dedis.ch/crush/internal/testing/fake"
)

func TestSnapshotStore_Submit(t *testing.T) {
	snap := mem.NewSnapshot(nil)
	tag := makeTag(9)

	var created []address.Address

	store := NewSnapshotStore(snap, WithCreatedHook(func(_ Tag, addr address.Address) error {
		created = append(created, addr)
		return nil
	}))

	filled, err := Submit(store, tag, makeCipher(1))
	require.NoError(t, err)
	require.Equal(t, OneSided, filled)

	filled, err = Submit(store, tag, makeCipher(2))
	require.NoError(t, err)
	require.Equal(t, Mutual, filled)

	_, err = Submit(store, tag, makeCipher(3))
	require.True(t, errors.Is(err, ErrAlreadyMutual))

	addr, bump, err := tag.Address()
	require.NoError(t, err)
	require.Equal(t, []address.Address{addr}, created)

	data, err := snap.Get(addr[:])
	require.NoError(t, err)

	var rec Record
	require.NoError(t, rec.UnmarshalBinary(data))
	require.Equal(t, Record{Bump: bump, Filled: Mutual, SlotA: makeCipher(1), SlotB: makeCipher(2)}, rec)

	require.Equal(t, 1, snap.Len())
}

func TestSnapshotStore_Get(t *testing.T) {
	snap := mem.NewSnapshot(nil)
	store := NewSnapshotStore(snap)
	tag := makeTag(4)

	_, found, err := store.Get(tag)
	require.NoError(t, err)
	require.False(t, found)

	// Fetching a record never alters the state.
	require.Equal(t, 0, snap.Len())

	_, err = store.CreateIfAbsent(tag)
	require.NoError(t, err)

	rec, found, err := store.Get(tag)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, Empty, rec.Filled)
}

func TestLookup(t *testing.T) {
	snap := mem.NewSnapshot(nil)
	tag := makeTag(5)

	_, found, err := Lookup(snap, tag)
	require.NoError(t, err)
	require.False(t, found)

	_, err = Submit(NewSnapshotStore(snap), tag, makeCipher(7))
	require.NoError(t, err)

	rec, found, err := Lookup(snap, tag)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, OneSided, rec.Filled)
	require.Equal(t, makeCipher(7), rec.SlotA)
}

func TestSnapshotStore_AddressMismatch(t *testing.T) {
	snap := mem.NewSnapshot(nil)
	store := NewSnapshotStore(snap)
	tag := makeTag(5)

	addr, bump, err := tag.Address()
	require.NoError(t, err)

	data, err := Record{Bump: bump - 1}.MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, snap.Set(addr[:], data))

	_, _, err = store.Get(tag)
	require.True(t, errors.Is(err, ErrAddressMismatch))

	_, err = Submit(store, tag, makeCipher(1))
	require.True(t, errors.Is(err, ErrAddressMismatch))
}

func TestSnapshotStore_Malformed(t *testing.T) {
	snap := mem.NewSnapshot(nil)
	store := NewSnapshotStore(snap)
	tag := makeTag(6)

	addr, _, err := tag.Address()
	require.NoError(t, err)
	require.NoError(t, snap.Set(addr[:], []byte{1, 2, 3}))

	_, _, err = store.Get(tag)
	require.EqualError(t, err, "failed to decode record: invalid record size: 3 != 106")
}

func TestSnapshotStore_CreatedHookFails(t *testing.T) {
	snap := mem.NewSnapshot(nil)
	store := NewSnapshotStore(snap, WithCreatedHook(func(Tag, address.Address) error {
		return fake.GetError()
	}))

	_, err := Submit(store, makeTag(1), makeCipher(1))
	require.EqualError(t, err, fake.Err("creation refused"))
	require.Equal(t, 0, snap.Len())
}

func TestSnapshotStore_CompareAndSet(t *testing.T) {
	store := NewSnapshotStore(mem.NewSnapshot(nil))
	tag := makeTag(7)

	err := store.CompareAndSet(tag, Empty, Record{Filled: OneSided})
	require.True(t, errors.Is(err, ErrConflict))

	_, err = store.CreateIfAbsent(tag)
	require.NoError(t, err)

	err = store.CompareAndSet(tag, OneSided, Record{Filled: Mutual})
	require.True(t, errors.Is(err, ErrConflict))
	require.Contains(t, err.Error(), "expected fill count 1 but found 0")

	err = store.CompareAndSet(tag, Empty, Record{Filled: OneSided})
	require.NoError(t, err)
}

func TestSnapshotStore_BadSnapshot(t *testing.T) {
	store := NewSnapshotStore(fake.NewBadSnapshot())

	_, _, err := store.Get(makeTag(1))
	require.EqualError(t, err, fake.Err("failed to read record"))

	_, err = store.CreateIfAbsent(makeTag(1))
	require.EqualError(t, err, fake.Err("failed to read record"))

	snap := fake.NewSnapshot()
	snap.ErrWrite = fake.GetError()

	_, err = NewSnapshotStore(snap).CreateIfAbsent(makeTag(1))
	require.EqualError(t, err, fake.Err("failed to write record"))
}

func TestMemoryStore_CompareAndSet(t *testing.T) {
	store := NewMemoryStore()
	tag := makeTag(8)

	err := store.CompareAndSet(tag, Empty, Record{})
	require.True(t, errors.Is(err, ErrConflict))

	_, err = store.CreateIfAbsent(tag)
	require.NoError(t, err)

	err = store.CompareAndSet(tag, Mutual, Record{})
	require.EqualError(t, err, "expected fill count 2 but found 0: concurrent update of the record")
}
