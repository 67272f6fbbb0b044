package crush

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/crush/internal/testing/fake"
)

func TestSubmit_FirstFillsSlotA(t *testing.T) {
	store := NewMemoryStore()
	tag := makeTag(1)

	filled, err := Submit(store, tag, makeCipher(0xc1))
	require.NoError(t, err)
	require.Equal(t, OneSided, filled)

	rec, found, err := store.Get(tag)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, OneSided, rec.Filled)
	require.Equal(t, makeCipher(0xc1), rec.SlotA)
	require.Equal(t, Cipher{}, rec.SlotB)
}

func TestSubmit_SecondFillsSlotB(t *testing.T) {
	store := NewMemoryStore()
	tag := makeTag(1)

	_, err := Submit(store, tag, makeCipher(0xc1))
	require.NoError(t, err)

	filled, err := Submit(store, tag, makeCipher(0xc2))
	require.NoError(t, err)
	require.Equal(t, Mutual, filled)

	rec, _, err := store.Get(tag)
	require.NoError(t, err)
	require.Equal(t, Mutual, rec.Filled)
	require.Equal(t, makeCipher(0xc1), rec.SlotA)
	require.Equal(t, makeCipher(0xc2), rec.SlotB)
}

func TestSubmit_ThirdIsRejected(t *testing.T) {
	store := NewMemoryStore()
	tag := makeTag(1)

	_, err := Submit(store, tag, makeCipher(0xc1))
	require.NoError(t, err)
	_, err = Submit(store, tag, makeCipher(0xc2))
	require.NoError(t, err)

	before, _, err := store.Get(tag)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		filled, err := Submit(store, tag, makeCipher(0xc3))
		require.True(t, errors.Is(err, ErrAlreadyMutual))
		require.EqualError(t, err, "this crush has already been reciprocated and is mutual")
		require.Equal(t, FillCount(0), filled)
	}

	after, _, err := store.Get(tag)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestSubmit_PayloadRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	tag := makeTag(2)

	var payload Cipher
	for i := range payload {
		payload[i] = byte(i * 5)
	}

	_, err := Submit(store, tag, payload)
	require.NoError(t, err)

	rec, _, err := store.Get(tag)
	require.NoError(t, err)
	require.Equal(t, payload, rec.SlotA)
}

func TestSubmit_NewTagIsCreated(t *testing.T) {
	store := NewMemoryStore()
	tag := makeTag(3)

	_, found, err := store.Get(tag)
	require.NoError(t, err)
	require.False(t, found)

	filled, err := Submit(store, tag, makeCipher(1))
	require.NoError(t, err)
	require.Equal(t, OneSided, filled)
	require.Equal(t, 1, store.Len())

	_, bump, err := tag.Address()
	require.NoError(t, err)

	rec, found, err := store.Get(tag)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, bump, rec.Bump)
}

func TestSubmit_Scenario(t *testing.T) {
	store := NewMemoryStore()
	tag := makeTag(0x7a)

	c1, c2, c3 := makeCipher(0xc1), makeCipher(0xc2), makeCipher(0xc3)

	filled, err := Submit(store, tag, c1)
	require.NoError(t, err)
	require.Equal(t, OneSided, filled)

	filled, err = Submit(store, tag, c2)
	require.NoError(t, err)
	require.Equal(t, Mutual, filled)

	_, err = Submit(store, tag, c3)
	require.True(t, errors.Is(err, ErrAlreadyMutual))

	rec, _, err := store.Get(tag)
	require.NoError(t, err)
	require.Equal(t, Mutual, rec.Filled)
	require.Equal(t, c1, rec.SlotA)
	require.Equal(t, c2, rec.SlotB)
}

func TestSubmit_Concurrent(t *testing.T) {
	for round := 0; round < 20; round++ {
		store := NewMemoryStore()
		tag := makeTag(byte(round))

		const n = 8

		var wg sync.WaitGroup
		results := make([]error, n)

		for i := 0; i < n; i++ {
			wg.Add(1)

			go func(i int) {
				defer wg.Done()

				results[i] = submitWithRetry(store, tag, makeCipher(byte(i+1)))
			}(i)
		}

		wg.Wait()

		accepted := map[Cipher]struct{}{}
		for i, err := range results {
			if err == nil {
				accepted[makeCipher(byte(i+1))] = struct{}{}
			} else {
				require.True(t, errors.Is(err, ErrAlreadyMutual), err.Error())
			}
		}

		require.Len(t, accepted, 2)

		rec, _, err := store.Get(tag)
		require.NoError(t, err)
		require.Equal(t, Mutual, rec.Filled)
		require.NotEqual(t, rec.SlotA, rec.SlotB)
		require.Contains(t, accepted, rec.SlotA)
		require.Contains(t, accepted, rec.SlotB)
	}
}

func TestSubmit_StoreFailures(t *testing.T) {
	tag := makeTag(1)

	_, err := Submit(badStore{errCreate: fake.GetError()}, tag, Cipher{})
	require.EqualError(t, err, fake.GetError().Error())

	_, err = Submit(badStore{errCAS: ErrConflict}, tag, Cipher{})
	require.True(t, errors.Is(err, ErrConflict))
}

// -----------------------------------------------------------------------------
// Utility functions

func submitWithRetry(store RecordStore, tag Tag, payload Cipher) error {
	for {
		_, err := Submit(store, tag, payload)
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
}

type badStore struct {
	RecordStore

	errCreate error
	errCAS    error
}

func (s badStore) CreateIfAbsent(Tag) (Record, error) {
	return Record{}, s.errCreate
}

func (s badStore) CompareAndSet(Tag, FillCount, Record) error {
	return s.errCAS
}
