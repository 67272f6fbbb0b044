package rent

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/crush/core/store/prefixed"
	"go.dedis.ch/crush/internal/testing/fake"
)

func TestService_Minimum(t *testing.T) {
	srvc := NewService()

	// Size of a crush record.
	require.Equal(t, uint64(1628640), srvc.Minimum(106))
	require.Equal(t, uint64(890880), srvc.Minimum(0))

	srvc = NewService(WithLamportsPerByteYear(1), WithExemptionYears(1))
	require.Equal(t, uint64(234), srvc.Minimum(106))
}

func TestService_Credit(t *testing.T) {
	srvc := NewService()
	snap := fake.NewSnapshot()
	alice := fake.PublicKey{Data: []byte("alice")}

	balance, err := srvc.Balance(snap, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(0), balance)

	require.NoError(t, srvc.Credit(snap, alice, 10))
	require.NoError(t, srvc.Credit(snap, alice, 5))

	balance, err = srvc.Balance(snap, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(15), balance)

	balance, err = srvc.Balance(snap, fake.PublicKey{Data: []byte("bob")})
	require.NoError(t, err)
	require.Equal(t, uint64(0), balance)

	err = srvc.Credit(snap, alice, math.MaxUint64)
	require.EqualError(t, err, "balance overflow: 15 + 18446744073709551615")

	err = srvc.Credit(fake.NewBadSnapshot(), alice, 1)
	require.EqualError(t, err, fake.Err("failed to read balance"))

	badSnap := fake.NewSnapshot()
	badSnap.ErrWrite = fake.GetError()
	err = srvc.Credit(badSnap, alice, 1)
	require.EqualError(t, err, fake.Err("failed to write balance"))

	err = srvc.Credit(snap, fake.NewBadPublicKey(), 1)
	require.EqualError(t, err, fake.Err("failed to marshal identity"))
}

func TestService_Balance_Malformed(t *testing.T) {
	srvc := NewService()
	snap := fake.NewSnapshot()
	alice := fake.PublicKey{Data: []byte("alice")}

	key, err := alice.MarshalText()
	require.NoError(t, err)

	require.NoError(t, prefixed.NewSnapshot(prefix, snap).Set(key, []byte{1, 2}))

	_, err = srvc.Balance(snap, alice)
	require.EqualError(t, err, "invalid balance of size 2")
}

func TestService_Charge(t *testing.T) {
	srvc := NewService(WithLamportsPerByteYear(1), WithExemptionYears(1))
	snap := fake.NewSnapshot()
	alice := fake.PublicKey{Data: []byte("alice")}

	require.NoError(t, srvc.Credit(snap, alice, 300))

	amount, err := srvc.Charge(snap, alice, 106)
	require.NoError(t, err)
	require.Equal(t, uint64(234), amount)

	balance, err := srvc.Balance(snap, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(66), balance)

	_, err = srvc.Charge(snap, alice, 106)
	require.EqualError(t, err, "balance 66 < 234: insufficient funds")
	require.True(t, errors.Is(err, ErrInsufficientFunds))

	balance, err = srvc.Balance(snap, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(66), balance)

	_, err = srvc.Charge(snap, nil, 106)
	require.EqualError(t, err, "payer is missing")

	_, err = srvc.Charge(fake.NewBadSnapshot(), alice, 106)
	require.EqualError(t, err, fake.Err("failed to read balance"))
}
