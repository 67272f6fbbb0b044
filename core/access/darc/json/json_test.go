package json

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/crush/core/access/darc"
	"go.dedis.ch/crush/internal/testing/fake"
	"go.dedis.ch/crush/serde"
)

const testValue = `{"Rules":{"test":{"Identities":[{}],"Groups":[[0]]}}}`

func TestPermFormat_Encode(t *testing.T) {
	format := permFormat{}

	ctx := fake.NewContext()

	perm := darc.NewPermission(darc.WithRule("test", fake.PublicKey{}))

	data, err := format.Encode(ctx, perm)
	require.NoError(t, err)
	require.Equal(t, testValue, string(data))

	_, err = format.Encode(ctx, fake.Message{})
	require.EqualError(t, err, "invalid permission 'fake.Message'")

	_, err = format.Encode(fake.NewBadContext(), perm)
	require.EqualError(t, err, fake.Err("failed to marshal"))

	perm = darc.NewPermission(darc.WithRule("test", fake.NewBadPublicKey()))
	_, err = format.Encode(ctx, perm)
	require.EqualError(t, err, fake.Err("failed to encode rule: failed to serialize identity"))
}

func TestPermFormat_Decode(t *testing.T) {
	format := permFormat{}

	ctx := fake.NewContext()
	ctx = serde.WithFactory(ctx, darc.PublicKeyFac{}, fake.NewPublicKeyFactory(fake.PublicKey{}))

	msg, err := format.Decode(ctx, []byte(testValue))
	require.NoError(t, err)
	require.Equal(t, darc.NewPermission(darc.WithRule("test", fake.PublicKey{})), msg)

	_, err = format.Decode(fake.NewBadContext(), []byte(`{}`))
	require.EqualError(t, err, fake.Err("failed to unmarshal"))

	badCtx := serde.WithFactory(ctx, darc.PublicKeyFac{}, nil)
	_, err = format.Decode(badCtx, []byte(testValue))
	require.EqualError(t, err, "failed to decode rule: invalid public key factory '<nil>'")

	badCtx = serde.WithFactory(ctx, darc.PublicKeyFac{}, fake.NewBadPublicKeyFactory())
	_, err = format.Decode(badCtx, []byte(testValue))
	require.EqualError(t, err, fake.Err("failed to decode rule: public key"))

	_, err = format.Decode(ctx, []byte(`{"Rules":{"test":{"Identities":[],"Groups":[[1]]}}}`))
	require.EqualError(t, err, "failed to decode rule: identity index 1 out of range")
}
