package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/crush/serde"
)

func TestSimpleRegistry_Register(t *testing.T) {
	reg := NewSimpleRegistry()

	reg.Register(serde.FormatJSON, fakeFormat{})
	require.Len(t, reg.store, 1)

	reg.Register(serde.FormatJSON, fakeFormat{})
	require.Len(t, reg.store, 1)

	reg.Register(serde.FormatCBOR, fakeFormat{})
	require.Len(t, reg.store, 2)
}

func TestSimpleRegistry_Get(t *testing.T) {
	reg := NewSimpleRegistry()
	reg.Register(serde.FormatJSON, fakeFormat{})

	require.Equal(t, fakeFormat{}, reg.Get(serde.FormatJSON))

	format := reg.Get(serde.FormatCBOR)
	require.IsType(t, emptyFormat{}, format)

	_, err := format.Encode(serde.Context{}, nil)
	require.EqualError(t, err, "format 'CBOR' is not implemented")

	_, err = format.Decode(serde.Context{}, nil)
	require.EqualError(t, err, "format 'CBOR' is not implemented")
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeFormat struct {
	serde.FormatEngine
}
