// Package cbor implements the context engine for the CBOR format.
//
// The encoder uses the Core Deterministic Encoding of RFC 8949 so that the
// same message always produces the same bytes.
package cbor

import (
	"github.com/fxamacker/cbor/v2"
	"go.dedis.ch/crush/serde"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cbor: encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("cbor: decoder initialization failed: " + err.Error())
	}
}

// CBOREngine is a context engine to marshal and unmarshal in CBOR format.
//
// - implements serde.ContextEngine
type cborEngine struct{}

// NewContext returns a CBOR context.
func NewContext() serde.Context {
	return serde.NewContext(cborEngine{})
}

// GetFormat implements serde.ContextEngine. It returns the CBOR format name.
func (cborEngine) GetFormat() serde.Format {
	return serde.FormatCBOR
}

// Marshal implements serde.ContextEngine. It returns the deterministic CBOR
// encoding of the message.
func (cborEngine) Marshal(m interface{}) ([]byte, error) {
	return encMode.Marshal(m)
}

// Unmarshal implements serde.ContextEngine. It populates the message from the
// CBOR data.
func (cborEngine) Unmarshal(data []byte, m interface{}) error {
	return decMode.Unmarshal(data, m)
}
