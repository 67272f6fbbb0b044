// Package serde defines the primitives to serialize and deserialize (serde)
// messages.
//
// A message is encoded by looking up the format engine registered for the
// format of the context. Each message package registers its engines for the
// formats it supports, usually in a subpackage named after the format.
package serde

import "io"

// Format is the identifier of an encoding format.
type Format string

const (
	// FormatJSON is the identifier of the JSON format.
	FormatJSON Format = "JSON"

	// FormatCBOR is the identifier of the CBOR format.
	FormatCBOR Format = "CBOR"
)

// Message is the interface that a message must implement to be serialized.
type Message interface {
	// Serialize returns the data of the message according to the context.
	Serialize(ctx Context) ([]byte, error)
}

// Fingerprinter is an interface to write a deterministic binary representation
// of a message, usually to compute a digest.
type Fingerprinter interface {
	Fingerprint(writer io.Writer) error
}

// Factory is the interface to implement to deserialize a message.
type Factory interface {
	// Deserialize returns the message from the data according to the context.
	Deserialize(ctx Context, data []byte) (Message, error)
}

// FormatEngine is the interface that a format must implement to encode and
// decode messages.
type FormatEngine interface {
	// Encode returns the data of the message for the format.
	Encode(ctx Context, message Message) ([]byte, error)

	// Decode returns the message of the data for the format.
	Decode(ctx Context, data []byte) (Message, error)
}
