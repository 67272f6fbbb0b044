package fake

import (
	"encoding/json"

	"go.dedis.ch/crush/serde"
)

const (
	// GoodFormat is the identifier of a format that always succeeds.
	GoodFormat = serde.Format("FakeGood")

	// BadFormat is the identifier of a format that always fails.
	BadFormat = serde.Format("FakeBad")
)

// GetFakeFormatValue returns the value produced by the fake format.
func GetFakeFormatValue() []byte {
	return []byte("fake format")
}

// Message is a fake implementation of a serde message.
//
// - implements serde.Message
type Message struct {
	Digest []byte
}

// Serialize implements serde.Message. It returns the fake format value.
func (m Message) Serialize(serde.Context) ([]byte, error) {
	return GetFakeFormatValue(), nil
}

// Format is a fake format engine. It returns the configured message and error.
//
// - implements serde.FormatEngine
type Format struct {
	Msg  serde.Message
	Call *Call
	err  error
}

// NewBadFormat returns a format that always fails.
func NewBadFormat() Format {
	return Format{err: GetError()}
}

// Encode implements serde.FormatEngine. It records the call and returns the
// fake format value.
func (f Format) Encode(ctx serde.Context, m serde.Message) ([]byte, error) {
	f.Call.Add(ctx, m)

	if f.err != nil {
		return nil, f.err
	}

	return GetFakeFormatValue(), nil
}

// Decode implements serde.FormatEngine. It records the call and returns the
// configured message.
func (f Format) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	f.Call.Add(ctx, data)

	return f.Msg, f.err
}

// ContextEngine is a fake context engine that marshals with JSON.
//
// - implements serde.ContextEngine
type ContextEngine struct {
	format serde.Format
	err    error
}

// NewContext returns a context using the good fake format.
func NewContext() serde.Context {
	return serde.NewContext(ContextEngine{format: GoodFormat})
}

// NewContextWithFormat returns a context using the given format.
func NewContextWithFormat(f serde.Format) serde.Context {
	return serde.NewContext(ContextEngine{format: f})
}

// NewBadContext returns a context using the bad fake format.
func NewBadContext() serde.Context {
	return serde.NewContext(ContextEngine{format: BadFormat, err: GetError()})
}

// GetFormat implements serde.ContextEngine.
func (ctx ContextEngine) GetFormat() serde.Format {
	return ctx.format
}

// Marshal implements serde.ContextEngine. It returns the JSON encoding of the
// message or the configured error.
func (ctx ContextEngine) Marshal(m interface{}) ([]byte, error) {
	if ctx.err != nil {
		return nil, ctx.err
	}

	return json.Marshal(m)
}

// Unmarshal implements serde.ContextEngine. It decodes the JSON data or returns
// the configured error.
func (ctx ContextEngine) Unmarshal(data []byte, m interface{}) error {
	if ctx.err != nil {
		return ctx.err
	}

	return json.Unmarshal(data, m)
}
