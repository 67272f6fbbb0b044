package crush

import (
	"go.dedis.ch/crush/core/address"
	"go.dedis.ch/crush/serde"
	"go.dedis.ch/crush/serde/registry"
	"golang.org/x/xerrors"
)

var viewFormats = registry.NewSimpleRegistry()

// RegisterViewFormat registers the engine for the provided format.
func RegisterViewFormat(f serde.Format, e serde.FormatEngine) {
	viewFormats.Register(f, e)
}

// View is the public representation of a record with the tag and the address
// it is stored at.
//
// - implements serde.Message
type View struct {
	Tag     Tag
	Address address.Address
	Record  Record
}

// NewView returns the view of the record of the tag.
func NewView(tag Tag, rec Record) (View, error) {
	addr, _, err := tag.Address()
	if err != nil {
		return View{}, xerrors.Errorf("failed to derive address: %v", err)
	}

	view := View{
		Tag:     tag,
		Address: addr,
		Record:  rec,
	}

	return view, nil
}

// Serialize implements serde.Message.
func (v View) Serialize(ctx serde.Context) ([]byte, error) {
	format := viewFormats.Get(ctx.GetFormat())

	data, err := format.Encode(ctx, v)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode: %v", err)
	}

	return data, nil
}

// ViewFactory is the factory to deserialize record views.
//
// - implements serde.Factory
type ViewFactory struct{}

// NewViewFactory returns a new factory.
func NewViewFactory() ViewFactory {
	return ViewFactory{}
}

// Deserialize implements serde.Factory.
func (f ViewFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.ViewOf(ctx, data)
}

// ViewOf returns the view of the data if appropriate, otherwise an error.
func (f ViewFactory) ViewOf(ctx serde.Context, data []byte) (View, error) {
	format := viewFormats.Get(ctx.GetFormat())

	msg, err := format.Decode(ctx, data)
	if err != nil {
		return View{}, xerrors.Errorf("failed to decode: %v", err)
	}

	view, ok := msg.(View)
	if !ok {
		return View{}, xerrors.Errorf("invalid view of type '%T'", msg)
	}

	return view, nil
}
