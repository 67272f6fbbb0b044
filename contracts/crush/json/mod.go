// Package json defines the JSON format of the record views. The same
// definition is registered for the CBOR format as the engine only relies on the
// context to marshal the message.
package json

import (
	"go.dedis.ch/crush/contracts/crush"
	"go.dedis.ch/crush/serde"
	"golang.org/x/xerrors"
)

func init() {
	crush.RegisterViewFormat(serde.FormatJSON, viewFormat{})
	crush.RegisterViewFormat(serde.FormatCBOR, viewFormat{})
}

// ViewJSON is the JSON message of a record view.
type ViewJSON struct {
	Tag     string `json:"tag" cbor:"tag"`
	Address string `json:"address" cbor:"address"`
	Bump    uint8  `json:"bump" cbor:"bump"`
	Filled  uint8  `json:"filled" cbor:"filled"`
	State   string `json:"state" cbor:"state"`
	SlotA   string `json:"slot_a,omitempty" cbor:"slot_a,omitempty"`
	SlotB   string `json:"slot_b,omitempty" cbor:"slot_b,omitempty"`
}

// ViewFormat is the format engine to encode and decode record views.
//
// - implements serde.FormatEngine
type viewFormat struct{}

// Encode implements serde.FormatEngine. It returns the data of the view. The
// slots are omitted until they are filled.
func (viewFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	view, ok := msg.(crush.View)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	m := ViewJSON{
		Tag:     view.Tag.String(),
		Address: view.Address.String(),
		Bump:    view.Record.Bump,
		Filled:  uint8(view.Record.Filled),
		State:   view.Record.Filled.String(),
	}

	if view.Record.Filled >= crush.OneSided {
		m.SlotA = view.Record.SlotA.String()
	}

	if view.Record.Filled >= crush.Mutual {
		m.SlotB = view.Record.SlotB.String()
	}

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine. It returns the view of the data. The
// address is checked against the one derived from the tag.
func (viewFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := ViewJSON{}

	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal: %v", err)
	}

	tag, err := crush.ParseTag(m.Tag)
	if err != nil {
		return nil, err
	}

	if m.Filled > uint8(crush.Mutual) {
		return nil, xerrors.Errorf("invalid fill count %d", m.Filled)
	}

	rec := crush.Record{
		Bump:   m.Bump,
		Filled: crush.FillCount(m.Filled),
	}

	if m.SlotA != "" {
		rec.SlotA, err = crush.ParseCipher(m.SlotA)
		if err != nil {
			return nil, xerrors.Errorf("slot A: %v", err)
		}
	}

	if m.SlotB != "" {
		rec.SlotB, err = crush.ParseCipher(m.SlotB)
		if err != nil {
			return nil, xerrors.Errorf("slot B: %v", err)
		}
	}

	view, err := crush.NewView(tag, rec)
	if err != nil {
		return nil, err
	}

	if view.Address.String() != m.Address {
		return nil, xerrors.Errorf("address mismatch: %s != %v", m.Address, view.Address)
	}

	return view, nil
}
