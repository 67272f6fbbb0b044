// Package json defines the JSON format of the access permissions.
package json

import (
	"encoding/json"

	"go.dedis.ch/crush/core/access"
	"go.dedis.ch/crush/core/access/darc"
	"go.dedis.ch/crush/crypto"
	"go.dedis.ch/crush/serde"
	"golang.org/x/xerrors"
)

func init() {
	darc.RegisterPermissionFormat(serde.FormatJSON, permFormat{})
}

// PermissionJSON is the JSON message of a permission.
type PermissionJSON struct {
	Rules map[string]RuleJSON
}

// RuleJSON is the JSON message of the groups allowed for a rule. Identities
// are stored once and groups refer to them by index.
type RuleJSON struct {
	Identities []json.RawMessage
	Groups     [][]int
}

// PermFormat is the format to encode and decode permission messages.
//
// - implements serde.FormatEngine
type permFormat struct{}

// Encode implements serde.FormatEngine. It encodes the permission message if
// appropriate, otherwise it returns an error.
func (permFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	perm, ok := msg.(*darc.Permission)
	if !ok {
		return nil, xerrors.Errorf("invalid permission '%T'", msg)
	}

	rules := make(map[string]RuleJSON)

	for _, rule := range perm.GetRules() {
		m, err := encodeRule(ctx, perm.GetGroups(rule))
		if err != nil {
			return nil, xerrors.Errorf("failed to encode rule: %v", err)
		}

		rules[rule] = m
	}

	data, err := ctx.Marshal(PermissionJSON{Rules: rules})
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal: %v", err)
	}

	return data, nil
}

func encodeRule(ctx serde.Context, groups []darc.IdentitySet) (RuleJSON, error) {
	identities := darc.NewIdentitySet()
	indices := make([][]int, len(groups))

	for i, group := range groups {
		indices[i] = make([]int, len(group))

		for j, ident := range group {
			index, found := identities.Search(ident)
			if !found {
				identities = append(identities, ident)
				index = len(identities) - 1
			}

			indices[i][j] = index
		}
	}

	raws := make([]json.RawMessage, len(identities))

	for i, ident := range identities {
		data, err := ident.Serialize(ctx)
		if err != nil {
			return RuleJSON{}, xerrors.Errorf("failed to serialize identity: %v", err)
		}

		raws[i] = data
	}

	return RuleJSON{Identities: raws, Groups: indices}, nil
}

// Decode implements serde.FormatEngine. It populates the permission from the
// data if appropriate, otherwise it returns an error.
func (permFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := PermissionJSON{}
	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal: %v", err)
	}

	opts := make([]darc.PermissionOption, 0, len(m.Rules))

	for rule, raw := range m.Rules {
		groups, err := decodeRule(ctx, raw)
		if err != nil {
			return nil, xerrors.Errorf("failed to decode rule: %v", err)
		}

		opts = append(opts, darc.WithGroups(rule, groups...))
	}

	return darc.NewPermission(opts...), nil
}

func decodeRule(ctx serde.Context, m RuleJSON) ([]darc.IdentitySet, error) {
	fac := ctx.GetFactory(darc.PublicKeyFac{})

	factory, ok := fac.(crypto.PublicKeyFactory)
	if !ok {
		return nil, xerrors.Errorf("invalid public key factory '%T'", fac)
	}

	identities := make([]access.Identity, len(m.Identities))

	for i, raw := range m.Identities {
		pubkey, err := factory.PublicKeyOf(ctx, raw)
		if err != nil {
			return nil, xerrors.Errorf("public key: %v", err)
		}

		identities[i] = pubkey
	}

	groups := make([]darc.IdentitySet, len(m.Groups))

	for i, indices := range m.Groups {
		groups[i] = make(darc.IdentitySet, len(indices))

		for j, index := range indices {
			if index < 0 || index >= len(identities) {
				return nil, xerrors.Errorf("identity index %d out of range", index)
			}

			groups[i][j] = identities[index]
		}
	}

	return groups, nil
}
