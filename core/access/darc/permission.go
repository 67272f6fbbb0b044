package darc

import (
	"sort"

	"go.dedis.ch/crush/core/access"
	"go.dedis.ch/crush/crypto"
	"go.dedis.ch/crush/crypto/ed25519"
	"go.dedis.ch/crush/serde"
	"go.dedis.ch/crush/serde/registry"
	"golang.org/x/xerrors"
)

var permFormats = registry.NewSimpleRegistry()

// RegisterPermissionFormat registers the engine for the provided format.
func RegisterPermissionFormat(f serde.Format, e serde.FormatEngine) {
	permFormats.Register(f, e)
}

// IdentitySet is a set of identities that must agree together.
type IdentitySet []access.Identity

// NewIdentitySet creates a new identity set from the list of identities by
// removing duplicates.
func NewIdentitySet(idents ...access.Identity) IdentitySet {
	set := make(IdentitySet, 0, len(idents))

	for _, ident := range idents {
		if !set.Contains(ident) {
			set = append(set, ident)
		}
	}

	return set
}

// Contains returns true if the identity exists in the set.
func (set IdentitySet) Contains(target access.Identity) bool {
	_, found := set.Search(target)
	return found
}

// Search returns the index of the identity in the set, or a negative value and
// false if it does not exist.
func (set IdentitySet) Search(target access.Identity) (int, bool) {
	for i, ident := range set {
		if ident.Equal(target) {
			return i, true
		}
	}

	return -1, false
}

// IsSuperset returns true if every identity of the other set is in the set.
func (set IdentitySet) IsSuperset(o IdentitySet) bool {
	if len(set) < len(o) {
		return false
	}

	for _, ident := range o {
		if !set.Contains(ident) {
			return false
		}
	}

	return true
}

// Permission is the list of groups of identities allowed for each rule. A group
// matches when all of its members are present.
//
// - implements serde.Message
type Permission struct {
	rules map[string][]IdentitySet
}

// PermissionOption is the option type to create a permission.
type PermissionOption func(*Permission)

// WithRule is an option to grant a group the access to a rule.
func WithRule(rule string, group ...access.Identity) PermissionOption {
	return func(perm *Permission) {
		perm.Allow(rule, group...)
	}
}

// WithGroups is an option to set the groups of a rule.
func WithGroups(rule string, groups ...IdentitySet) PermissionOption {
	return func(perm *Permission) {
		perm.rules[rule] = groups
	}
}

// NewPermission returns a new permission without any rule.
func NewPermission(opts ...PermissionOption) *Permission {
	perm := &Permission{
		rules: make(map[string][]IdentitySet),
	}

	for _, opt := range opts {
		opt(perm)
	}

	return perm
}

// GetRules returns the sorted list of rule names.
func (perm *Permission) GetRules() []string {
	rules := make([]string, 0, len(perm.rules))
	for rule := range perm.rules {
		rules = append(rules, rule)
	}

	sort.Strings(rules)

	return rules
}

// GetGroups returns the groups allowed for the rule.
func (perm *Permission) GetGroups(rule string) []IdentitySet {
	return append([]IdentitySet{}, perm.rules[rule]...)
}

// Allow grants the rule to the group unless a group that is a subset is
// already allowed.
func (perm *Permission) Allow(rule string, group ...access.Identity) {
	set := NewIdentitySet(group...)
	if len(set) == 0 {
		return
	}

	for _, allowed := range perm.rules[rule] {
		if set.IsSuperset(allowed) {
			return
		}
	}

	perm.rules[rule] = append(perm.rules[rule], set)
}

// Deny removes every group of the rule that is included in the given group.
func (perm *Permission) Deny(rule string, group ...access.Identity) {
	set := NewIdentitySet(group...)
	if len(set) == 0 {
		return
	}

	var kept []IdentitySet
	for _, allowed := range perm.rules[rule] {
		if !set.IsSuperset(allowed) {
			kept = append(kept, allowed)
		}
	}

	if len(kept) == 0 {
		delete(perm.rules, rule)
		return
	}

	perm.rules[rule] = kept
}

// Match returns nil if at least one allowed group of the rule is included in
// the group of identities.
func (perm *Permission) Match(rule string, group ...access.Identity) error {
	if len(group) == 0 {
		return xerrors.New("expect at least one identity")
	}

	groups, found := perm.rules[rule]
	if !found {
		return xerrors.Errorf("rule '%s' not found", rule)
	}

	set := NewIdentitySet(group...)

	for _, allowed := range groups {
		if set.IsSuperset(allowed) {
			return nil
		}
	}

	return xerrors.Errorf("rule '%s': unauthorized: %v", rule, group)
}

// Serialize implements serde.Message. It returns the data of the permission in
// the format of the context.
func (perm *Permission) Serialize(ctx serde.Context) ([]byte, error) {
	format := permFormats.Get(ctx.GetFormat())

	data, err := format.Encode(ctx, perm)
	if err != nil {
		return nil, xerrors.Errorf("couldn't encode permission: %v", err)
	}

	return data, nil
}

// PublicKeyFac is the key of the public key factory in the serde context.
type PublicKeyFac struct{}

// PermissionFactory is the factory to deserialize the permissions.
//
// - implements serde.Factory
type PermissionFactory struct {
	pubkeyFac crypto.PublicKeyFactory
}

// NewPermissionFactory returns a new factory for permissions of Ed25519
// identities.
func NewPermissionFactory() PermissionFactory {
	return PermissionFactory{
		pubkeyFac: ed25519.NewPublicKeyFactory(),
	}
}

// Deserialize implements serde.Factory.
func (f PermissionFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.PermissionOf(ctx, data)
}

// PermissionOf returns the permission of the data if appropriate, otherwise an
// error.
func (f PermissionFactory) PermissionOf(ctx serde.Context, data []byte) (*Permission, error) {
	format := permFormats.Get(ctx.GetFormat())

	ctx = serde.WithFactory(ctx, PublicKeyFac{}, f.pubkeyFac)

	msg, err := format.Decode(ctx, data)
	if err != nil {
		return nil, xerrors.Errorf("couldn't decode permission: %v", err)
	}

	perm, ok := msg.(*Permission)
	if !ok {
		return nil, xerrors.Errorf("invalid permission '%T'", msg)
	}

	return perm, nil
}
