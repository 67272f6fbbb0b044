// Package access defines the interfaces for the Access Rights Control.
package access

import (
	"encoding"
	"strings"

	"go.dedis.ch/crush/core/store"
	"go.dedis.ch/crush/serde"
)

// Identity is an abstraction to uniquely identify a signer.
type Identity interface {
	serde.Message
	encoding.TextMarshaler

	// Equal returns true when the other object is the same identity.
	Equal(other interface{}) bool
}

// Credential is an abstraction of an entity that allows one to verify the
// access of a group of identities.
type Credential interface {
	// GetID returns the key of the permission in the store.
	GetID() []byte

	// GetRule returns the name of the rule the credential is for.
	GetRule() string
}

// Service is an access control service that stores the permissions in a store
// so that they follow the state of the ledger.
type Service interface {
	// Match returns nil if the group of identities has access to the
	// credential, otherwise the reason why it is denied.
	Match(store store.Readable, creds Credential, idents ...Identity) error

	// Grant gives the access to the credential to the group of identities.
	Grant(store store.Snapshot, creds Credential, idents ...Identity) error
}

// Compile returns a compacted rule from the string segments.
func Compile(segments ...string) string {
	return strings.Join(segments, ":")
}
