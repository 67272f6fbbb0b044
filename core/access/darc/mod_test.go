package darc_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/crush/core/access"
	"go.dedis.ch/crush/core/access/darc"
	_ "go.dedis.ch/crush/core/access/darc/json"
	"go.dedis.ch/crush/crypto/ed25519"
	_ "go.dedis.ch/crush/crypto/ed25519/json"
	"go.dedis.ch/crush/internal/testing/fake"
	"go.dedis.ch/crush/serde/json"
)

var testCtx = json.NewContext()

func TestService_Match(t *testing.T) {
	store := fake.NewSnapshot()

	alice := ed25519.NewSigner()
	bob := ed25519.NewSigner()

	creds := access.NewContractCreds([]byte{0xaa}, "test", "match")

	perm := darc.NewPermission(darc.WithRule(creds.GetRule(), alice.GetPublicKey()))
	data, err := perm.Serialize(testCtx)
	require.NoError(t, err)

	require.NoError(t, store.Set([]byte{0xaa}, data))
	require.NoError(t, store.Set([]byte{0xbb}, []byte{}))

	srvc := darc.NewService(testCtx)

	err = srvc.Match(store, creds, alice.GetPublicKey())
	require.NoError(t, err)

	// Only the key of Alice is necessary, so it should pass.
	err = srvc.Match(store, creds, alice.GetPublicKey(), bob.GetPublicKey())
	require.NoError(t, err)

	err = srvc.Match(store, creds, bob.GetPublicKey())
	require.Error(t, err)
	require.Regexp(t,
		"^permission: rule 'test:match': unauthorized: \\[schnorr:[[:xdigit:]]+\\]", err.Error())

	err = srvc.Match(fake.NewBadSnapshot(), creds, alice.GetPublicKey())
	require.EqualError(t, err, fake.Err("store failed: while reading"))

	err = srvc.Match(store, access.NewContractCreds([]byte{0xcc}, "", ""))
	require.EqualError(t, err, "permission 0xcc not found")

	err = srvc.Match(store, access.NewContractCreds([]byte{0xbb}, "", ""), alice.GetPublicKey())
	require.Error(t, err)
	require.Contains(t, err.Error(), "store failed: permission malformed: couldn't decode permission: ")
}

func TestService_Grant(t *testing.T) {
	store := fake.NewSnapshot()

	creds := access.NewContractCreds([]byte{0xaa}, "test", "grant")

	alice := ed25519.NewSigner()
	bob := ed25519.NewSigner()

	srvc := darc.NewService(testCtx)

	err := srvc.Match(store, creds, alice.GetPublicKey())
	require.EqualError(t, err, "permission 0xaa not found")

	err = srvc.Grant(store, creds, alice.GetPublicKey())
	require.NoError(t, err)

	err = srvc.Grant(store, creds, bob.GetPublicKey())
	require.NoError(t, err)

	require.NoError(t, srvc.Match(store, creds, alice.GetPublicKey()))
	require.NoError(t, srvc.Match(store, creds, bob.GetPublicKey()))
	require.Error(t, srvc.Match(store, creds, ed25519.NewSigner().GetPublicKey()))

	err = srvc.Grant(fake.NewBadSnapshot(), creds)
	require.EqualError(t, err, fake.Err("store failed: while reading"))

	badStore := fake.NewSnapshot()
	badStore.ErrWrite = fake.GetError()
	err = srvc.Grant(badStore, creds, alice.GetPublicKey())
	require.EqualError(t, err, fake.Err("store failed to write"))
}
