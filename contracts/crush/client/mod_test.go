package client

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/crush/cli/node"
	"go.dedis.ch/crush/contracts/crush"
	"go.dedis.ch/crush/contracts/crush/controller"
	"go.dedis.ch/crush/core/access/darc"
	_ "go.dedis.ch/crush/core/access/darc/json"
	"go.dedis.ch/crush/core/execution/native"
	"go.dedis.ch/crush/core/ledger"
	"go.dedis.ch/crush/core/rent"
	"go.dedis.ch/crush/core/store"
	"go.dedis.ch/crush/core/store/kv"
	"go.dedis.ch/crush/crypto/ed25519"
	"go.dedis.ch/crush/internal/testing/fake"
	"go.dedis.ch/crush/serde/json"
)

func TestClient_Submit(t *testing.T) {
	srv := makeServer(t)
	client := NewClient(srv.URL+"/", WithHTTPClient(srv.Client()))

	alice := ed25519.NewSigner()
	bob := ed25519.NewSigner()
	tag := makeTag(7)

	_, err := client.Record(tag)
	require.EqualError(t, err, "status 404: tag "+tag.String()+": record not found")

	filled, err := client.Submit(alice, tag, makeCipher(1))
	require.NoError(t, err)
	require.Equal(t, crush.OneSided, filled)

	nonce, err := client.Nonce(alice.GetPublicKey())
	require.NoError(t, err)
	require.Equal(t, uint64(1), nonce)

	filled, err = client.Submit(bob, tag, makeCipher(2))
	require.NoError(t, err)
	require.Equal(t, crush.Mutual, filled)

	_, err = client.Submit(alice, tag, makeCipher(3))
	require.Equal(t, StatusError{Code: http.StatusConflict, Message: crush.ErrAlreadyMutual.Error()}, err)

	view, err := client.Record(tag)
	require.NoError(t, err)
	require.Equal(t, makeCipher(1), view.Record.SlotA)
	require.Equal(t, makeCipher(2), view.Record.SlotB)
}

func TestClient_Failures(t *testing.T) {
	client := NewClient("http://127.0.0.1:0")

	_, err := client.Relayer()
	require.Error(t, err)
	require.Contains(t, err.Error(), "request failed: ")

	_, err = client.Submit(ed25519.NewSigner(), makeTag(1), makeCipher(1))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to get relayer: ")

	_, err = client.Nonce(fake.NewBadPublicKey())
	require.EqualError(t, err, fake.Err("failed to marshal identity"))

	client = NewClient("://")

	_, err = client.Relayer()
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to create request: ")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{"))
	}))
	defer srv.Close()

	_, err = NewClient(srv.URL).Relayer()
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to decode response: ")
}

func TestMakeTransaction(t *testing.T) {
	_, err := MakeTransaction(fake.NewBadSigner(), ed25519.NewSigner().GetPublicKey(), 0,
		makeTag(1), makeCipher(1))
	require.Error(t, err)
}

func TestActions(t *testing.T) {
	srv := makeServer(t)

	signer := ed25519.NewSigner()
	data, err := signer.MarshalBinary()
	require.NoError(t, err)

	key := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(key, data, 0600))

	out := new(bytes.Buffer)
	a := action{printer: out, readFile: os.ReadFile}

	tag := strings.Repeat("ab", crush.TagSize)

	flags := node.FlagSet{
		"url":    srv.URL,
		"tag":    tag,
		"cipher": strings.Repeat("01", crush.CipherSize),
		"key":    key,
	}

	require.NoError(t, a.submitAction(flags))
	require.Equal(t, "1 ONE_SIDED\n", out.String())

	out.Reset()
	require.NoError(t, a.showAction(flags))
	require.Contains(t, out.String(), "state: ONE_SIDED\n")
	require.Contains(t, out.String(), "slot_a: "+strings.Repeat("01", crush.CipherSize))
	require.NotContains(t, out.String(), "slot_b")

	out.Reset()
	require.NoError(t, a.addressAction(flags))

	parsed, err := crush.ParseTag(tag)
	require.NoError(t, err)

	addr, _, err := parsed.Address()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out.String(), addr.String()+" "))

	flags["key"] = filepath.Join(t.TempDir(), "missing")

	err = a.submitAction(flags)
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read key: ")

	flags["tag"] = "ab"

	err = a.submitAction(flags)
	require.EqualError(t, err, "invalid tag: expected 32 bytes but got 1")

	err = a.showAction(flags)
	require.EqualError(t, err, "invalid tag: expected 32 bytes but got 1")

	err = a.addressAction(flags)
	require.EqualError(t, err, "invalid tag: expected 32 bytes but got 1")
}

// -----------------------------------------------------------------------------
// Utility functions

func makeServer(t *testing.T) *httptest.Server {
	db, err := kv.New(filepath.Join(t.TempDir(), "crush.db"))
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	exec := native.NewExecution()
	accessSrvc := darc.NewService(json.NewContext())
	rentSrvc := rent.NewService()

	crush.RegisterContract(exec, crush.NewContract(accessSrvc, rentSrvc))

	l := ledger.NewLedger(db, exec)
	relayer := ed25519.NewSigner()

	err = l.Update(func(snap store.Snapshot) error {
		err := accessSrvc.Grant(snap, crush.NewCreds(), relayer.GetPublicKey())
		if err != nil {
			return err
		}

		return rentSrvc.Credit(snap, relayer.GetPublicKey(), 1_000_000_000)
	})
	require.NoError(t, err)

	srv := httptest.NewServer(controller.NewAPI(l, relayer).Router())
	t.Cleanup(srv.Close)

	return srv
}

func makeTag(b byte) crush.Tag {
	var tag crush.Tag
	copy(tag[:], bytes.Repeat([]byte{b}, crush.TagSize))

	return tag
}

func makeCipher(b byte) crush.Cipher {
	var c crush.Cipher
	copy(c[:], bytes.Repeat([]byte{b}, crush.CipherSize))

	return c
}
