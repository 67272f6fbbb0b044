// Package signed is an implementation of the transaction abstraction.
//
// It uses signatures to make sure the identity owns the transaction and that
// the payer agrees to fund it. The nonce is a monotonically increasing number
// that is used to prevent a replay attack of an existing transaction.
package signed

import (
	"encoding/binary"
	"io"
	"sort"

	"go.dedis.ch/crush"
	"go.dedis.ch/crush/core/access"
	"go.dedis.ch/crush/core/txn"
	"go.dedis.ch/crush/crypto"
	"go.dedis.ch/crush/crypto/ed25519"
	"go.dedis.ch/crush/serde"
	"go.dedis.ch/crush/serde/registry"
	"golang.org/x/xerrors"
)

var txFormats = registry.NewSimpleRegistry()

// RegisterTransactionFormat registers the engine for the provided format.
func RegisterTransactionFormat(f serde.Format, e serde.FormatEngine) {
	txFormats.Register(f, e)
}

// Transaction is a signed transaction using a nonce to protect itself against
// replay attack.
//
// - implements txn.Transaction
type Transaction struct {
	nonce    uint64
	args     map[string][]byte
	pubkey   crypto.PublicKey
	sig      crypto.Signature
	payer    crypto.PublicKey
	payerSig crypto.Signature
	hash     []byte
}

type template struct {
	Transaction

	hashFactory crypto.HashFactory
}

// TransactionOption is the type of options to create a transaction.
type TransactionOption func(*template)

// WithArg is an option to set an argument with the key and the value.
func WithArg(key string, value []byte) TransactionOption {
	return func(tmpl *template) {
		tmpl.args[key] = value
	}
}

// WithSignature is an option to set a valid signature. The signature will be
// verified against the identity.
func WithSignature(sig crypto.Signature) TransactionOption {
	return func(tmpl *template) {
		tmpl.sig = sig
	}
}

// WithPayer is an option to set the identity that pays for the transaction.
// The payer is part of the digest.
func WithPayer(pk crypto.PublicKey) TransactionOption {
	return func(tmpl *template) {
		tmpl.payer = pk
	}
}

// WithPayerSignature is an option to set a valid signature of the payer. The
// signature will be verified against the payer.
func WithPayerSignature(sig crypto.Signature) TransactionOption {
	return func(tmpl *template) {
		tmpl.payerSig = sig
	}
}

// WithHashFactory is an option to set a different hash factory when creating a
// transaction.
func WithHashFactory(f crypto.HashFactory) TransactionOption {
	return func(tmpl *template) {
		tmpl.hashFactory = f
	}
}

// NewTransaction creates a new transaction with the provided nonce.
func NewTransaction(nonce uint64, pk crypto.PublicKey, opts ...TransactionOption) (*Transaction, error) {
	tmpl := template{
		Transaction: Transaction{
			nonce:  nonce,
			pubkey: pk,
			args:   make(map[string][]byte),
		},
		hashFactory: crypto.NewHashFactory(crypto.Sha256),
	}

	for _, opt := range opts {
		opt(&tmpl)
	}

	h := tmpl.hashFactory.New()
	err := tmpl.Fingerprint(h)
	if err != nil {
		return nil, xerrors.Errorf("couldn't fingerprint tx: %v", err)
	}

	tmpl.hash = h.Sum(nil)

	if tmpl.sig != nil {
		err := tmpl.pubkey.Verify(tmpl.hash, tmpl.sig)
		if err != nil {
			return nil, xerrors.Errorf("invalid signature: %v", err)
		}
	}

	if tmpl.payerSig != nil {
		if tmpl.payer == nil {
			return nil, xerrors.New("payer signature without payer")
		}

		err := tmpl.payer.Verify(tmpl.hash, tmpl.payerSig)
		if err != nil {
			return nil, xerrors.Errorf("invalid payer signature: %v", err)
		}
	}

	return &tmpl.Transaction, nil
}

// GetID implements txn.Transaction. It returns the ID of the transaction.
func (t *Transaction) GetID() []byte {
	return t.hash
}

// GetNonce implements txn.Transaction. It returns the nonce of the transaction.
func (t *Transaction) GetNonce() uint64 {
	return t.nonce
}

// GetIdentity implements txn.Transaction. It returns the public key of the
// requester.
func (t *Transaction) GetIdentity() access.Identity {
	return t.pubkey
}

// GetPayer implements txn.Transaction. It returns the public key of the payer,
// or nil when there is none.
func (t *Transaction) GetPayer() access.Identity {
	if t.payer == nil {
		return nil
	}

	return t.payer
}

// GetPublicKey returns the public key of the requester.
func (t *Transaction) GetPublicKey() crypto.PublicKey {
	return t.pubkey
}

// GetPayerKey returns the public key of the payer if any.
func (t *Transaction) GetPayerKey() crypto.PublicKey {
	return t.payer
}

// GetSignature returns the signature of the transaction.
func (t *Transaction) GetSignature() crypto.Signature {
	return t.sig
}

// GetPayerSignature returns the signature of the payer.
func (t *Transaction) GetPayerSignature() crypto.Signature {
	return t.payerSig
}

// GetArgs returns the sorted list of arguments available.
func (t *Transaction) GetArgs() []string {
	args := make([]string, 0, len(t.args))
	for key := range t.args {
		args = append(args, key)
	}

	sort.Strings(args)

	return args
}

// GetArg implements txn.Transaction. It returns the value of the argument if it
// is set, otherwise nil.
func (t *Transaction) GetArg(key string) []byte {
	return t.args[key]
}

// Sign signs the transaction as the requester and stores the signature.
func (t *Transaction) Sign(signer crypto.Signer) error {
	if len(t.hash) == 0 {
		return xerrors.New("missing digest in transaction")
	}

	if !signer.GetPublicKey().Equal(t.pubkey) {
		return xerrors.New("mismatch signer and identity")
	}

	sig, err := signer.Sign(t.hash)
	if err != nil {
		return xerrors.Errorf("signer: %v", err)
	}

	t.sig = sig

	return nil
}

// CoSign signs the transaction as the payer and stores the signature.
func (t *Transaction) CoSign(signer crypto.Signer) error {
	if len(t.hash) == 0 {
		return xerrors.New("missing digest in transaction")
	}

	if t.payer == nil || !signer.GetPublicKey().Equal(t.payer) {
		return xerrors.New("mismatch signer and payer")
	}

	sig, err := signer.Sign(t.hash)
	if err != nil {
		return xerrors.Errorf("signer: %v", err)
	}

	t.payerSig = sig

	return nil
}

// Verify returns nil if the requester signed the transaction and, when a payer
// is defined, if the payer co-signed it. Contracts that require a payer must
// check its presence themselves.
func (t *Transaction) Verify() error {
	if t.sig == nil {
		return xerrors.New("signature is missing")
	}

	err := t.pubkey.Verify(t.hash, t.sig)
	if err != nil {
		return xerrors.Errorf("invalid signature: %v", err)
	}

	if t.payer == nil {
		return nil
	}

	if t.payerSig == nil {
		return xerrors.New("payer signature is missing")
	}

	err = t.payer.Verify(t.hash, t.payerSig)
	if err != nil {
		return xerrors.Errorf("invalid payer signature: %v", err)
	}

	return nil
}

// Fingerprint implements serde.Fingerprinter. It writes a deterministic binary
// representation of the transaction.
func (t *Transaction) Fingerprint(w io.Writer) error {
	buffer := make([]byte, 8)
	binary.LittleEndian.PutUint64(buffer, t.nonce)

	_, err := w.Write(buffer)
	if err != nil {
		return xerrors.Errorf("couldn't write nonce: %v", err)
	}

	for _, key := range t.GetArgs() {
		_, err = w.Write(lengthPrefixed([]byte(key), t.args[key]))
		if err != nil {
			return xerrors.Errorf("couldn't write arg: %v", err)
		}
	}

	buffer, err = t.pubkey.MarshalBinary()
	if err != nil {
		return xerrors.Errorf("failed to marshal public key: %v", err)
	}

	_, err = w.Write(buffer)
	if err != nil {
		return xerrors.Errorf("couldn't write public key: %v", err)
	}

	if t.payer == nil {
		return nil
	}

	buffer, err = t.payer.MarshalBinary()
	if err != nil {
		return xerrors.Errorf("failed to marshal payer: %v", err)
	}

	_, err = w.Write(buffer)
	if err != nil {
		return xerrors.Errorf("couldn't write payer: %v", err)
	}

	return nil
}

// Serialize implements serde.Message. It returns the serialized data of the
// transaction.
func (t *Transaction) Serialize(ctx serde.Context) ([]byte, error) {
	format := txFormats.Get(ctx.GetFormat())

	data, err := format.Encode(ctx, t)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode: %v", err)
	}

	return data, nil
}

// lengthPrefixed returns the concatenation of the parts, each one preceded by
// its length.
func lengthPrefixed(parts ...[]byte) []byte {
	var out []byte

	for _, part := range parts {
		length := make([]byte, 4)
		binary.LittleEndian.PutUint32(length, uint32(len(part)))

		out = append(out, length...)
		out = append(out, part...)
	}

	return out
}

// PublicKeyFac is the key of the public key factory.
type PublicKeyFac struct{}

// SignatureFac is the key of the signature factory.
type SignatureFac struct{}

// TransactionFactory is a factory to deserialize transactions.
//
// - implements serde.Factory
type TransactionFactory struct {
	pubkeyFac crypto.PublicKeyFactory
	sigFac    crypto.SignatureFactory
}

// NewTransactionFactory returns a new factory for transactions signed with
// Ed25519 keys.
func NewTransactionFactory() TransactionFactory {
	return TransactionFactory{
		pubkeyFac: ed25519.NewPublicKeyFactory(),
		sigFac:    ed25519.NewSignatureFactory(),
	}
}

// Deserialize implements serde.Factory. It populates the transaction from the
// data if appropriate, otherwise it returns an error.
func (f TransactionFactory) Deserialize(ctx serde.Context, data []byte) (serde.Message, error) {
	return f.TransactionOf(ctx, data)
}

// TransactionOf implements txn.Factory. It populates the transaction from the
// data if appropriate, otherwise it returns an error.
func (f TransactionFactory) TransactionOf(ctx serde.Context, data []byte) (txn.Transaction, error) {
	format := txFormats.Get(ctx.GetFormat())

	ctx = serde.WithFactory(ctx, PublicKeyFac{}, f.pubkeyFac)
	ctx = serde.WithFactory(ctx, SignatureFac{}, f.sigFac)

	msg, err := format.Decode(ctx, data)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode: %v", err)
	}

	tx, ok := msg.(*Transaction)
	if !ok {
		return nil, xerrors.Errorf("invalid transaction of type '%T'", msg)
	}

	return tx, nil
}

// Client is the interface the manager is using to get the nonce of an identity.
// It allows a local implementation, or through a network client.
type Client interface {
	GetNonce(access.Identity) (uint64, error)
}

// TransactionManager is a manager to create signed transactions. It manages the
// nonce by itself, except if the transaction is refused by the ledger. In that
// case the manager should be synchronized before creating a new one.
//
// - implements txn.Manager
type TransactionManager struct {
	client  Client
	signer  crypto.Signer
	payer   crypto.Signer
	nonce   uint64
	hashFac crypto.HashFactory
}

// ManagerOption is the type of options to create a manager.
type ManagerOption func(*TransactionManager)

// WithPayerSigner is an option to co-sign every transaction with the payer.
func WithPayerSigner(payer crypto.Signer) ManagerOption {
	return func(mgr *TransactionManager) {
		mgr.payer = payer
	}
}

// WithManagerHashFactory is an option to set the hash factory of the
// transactions created by the manager.
func WithManagerHashFactory(f crypto.HashFactory) ManagerOption {
	return func(mgr *TransactionManager) {
		mgr.hashFac = f
	}
}

// NewManager creates a new transaction manager.
func NewManager(signer crypto.Signer, client Client, opts ...ManagerOption) *TransactionManager {
	mgr := &TransactionManager{
		client:  client,
		signer:  signer,
		nonce:   0,
		hashFac: crypto.NewHashFactory(crypto.Sha256),
	}

	for _, opt := range opts {
		opt(mgr)
	}

	return mgr
}

// Make implements txn.Manager. It creates a transaction populated with the
// arguments.
func (mgr *TransactionManager) Make(args ...txn.Arg) (txn.Transaction, error) {
	opts := make([]TransactionOption, len(args), len(args)+2)
	for i, arg := range args {
		opts[i] = WithArg(arg.Key, arg.Value)
	}

	opts = append(opts, WithHashFactory(mgr.hashFac))

	if mgr.payer != nil {
		opts = append(opts, WithPayer(mgr.payer.GetPublicKey()))
	}

	tx, err := NewTransaction(mgr.nonce, mgr.signer.GetPublicKey(), opts...)
	if err != nil {
		return nil, xerrors.Errorf("failed to create tx: %v", err)
	}

	err = tx.Sign(mgr.signer)
	if err != nil {
		return nil, xerrors.Errorf("failed to sign: %v", err)
	}

	if mgr.payer != nil {
		err = tx.CoSign(mgr.payer)
		if err != nil {
			return nil, xerrors.Errorf("failed to co-sign: %v", err)
		}
	}

	mgr.nonce++

	return tx, nil
}

// Sync implements txn.Manager. It fetches the latest nonce of the signer to
// create valid transactions.
func (mgr *TransactionManager) Sync() error {
	nonce, err := mgr.client.GetNonce(mgr.signer.GetPublicKey())
	if err != nil {
		return xerrors.Errorf("client: %v", err)
	}

	mgr.nonce = nonce

	crush.Logger.Debug().Uint64("nonce", nonce).Msg("manager synchronized")

	return nil
}
