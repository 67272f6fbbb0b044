// Package json defines the JSON format of signed transactions.
package json

import (
	"encoding/json"

	"go.dedis.ch/crush/core/txn/signed"
	"go.dedis.ch/crush/crypto"
	"go.dedis.ch/crush/serde"
	"golang.org/x/xerrors"
)

func init() {
	signed.RegisterTransactionFormat(serde.FormatJSON, txFormat{})
}

// TransactionJSON is the JSON message of a transaction.
type TransactionJSON struct {
	Nonce          uint64
	Args           map[string][]byte
	PublicKey      json.RawMessage
	Signature      json.RawMessage `json:",omitempty"`
	Payer          json.RawMessage `json:",omitempty"`
	PayerSignature json.RawMessage `json:",omitempty"`
}

// TxFormat is the JSON format engine for transactions.
//
// - implements serde.FormatEngine
type txFormat struct {
	hashFactory crypto.HashFactory
}

// Encode implements serde.FormatEngine. It returns the JSON data of the
// provided transaction if appropriate, otherwise it returns an error.
func (f txFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	tx, ok := msg.(*signed.Transaction)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	args := map[string][]byte{}
	for _, arg := range tx.GetArgs() {
		args[arg] = tx.GetArg(arg)
	}

	if tx.GetPublicKey() == nil {
		return nil, xerrors.New("public key is missing")
	}

	m := TransactionJSON{
		Nonce: tx.GetNonce(),
		Args:  args,
	}

	var err error

	m.PublicKey, err = tx.GetPublicKey().Serialize(ctx)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode public key: %v", err)
	}

	if tx.GetSignature() != nil {
		m.Signature, err = tx.GetSignature().Serialize(ctx)
		if err != nil {
			return nil, xerrors.Errorf("failed to encode signature: %v", err)
		}
	}

	if tx.GetPayerKey() != nil {
		m.Payer, err = tx.GetPayerKey().Serialize(ctx)
		if err != nil {
			return nil, xerrors.Errorf("failed to encode payer: %v", err)
		}
	}

	if tx.GetPayerSignature() != nil {
		m.PayerSignature, err = tx.GetPayerSignature().Serialize(ctx)
		if err != nil {
			return nil, xerrors.Errorf("failed to encode payer signature: %v", err)
		}
	}

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine. It returns the transaction from the
// JSON data if appropriate, otherwise it returns an error. Signatures are
// verified when they are present.
func (f txFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := TransactionJSON{}
	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal: %v", err)
	}

	pubkeyFac, ok := ctx.GetFactory(signed.PublicKeyFac{}).(crypto.PublicKeyFactory)
	if !ok {
		return nil, xerrors.Errorf("invalid public key factory '%T'",
			ctx.GetFactory(signed.PublicKeyFac{}))
	}

	sigFac, ok := ctx.GetFactory(signed.SignatureFac{}).(crypto.SignatureFactory)
	if !ok {
		return nil, xerrors.Errorf("invalid signature factory '%T'",
			ctx.GetFactory(signed.SignatureFac{}))
	}

	pubkey, err := pubkeyFac.PublicKeyOf(ctx, m.PublicKey)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode public key: %v", err)
	}

	opts := make([]signed.TransactionOption, 0, len(m.Args)+4)
	for key, value := range m.Args {
		opts = append(opts, signed.WithArg(key, value))
	}

	if len(m.Signature) > 0 {
		sig, err := sigFac.SignatureOf(ctx, m.Signature)
		if err != nil {
			return nil, xerrors.Errorf("failed to decode signature: %v", err)
		}

		opts = append(opts, signed.WithSignature(sig))
	}

	if len(m.Payer) > 0 {
		payer, err := pubkeyFac.PublicKeyOf(ctx, m.Payer)
		if err != nil {
			return nil, xerrors.Errorf("failed to decode payer: %v", err)
		}

		opts = append(opts, signed.WithPayer(payer))
	}

	if len(m.PayerSignature) > 0 {
		sig, err := sigFac.SignatureOf(ctx, m.PayerSignature)
		if err != nil {
			return nil, xerrors.Errorf("failed to decode payer signature: %v", err)
		}

		opts = append(opts, signed.WithPayerSignature(sig))
	}

	if f.hashFactory != nil {
		opts = append(opts, signed.WithHashFactory(f.hashFactory))
	}

	tx, err := signed.NewTransaction(m.Nonce, pubkey, opts...)
	if err != nil {
		return nil, xerrors.Errorf("failed to create tx: %v", err)
	}

	return tx, nil
}
