package controller

import (
	"encoding/hex"
	"fmt"
	"path/filepath"

	"go.dedis.ch/crush/cli/node"
	"go.dedis.ch/crush/contracts/crush"
	"go.dedis.ch/crush/core/execution/native"
	"go.dedis.ch/crush/core/ledger"
	ledgerctl "go.dedis.ch/crush/core/ledger/controller"
	"go.dedis.ch/crush/core/store"
	"go.dedis.ch/crush/core/txn"
	"go.dedis.ch/crush/core/txn/signed"
	"go.dedis.ch/crush/proxy"
	"go.dedis.ch/crush/serde"
	"go.dedis.ch/crush/serde/cbor"
	"go.dedis.ch/crush/serde/json"
	"golang.org/x/xerrors"
)

const defaultKeyFile = "user.key"

// submitAction is an action to submit a ciphertext signed by a local key and
// paid by the relayer.
//
// - implements node.ActionTemplate
type submitAction struct{}

// Execute implements node.ActionTemplate. It executes the submission and
// prints the new fill count of the record.
func (submitAction) Execute(ctx node.Context) error {
	var l *ledger.Ledger
	err := ctx.Injector.Resolve(&l)
	if err != nil {
		return xerrors.Errorf("failed to resolve ledger: %v", err)
	}

	var relayer ledgerctl.Relayer
	err = ctx.Injector.Resolve(&relayer)
	if err != nil {
		return xerrors.Errorf("failed to resolve relayer: %v", err)
	}

	tag, err := crush.ParseTag(ctx.Flags.String("tag"))
	if err != nil {
		return err
	}

	cipher, err := crush.ParseCipher(ctx.Flags.String("cipher"))
	if err != nil {
		return err
	}

	path := ctx.Flags.String("key")
	if path == "" {
		var cfg *ledgerctl.Config
		err = ctx.Injector.Resolve(&cfg)
		if err != nil {
			return xerrors.Errorf("failed to resolve config: %v", err)
		}

		path = filepath.Join(cfg.Dir, defaultKeyFile)
	}

	signer, err := ledgerctl.LoadSigner(path)
	if err != nil {
		return xerrors.Errorf("failed to load key: %v", err)
	}

	mgr := signed.NewManager(signer, l, signed.WithPayerSigner(relayer))

	err = mgr.Sync()
	if err != nil {
		return xerrors.Errorf("failed to sync manager: %v", err)
	}

	tx, err := mgr.Make(
		txn.Arg{Key: native.ContractArg, Value: []byte(crush.ContractName)},
		txn.Arg{Key: crush.TagArg, Value: tag[:]},
		txn.Arg{Key: crush.CipherArg, Value: cipher[:]},
	)
	if err != nil {
		return xerrors.Errorf("failed to make tx: %v", err)
	}

	receipt, err := l.Execute(tx)
	if err != nil {
		return xerrors.Errorf("failed to execute tx: %v", err)
	}

	if !receipt.Accepted {
		return xerrors.Errorf("submission rejected: %s", receipt.Message)
	}

	filled := crush.FillCount(receipt.Data[0])

	fmt.Fprintf(ctx.Out, "%d %v\n", filled, filled)

	return nil
}

// showAction is an action to display the record of a tag.
//
// - implements node.ActionTemplate
type showAction struct{}

// Execute implements node.ActionTemplate. It prints the view of the record in
// the requested format. CBOR data is printed in hexadecimal.
func (showAction) Execute(ctx node.Context) error {
	var l *ledger.Ledger
	err := ctx.Injector.Resolve(&l)
	if err != nil {
		return xerrors.Errorf("failed to resolve ledger: %v", err)
	}

	var serdeCtx serde.Context

	format := ctx.Flags.String("format")
	switch format {
	case "", "json":
		serdeCtx = json.NewContext()
	case "cbor":
		serdeCtx = cbor.NewContext()
	default:
		return xerrors.Errorf("unknown format '%s'", format)
	}

	tag, err := crush.ParseTag(ctx.Flags.String("tag"))
	if err != nil {
		return err
	}

	view, err := readView(l, tag)
	if err != nil {
		return err
	}

	data, err := view.Serialize(serdeCtx)
	if err != nil {
		return xerrors.Errorf("failed to serialize: %v", err)
	}

	if format == "cbor" {
		fmt.Fprintln(ctx.Out, hex.EncodeToString(data))
	} else {
		fmt.Fprintln(ctx.Out, string(data))
	}

	return nil
}

// relayAction is an action to mount the relay API on the proxy.
//
// - implements node.ActionTemplate
type relayAction struct{}

// Execute implements node.ActionTemplate. The proxy must have been started
// beforehand.
func (relayAction) Execute(ctx node.Context) error {
	var p proxy.Proxy
	err := ctx.Injector.Resolve(&p)
	if err != nil {
		return xerrors.Errorf("failed to resolve proxy: %v", err)
	}

	var l *ledger.Ledger
	err = ctx.Injector.Resolve(&l)
	if err != nil {
		return xerrors.Errorf("failed to resolve ledger: %v", err)
	}

	var relayer ledgerctl.Relayer
	err = ctx.Injector.Resolve(&relayer)
	if err != nil {
		return xerrors.Errorf("failed to resolve relayer: %v", err)
	}

	prefix := ctx.Flags.String("prefix")
	if prefix == "" {
		prefix = defaultPrefix
	}

	p.Mount(prefix, NewAPI(l, relayer).Router())

	fmt.Fprintf(ctx.Out, "relay API mounted on %s", prefix)

	return nil
}

// errNotFound is returned when no record exists for a tag.
var errNotFound = xerrors.New("record not found")

func readView(l Ledger, tag crush.Tag) (crush.View, error) {
	var rec crush.Record
	var found bool

	err := l.View(func(snap store.Readable) error {
		var err error
		rec, found, err = crush.Lookup(snap, tag)
		return err
	})
	if err != nil {
		return crush.View{}, xerrors.Errorf("failed to read record: %v", err)
	}

	if !found {
		return crush.View{}, xerrors.Errorf("tag %v: %w", tag, errNotFound)
	}

	view, err := crush.NewView(tag, rec)
	if err != nil {
		return crush.View{}, err
	}

	return view, nil
}
