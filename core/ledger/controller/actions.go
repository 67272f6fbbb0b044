package controller

import (
	"fmt"

	"go.dedis.ch/crush"
	"go.dedis.ch/crush/cli/node"
	"go.dedis.ch/crush/core/access"
	"go.dedis.ch/crush/core/ledger"
	"go.dedis.ch/crush/core/rent"
	"go.dedis.ch/crush/core/store"
	"go.dedis.ch/crush/crypto/ed25519"
	"golang.org/x/xerrors"
)

// fundAction is an action to credit the balance of an identity.
//
// - implements node.ActionTemplate
type fundAction struct{}

// Execute implements node.ActionTemplate. It credits the amount to the identity
// and prints the new balance.
func (fundAction) Execute(ctx node.Context) error {
	var l *ledger.Ledger
	err := ctx.Injector.Resolve(&l)
	if err != nil {
		return xerrors.Errorf("failed to resolve ledger: %v", err)
	}

	var srvc rent.Service
	err = ctx.Injector.Resolve(&srvc)
	if err != nil {
		return xerrors.Errorf("failed to resolve rent service: %v", err)
	}

	ident, err := ed25519.ParsePublicKey(ctx.Flags.String("identity"))
	if err != nil {
		return xerrors.Errorf("invalid identity: %v", err)
	}

	amount := ctx.Flags.Int("amount")
	if amount <= 0 {
		return xerrors.Errorf("invalid amount %d", amount)
	}

	var balance uint64

	err = l.Update(func(snap store.Snapshot) error {
		err := srvc.Credit(snap, ident, uint64(amount))
		if err != nil {
			return err
		}

		balance, err = srvc.Balance(snap, ident)
		return err
	})
	if err != nil {
		return xerrors.Errorf("failed to credit: %v", err)
	}

	crush.Logger.Info().
		Stringer("identity", ident).
		Int("amount", amount).
		Msg("identity funded")

	fmt.Fprintln(ctx.Out, balance)

	return nil
}

// balanceAction is an action to display the balance of an identity.
//
// - implements node.ActionTemplate
type balanceAction struct{}

// Execute implements node.ActionTemplate. It prints the balance of the
// identity.
func (balanceAction) Execute(ctx node.Context) error {
	var l *ledger.Ledger
	err := ctx.Injector.Resolve(&l)
	if err != nil {
		return xerrors.Errorf("failed to resolve ledger: %v", err)
	}

	var srvc rent.Service
	err = ctx.Injector.Resolve(&srvc)
	if err != nil {
		return xerrors.Errorf("failed to resolve rent service: %v", err)
	}

	ident, err := ed25519.ParsePublicKey(ctx.Flags.String("identity"))
	if err != nil {
		return xerrors.Errorf("invalid identity: %v", err)
	}

	var balance uint64

	err = l.View(func(snap store.Readable) error {
		balance, err = srvc.Balance(snap, ident)
		return err
	})
	if err != nil {
		return xerrors.Errorf("failed to read balance: %v", err)
	}

	fmt.Fprintln(ctx.Out, balance)

	return nil
}

// nonceAction is an action to display the next nonce expected for an
// identity.
//
// - implements node.ActionTemplate
type nonceAction struct{}

// Execute implements node.ActionTemplate.
func (nonceAction) Execute(ctx node.Context) error {
	var l *ledger.Ledger
	err := ctx.Injector.Resolve(&l)
	if err != nil {
		return xerrors.Errorf("failed to resolve ledger: %v", err)
	}

	ident, err := ed25519.ParsePublicKey(ctx.Flags.String("identity"))
	if err != nil {
		return xerrors.Errorf("invalid identity: %v", err)
	}

	nonce, err := l.GetNonce(ident)
	if err != nil {
		return xerrors.Errorf("failed to read nonce: %v", err)
	}

	fmt.Fprintln(ctx.Out, nonce)

	return nil
}

// relayerAction is an action to display the public key of the relayer.
//
// - implements node.ActionTemplate
type relayerAction struct{}

// Execute implements node.ActionTemplate.
func (relayerAction) Execute(ctx node.Context) error {
	var relayer Relayer
	err := ctx.Injector.Resolve(&relayer)
	if err != nil {
		return xerrors.Errorf("failed to resolve relayer: %v", err)
	}

	text, err := relayer.GetPublicKey().MarshalText()
	if err != nil {
		return xerrors.Errorf("failed to marshal public key: %v", err)
	}

	fmt.Fprintln(ctx.Out, string(text))

	return nil
}

// addAccessAction is an action to authorize identities to pay for the
// submissions.
//
// - implements node.ActionTemplate
type addAccessAction struct {
	creds access.Credential
}

// Execute implements node.ActionTemplate. It reads the list of identities and
// grants them the credential.
func (a addAccessAction) Execute(ctx node.Context) error {
	var l *ledger.Ledger
	err := ctx.Injector.Resolve(&l)
	if err != nil {
		return xerrors.Errorf("failed to resolve ledger: %v", err)
	}

	var srvc access.Service
	err = ctx.Injector.Resolve(&srvc)
	if err != nil {
		return xerrors.Errorf("failed to resolve access service: %v", err)
	}

	identities, err := parseIdentities(ctx.Flags.StringSlice("identity"))
	if err != nil {
		return xerrors.Errorf("failed to parse identities: %v", err)
	}

	err = l.Update(func(snap store.Snapshot) error {
		return srvc.Grant(snap, a.creds, identities...)
	})
	if err != nil {
		return xerrors.Errorf("failed to grant: %v", err)
	}

	crush.Logger.Info().Msgf("access granted to %v", identities)

	return nil
}

func parseIdentities(texts []string) ([]access.Identity, error) {
	if len(texts) == 0 {
		return nil, xerrors.New("no identity")
	}

	identities := make([]access.Identity, len(texts))

	for i, text := range texts {
		pk, err := ed25519.ParsePublicKey(text)
		if err != nil {
			return nil, xerrors.Errorf("failed to parse identity '%s': %v", text, err)
		}

		identities[i] = pk
	}

	return identities, nil
}
