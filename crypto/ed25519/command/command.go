// Package command defines the cli commands to manage Ed25519 signers.
package command

import (
	"os"

	"go.dedis.ch/crush/cli"
	"go.dedis.ch/crush/crypto/ed25519"
)

// Initializer implements the Ed25519 initializer for the client CLI.
//
// - implements cli.Initializer
type Initializer struct{}

// SetCommands implements cli.Initializer.
func (i Initializer) SetCommands(provider cli.Provider) {
	action := action{
		printer: os.Stdout,

		genSigner: func() ([]byte, error) {
			return ed25519.NewSigner().MarshalBinary()
		},
		getPubKey: getPubkey,
		readFile:  os.ReadFile,
		saveFile:  saveToFile,
	}

	cmd := provider.SetCommand("ed25519")
	signer := cmd.SetSubCommand("signer")

	new := signer.SetSubCommand("new")
	new.SetDescription("create a new ed25519 signer")
	new.SetFlags(cli.StringFlag{
		Name:     "save",
		Usage:    "if provided, save the signer to that file",
		Required: false,
	}, cli.BoolFlag{
		Name:     "force",
		Usage:    "in the case it saves the signer, will overwrite if needed",
		Required: false,
	})
	new.SetAction(action.newSignerAction)

	read := signer.SetSubCommand("read")
	read.SetDescription("read a signer")
	read.SetFlags(cli.StringFlag{
		Name:     "path",
		Usage:    "path to the signer's file",
		Required: true,
	}, cli.StringFlag{
		Name:     "format",
		Usage:    "output format: [PUBKEY | HEX | HEX_PUBKEY]",
		Value:    Pubkey,
		Required: false,
	})
	read.SetAction(action.loadSignerAction)
}
