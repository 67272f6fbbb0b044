// Package main provides the client CLI of the relay API, and the commands to
// generate the keys of the submitters.
//
//	crushctl ed25519 signer new --save alice.key
//	crushctl crush submit --key alice.key --tag <hex> --cipher <hex>
//	crushctl crush show --tag <hex>
package main

import (
	"fmt"
	"io"
	"os"

	"go.dedis.ch/crush/cli"
	"go.dedis.ch/crush/cli/ucli"
	"go.dedis.ch/crush/contracts/crush/client"
	ed25519 "go.dedis.ch/crush/crypto/ed25519/command"
)

var builder cli.Builder = ucli.NewBuilder("crushctl", nil)
var printer io.Writer = os.Stderr

func main() {
	err := run(os.Args, ed25519.Initializer{}, client.Initializer{})
	if err != nil {
		fmt.Fprintf(printer, "%+v\n", err)
	}
}

func run(args []string, inits ...cli.Initializer) error {
	for _, init := range inits {
		init.SetCommands(builder)
	}

	app := builder.Build()
	err := app.Run(args)
	if err != nil {
		return err
	}

	return nil
}
