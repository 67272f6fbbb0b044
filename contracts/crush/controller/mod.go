// Package controller implements the initializer of the crush contract. It
// registers the contract to the execution service of the ledger and provides
// the commands to submit, inspect and relay submissions.
package controller

import (
	"go.dedis.ch/crush/cli"
	"go.dedis.ch/crush/cli/node"
	"go.dedis.ch/crush/contracts/crush"
	"go.dedis.ch/crush/core/access"
	"go.dedis.ch/crush/core/execution/native"
	"go.dedis.ch/crush/core/rent"
	"golang.org/x/xerrors"
)

const (
	defaultFormat = "json"
	defaultPrefix = "/api"
)

// miniController is the initializer of the crush contract. It must be started
// after the ledger.
//
// - implements node.Initializer
type miniController struct{}

// NewController returns the initializer of the crush contract.
func NewController() node.Initializer {
	return miniController{}
}

// SetCommands implements node.Initializer.
func (miniController) SetCommands(builder node.Builder) {
	cmd := builder.SetCommand("crush")
	cmd.SetDescription("interact with the crush records")

	sub := cmd.SetSubCommand("submit")
	sub.SetDescription("submit a ciphertext under a tag")
	sub.SetFlags(
		cli.StringFlag{
			Name:     "tag",
			Usage:    "tag of the record in hexadecimal (32 bytes)",
			Required: true,
		},
		cli.StringFlag{
			Name:     "cipher",
			Usage:    "ciphertext in hexadecimal (48 bytes)",
			Required: true,
		},
		cli.StringFlag{
			Name:  "key",
			Usage: "path to the private key of the submitter, created if missing",
		},
	)
	sub.SetAction(builder.MakeAction(submitAction{}))

	sub = cmd.SetSubCommand("show")
	sub.SetDescription("display the record of a tag")
	sub.SetFlags(
		cli.StringFlag{
			Name:     "tag",
			Usage:    "tag of the record in hexadecimal (32 bytes)",
			Required: true,
		},
		cli.StringFlag{
			Name:  "format",
			Usage: "output format, json or cbor",
			Value: defaultFormat,
		},
	)
	sub.SetAction(builder.MakeAction(showAction{}))

	sub = cmd.SetSubCommand("relay")
	sub.SetDescription("mount the relay API on the proxy")
	sub.SetFlags(cli.StringFlag{
		Name:  "prefix",
		Usage: "path prefix of the routes",
		Value: defaultPrefix,
	})
	sub.SetAction(builder.MakeAction(relayAction{}))
}

// OnStart implements node.Initializer. It registers the contract to the native
// execution service.
func (miniController) OnStart(flags cli.Flags, inj node.Injector) error {
	var exec *native.Service
	err := inj.Resolve(&exec)
	if err != nil {
		return xerrors.Errorf("failed to resolve native service: %v", err)
	}

	var accessSrvc access.Service
	err = inj.Resolve(&accessSrvc)
	if err != nil {
		return xerrors.Errorf("failed to resolve access service: %v", err)
	}

	var rentSrvc rent.Service
	err = inj.Resolve(&rentSrvc)
	if err != nil {
		return xerrors.Errorf("failed to resolve rent service: %v", err)
	}

	crush.RegisterContract(exec, crush.NewContract(accessSrvc, rentSrvc))

	return nil
}

// OnStop implements node.Initializer.
func (miniController) OnStop(node.Injector) error {
	return nil
}
