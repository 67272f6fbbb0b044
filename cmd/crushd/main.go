// Package main implements the crush node. The node keeps the records in a
// local database and relays the submissions of the clients.
//
//	crushd --config /tmp/node start --dbbackend sqlite
//	crushd --config /tmp/node proxy start --clientaddr 127.0.0.1:8080
//	crushd --config /tmp/node crush relay
//	crushd --config /tmp/node crush submit --tag <hex> --cipher <hex>
//	crushd --config /tmp/node crush show --tag <hex>
package main

import (
	"fmt"
	"io"
	"os"

	"go.dedis.ch/crush/cli/node"
	crush "go.dedis.ch/crush/contracts/crush"
	crushctl "go.dedis.ch/crush/contracts/crush/controller"
	ledger "go.dedis.ch/crush/core/ledger/controller"
	proxy "go.dedis.ch/crush/proxy/http/controller"
)

func main() {
	err := run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	return runWithCfg(args, config{Writer: os.Stdout})
}

type config struct {
	Channel chan os.Signal
	Writer  io.Writer
}

func runWithCfg(args []string, cfg config) error {
	builder := node.NewBuilderWithCfg(
		cfg.Channel,
		cfg.Writer,
		ledger.NewController(crush.NewCreds()),
		crushctl.NewController(),
		proxy.NewController(),
	)

	app := builder.Build()

	err := app.Run(args)
	if err != nil {
		return err
	}

	return nil
}
