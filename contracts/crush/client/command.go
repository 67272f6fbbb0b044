package client

import (
	"fmt"
	"io"
	"os"

	"go.dedis.ch/crush/cli"
	"go.dedis.ch/crush/contracts/crush"
	"go.dedis.ch/crush/crypto/ed25519"
	"golang.org/x/xerrors"
)

const defaultURL = "http://127.0.0.1:8080/api"

// Initializer sets the commands of the client CLI.
//
// - implements cli.Initializer
type Initializer struct{}

// SetCommands implements cli.Initializer.
func (i Initializer) SetCommands(provider cli.Provider) {
	a := action{
		printer:  os.Stdout,
		readFile: os.ReadFile,
	}

	urlFlag := cli.StringFlag{
		Name:  "url",
		Usage: "URL of the relay API",
		Value: defaultURL,
	}

	tagFlag := cli.StringFlag{
		Name:     "tag",
		Usage:    "tag of the record in hexadecimal (32 bytes)",
		Required: true,
	}

	cmd := provider.SetCommand("crush")

	sub := cmd.SetSubCommand("submit")
	sub.SetDescription("submit a ciphertext through the relayer")
	sub.SetFlags(urlFlag, tagFlag,
		cli.StringFlag{
			Name:     "cipher",
			Usage:    "ciphertext in hexadecimal (48 bytes)",
			Required: true,
		},
		cli.StringFlag{
			Name:     "key",
			Usage:    "path to the signer's file",
			Required: true,
		},
	)
	sub.SetAction(a.submitAction)

	sub = cmd.SetSubCommand("show")
	sub.SetDescription("display the record of a tag")
	sub.SetFlags(urlFlag, tagFlag)
	sub.SetAction(a.showAction)

	sub = cmd.SetSubCommand("address")
	sub.SetDescription("display the address of the record of a tag")
	sub.SetFlags(tagFlag)
	sub.SetAction(a.addressAction)
}

type action struct {
	printer  io.Writer
	readFile func(filename string) ([]byte, error)
}

func (a action) submitAction(flags cli.Flags) error {
	tag, err := crush.ParseTag(flags.String("tag"))
	if err != nil {
		return err
	}

	cipher, err := crush.ParseCipher(flags.String("cipher"))
	if err != nil {
		return err
	}

	data, err := a.readFile(flags.Path("key"))
	if err != nil {
		return xerrors.Errorf("failed to read key: %v", err)
	}

	signer, err := ed25519.NewSignerFromBytes(data)
	if err != nil {
		return xerrors.Errorf("failed to unmarshal key: %v", err)
	}

	filled, err := NewClient(flags.String("url")).Submit(signer, tag, cipher)
	if err != nil {
		return xerrors.Errorf("failed to submit: %v", err)
	}

	fmt.Fprintf(a.printer, "%d %v\n", filled, filled)

	return nil
}

func (a action) showAction(flags cli.Flags) error {
	tag, err := crush.ParseTag(flags.String("tag"))
	if err != nil {
		return err
	}

	view, err := NewClient(flags.String("url")).Record(tag)
	if err != nil {
		return xerrors.Errorf("failed to fetch record: %v", err)
	}

	fmt.Fprintf(a.printer, "address: %v\nstate: %v\n", view.Address, view.Record.Filled)

	if view.Record.Filled >= crush.OneSided {
		fmt.Fprintf(a.printer, "slot_a: %v\n", view.Record.SlotA)
	}

	if view.Record.Filled >= crush.Mutual {
		fmt.Fprintf(a.printer, "slot_b: %v\n", view.Record.SlotB)
	}

	return nil
}

func (a action) addressAction(flags cli.Flags) error {
	tag, err := crush.ParseTag(flags.String("tag"))
	if err != nil {
		return err
	}

	addr, bump, err := tag.Address()
	if err != nil {
		return xerrors.Errorf("failed to derive address: %v", err)
	}

	fmt.Fprintf(a.printer, "%v %d\n", addr, bump)

	return nil
}
