// Package controller implements the initializer of the ledger. It opens the
// database, creates the services that the contracts depend on, and provides
// the commands to administrate the state.
package controller

import (
	"go.dedis.ch/crush"
	"go.dedis.ch/crush/cli"
	"go.dedis.ch/crush/cli/node"
	"go.dedis.ch/crush/core/access"
	"go.dedis.ch/crush/core/access/darc"
	_ "go.dedis.ch/crush/core/access/darc/json"
	"go.dedis.ch/crush/core/execution/native"
	"go.dedis.ch/crush/core/ledger"
	"go.dedis.ch/crush/core/rent"
	"go.dedis.ch/crush/core/store"
	"go.dedis.ch/crush/core/store/kv"
	"go.dedis.ch/crush/core/store/kv/sqlkv"
	"go.dedis.ch/crush/core/store/prefixed"
	"go.dedis.ch/crush/crypto"
	"go.dedis.ch/crush/crypto/ed25519"
	_ "go.dedis.ch/crush/crypto/ed25519/json"
	"go.dedis.ch/crush/crypto/loader"
	"go.dedis.ch/crush/serde/json"
	"golang.org/x/xerrors"
)

const fundedPrefix = "funded"

// Relayer is the signer of the node, that co-signs the relayed submissions as
// their payer.
type Relayer struct {
	crypto.Signer
}

// miniController is the initializer of the ledger.
//
// - implements node.Initializer
type miniController struct {
	fundCreds access.Credential
}

// NewController creates a new controller for the ledger. The relayer of the
// node is granted the credential at start.
func NewController(fundCreds access.Credential) node.Initializer {
	return miniController{
		fundCreds: fundCreds,
	}
}

// SetCommands implements node.Initializer. It sets the flags of the start
// command and the commands to administrate the state.
func (m miniController) SetCommands(builder node.Builder) {
	builder.SetStartFlags(
		cli.StringFlag{
			Name:  "dbbackend",
			Usage: "database backend, bolt or sqlite (overrides the config file)",
		},
	)

	cmd := builder.SetCommand("ledger")
	cmd.SetDescription("administrate the ledger")

	sub := cmd.SetSubCommand("fund")
	sub.SetDescription("credit the balance of an identity")
	sub.SetFlags(
		cli.StringFlag{
			Name:     "identity",
			Usage:    "text representation of the public key",
			Required: true,
		},
		cli.IntFlag{
			Name:     "amount",
			Usage:    "amount to credit",
			Required: true,
		},
	)
	sub.SetAction(builder.MakeAction(fundAction{}))

	sub = cmd.SetSubCommand("balance")
	sub.SetDescription("display the balance of an identity")
	sub.SetFlags(cli.StringFlag{
		Name:     "identity",
		Usage:    "text representation of the public key",
		Required: true,
	})
	sub.SetAction(builder.MakeAction(balanceAction{}))

	sub = cmd.SetSubCommand("nonce")
	sub.SetDescription("display the next nonce of an identity")
	sub.SetFlags(cli.StringFlag{
		Name:     "identity",
		Usage:    "text representation of the public key",
		Required: true,
	})
	sub.SetAction(builder.MakeAction(nonceAction{}))

	sub = cmd.SetSubCommand("relayer")
	sub.SetDescription("display the identity of the relayer")
	sub.SetAction(builder.MakeAction(relayerAction{}))

	cmd = builder.SetCommand("access")
	cmd.SetDescription("administrate the access rights")

	sub = cmd.SetSubCommand("add")
	sub.SetDescription("authorize identities to pay for submissions")
	sub.SetFlags(cli.StringSliceFlag{
		Name:     "identity",
		Usage:    "text representation of a public key",
		Required: true,
	})
	sub.SetAction(builder.MakeAction(addAccessAction{creds: m.fundCreds}))
}

// OnStart implements node.Initializer. It opens the database and injects the
// ledger and its services.
func (m miniController) OnStart(flags cli.Flags, inj node.Injector) error {
	dir := flags.Path("config")

	cfg, err := LoadConfig(dir)
	if err != nil {
		return xerrors.Errorf("config: %v", err)
	}

	backend := flags.String("dbbackend")
	if backend != "" {
		cfg.Database.Backend = backend
	}

	db, err := openDB(cfg.Database.Backend, cfg.DatabasePath(dir))
	if err != nil {
		return xerrors.Errorf("db: %v", err)
	}

	relayer, err := LoadSigner(cfg.Relayer.Key)
	if err != nil {
		db.Close()
		return xerrors.Errorf("relayer: %v", err)
	}

	exec := native.NewExecution()
	accessSrvc := darc.NewService(json.NewContext())
	rentSrvc := rent.NewService(cfg.RentOptions()...)

	l := ledger.NewLedger(db, exec)

	err = l.Update(func(snap store.Snapshot) error {
		return setupRelayer(snap, accessSrvc, rentSrvc, m.fundCreds, relayer, cfg.Relayer.Balance)
	})
	if err != nil {
		db.Close()
		return xerrors.Errorf("failed to setup relayer: %v", err)
	}

	relayerText, err := relayer.GetPublicKey().MarshalText()
	if err != nil {
		db.Close()
		return xerrors.Errorf("failed to marshal relayer key: %v", err)
	}

	crush.Logger.Info().
		Str("backend", cfg.Database.Backend).
		Str("relayer", string(relayerText)).
		Msg("ledger started")

	inj.Inject(&cfg)
	inj.Inject(db)
	inj.Inject(exec)
	inj.Inject(accessSrvc)
	inj.Inject(rentSrvc)
	inj.Inject(l)
	inj.Inject(Relayer{Signer: relayer})

	return nil
}

// OnStop implements node.Initializer. It closes the database.
func (miniController) OnStop(inj node.Injector) error {
	var db kv.DB
	err := inj.Resolve(&db)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	err = db.Close()
	if err != nil {
		return xerrors.Errorf("while closing db: %v", err)
	}

	return nil
}

func openDB(backend, path string) (kv.DB, error) {
	switch backend {
	case BackendBolt:
		return kv.New(path)
	case BackendSQLite:
		return sqlkv.New(path)
	default:
		return nil, xerrors.Errorf("unknown database backend '%s'", backend)
	}
}

// LoadSigner loads the Ed25519 signer stored in the file, or creates a new
// one and stores it if the file does not exist.
func LoadSigner(path string) (crypto.Signer, error) {
	data, err := loader.NewFileLoader(path).LoadOrCreate(generator{})
	if err != nil {
		return nil, xerrors.Errorf("failed to load key: %v", err)
	}

	signer, err := ed25519.NewSignerFromBytes(data)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal key: %v", err)
	}

	return signer, nil
}

func setupRelayer(snap store.Snapshot, accessSrvc access.Service, rentSrvc rent.Service,
	creds access.Credential, relayer crypto.Signer, initial uint64) error {

	err := accessSrvc.Grant(snap, creds, relayer.GetPublicKey())
	if err != nil {
		return xerrors.Errorf("failed to grant access: %v", err)
	}

	key, err := relayer.GetPublicKey().MarshalText()
	if err != nil {
		return xerrors.Errorf("failed to marshal relayer key: %v", err)
	}

	funded := prefixed.NewSnapshot(fundedPrefix, snap)

	marker, err := funded.Get(key)
	if err != nil {
		return xerrors.Errorf("failed to read funded marker: %v", err)
	}

	// The initial balance is given once per relayer key, even if the relayer
	// is drained afterwards.
	if len(marker) > 0 {
		return nil
	}

	err = rentSrvc.Credit(snap, relayer.GetPublicKey(), initial)
	if err != nil {
		return xerrors.Errorf("failed to credit: %v", err)
	}

	err = funded.Set(key, []byte{1})
	if err != nil {
		return xerrors.Errorf("failed to write funded marker: %v", err)
	}

	return nil
}

// generator generates a new Ed25519 private key.
//
// - implements loader.Generator
type generator struct{}

// Generate implements loader.Generator. It returns the marshaled data of a new
// private key.
func (generator) Generate() ([]byte, error) {
	signer := ed25519.NewSigner()

	data, err := signer.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal signer: %v", err)
	}

	return data, nil
}
