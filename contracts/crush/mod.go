// Package crush implements the native contract of the crush protocol.
//
// Two parties submit a ciphertext under a tag they share. The record of the tag
// is created by the first submission and filled in arrival order: the first
// ciphertext goes in the slot A, the second one in the slot B. After that the
// record is mutual and never changes again. The contract does not know who
// submits, it only requires the submission to be paid by an authorized payer
// that funds the storage of new records.
package crush

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	app "go.dedis.ch/crush"
	"go.dedis.ch/crush/core/access"
	"go.dedis.ch/crush/core/address"
	"go.dedis.ch/crush/core/execution"
	"go.dedis.ch/crush/core/execution/native"
	"go.dedis.ch/crush/core/rent"
	"go.dedis.ch/crush/core/store"
	"go.dedis.ch/crush/core/store/prefixed"
	"golang.org/x/xerrors"
)

const (
	// ContractName is the name of the contract.
	ContractName = "go.dedis.ch/crush.Crush"

	// TagArg is the argument's name in the transaction that contains the tag.
	TagArg = "crush:tag"

	// CipherArg is the argument's name in the transaction that contains the
	// ciphertext to submit.
	CipherArg = "crush:cipher"

	// FundCommand is the command of the credential that a payer must hold.
	FundCommand = "fund"

	contractUID = "CRSH"
)

var (
	promSubmissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crush_submissions_total",
		Help: "total number of submissions by outcome",
	}, []string{"outcome"})

	promCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crush_records_created_total",
		Help: "total number of records created",
	})
)

func init() {
	app.PromCollectors = append(app.PromCollectors, promSubmissions, promCreated)
}

// CredentialID is the key of the permission that lists the authorized payers.
var CredentialID = prefixed.NewPrefixedKey([]byte("access"), []byte(ContractName))

// NewCreds returns the credential that a payer must hold to fund submissions.
func NewCreds() access.Credential {
	return access.NewContractCreds(CredentialID, ContractName, FundCommand)
}

// RegisterContract registers the crush contract to the given execution
// service.
func RegisterContract(exec *native.Service, c Contract) {
	exec.Set(ContractName, c)
}

// Contract is the native contract that applies submissions to the records.
//
// - implements native.Contract
type Contract struct {
	access access.Service
	rent   rent.Service
	logger zerolog.Logger
}

// NewContract creates a new crush contract. Payers are authorized with the
// access service and charged by the rent service.
func NewContract(srvc access.Service, rentSrvc rent.Service) Contract {
	return Contract{
		access: srvc,
		rent:   rentSrvc,
		logger: app.Logger.With().Str("contract", "crush").Logger(),
	}
}

// UID implements native.Contract.
func (c Contract) UID() string {
	return contractUID
}

// Execute implements native.Contract. It submits the ciphertext of the
// transaction to the record of its tag and returns the new fill count as a
// single byte.
func (c Contract) Execute(snap store.Snapshot, step execution.Step) ([]byte, error) {
	tx := step.Current

	tag, err := readTag(tx.GetArg(TagArg))
	if err != nil {
		promSubmissions.WithLabelValues("error").Inc()
		return nil, err
	}

	cipher, err := readCipher(tx.GetArg(CipherArg))
	if err != nil {
		promSubmissions.WithLabelValues("error").Inc()
		return nil, err
	}

	payer := tx.GetPayer()
	if payer == nil {
		promSubmissions.WithLabelValues("error").Inc()
		return nil, xerrors.New("payer is missing")
	}

	err = c.access.Match(snap, NewCreds(), payer)
	if err != nil {
		promSubmissions.WithLabelValues("error").Inc()
		return nil, xerrors.Errorf("payer not authorized: %v", err)
	}

	created := false

	hook := func(tag Tag, addr address.Address) error {
		amount, err := c.rent.Charge(snap, payer, RecordSize)
		if err != nil {
			return xerrors.Errorf("failed to charge payer: %w", err)
		}

		created = true

		c.logger.Debug().
			Str("address", addr.String()).
			Uint64("rent", amount).
			Msg("record created")

		return nil
	}

	filled, err := Submit(NewSnapshotStore(snap, WithCreatedHook(hook)), tag, cipher)
	if err != nil {
		outcome := "error"
		if xerrors.Is(err, ErrAlreadyMutual) {
			outcome = "already_mutual"
		}

		promSubmissions.WithLabelValues(outcome).Inc()

		c.logger.Warn().Err(err).Str("tag", tag.String()).Msg("submission rejected")

		return nil, err
	}

	if created {
		promCreated.Inc()
	}

	outcome := "one_sided"
	if filled == Mutual {
		outcome = "mutual"
	}

	promSubmissions.WithLabelValues(outcome).Inc()

	c.logger.Info().
		Str("tag", tag.String()).
		Stringer("state", filled).
		Msg("submission accepted")

	return []byte{byte(filled)}, nil
}

func readTag(value []byte) (Tag, error) {
	var tag Tag

	if len(value) != TagSize {
		return tag, xerrors.Errorf("'%s' not found in tx arg or invalid: %d bytes", TagArg, len(value))
	}

	copy(tag[:], value)

	return tag, nil
}

func readCipher(value []byte) (Cipher, error) {
	var c Cipher

	if len(value) != CipherSize {
		return c, xerrors.Errorf("'%s' not found in tx arg or invalid: %d bytes", CipherArg, len(value))
	}

	copy(c[:], value)

	return c, nil
}
