// Package ledger implements a single-node ledger that applies signed
// transactions to a durable key/value state.
//
// Each transaction is executed inside a single database transaction. Its
// writes are staged in memory and flushed only when the execution accepts it,
// while the nonce of the requester is always incremented so that a replayed
// transaction is rejected.
package ledger

import (
	"encoding/binary"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.dedis.ch/crush"
	"go.dedis.ch/crush/core/access"
	"go.dedis.ch/crush/core/execution"
	"go.dedis.ch/crush/core/store"
	"go.dedis.ch/crush/core/store/kv"
	"go.dedis.ch/crush/core/store/mem"
	"go.dedis.ch/crush/core/store/prefixed"
	"go.dedis.ch/crush/core/txn"
	"golang.org/x/xerrors"
)

const noncePrefix = "nonce"

// BucketName is the name of the database bucket that holds the state.
var BucketName = []byte("ledger")

// ErrInvalidTransaction is returned when the signatures of a transaction are
// missing or invalid.
var ErrInvalidTransaction = xerrors.New("invalid transaction")

// ErrInvalidNonce is returned when the nonce of a transaction does not match
// the next expected nonce of its identity.
var ErrInvalidNonce = xerrors.New("invalid nonce")

var (
	promDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "crush_ledger_tx_duration_seconds",
		Help:    "time to execute and commit a transaction",
		Buckets: prometheus.DefBuckets,
	})

	promTxs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crush_ledger_transactions_total",
		Help: "total number of transactions by status",
	}, []string{"status"})
)

func init() {
	crush.PromCollectors = append(crush.PromCollectors, promDuration, promTxs)
}

// Receipt is the outcome of a transaction.
type Receipt struct {
	TxID     []byte
	Accepted bool
	Message  string
	Data     []byte

	// Err is the rejection error of the contract. It is not persisted.
	Err error
}

// verifiable is implemented by the transactions that carry signatures.
type verifiable interface {
	Verify() error
}

// Ledger applies transactions to the state stored in the database.
type Ledger struct {
	db     kv.DB
	exec   execution.Service
	logger zerolog.Logger
}

// NewLedger creates a new ledger on top of the database. Transactions are
// executed by the execution service.
func NewLedger(db kv.DB, exec execution.Service) *Ledger {
	return &Ledger{
		db:     db,
		exec:   exec,
		logger: crush.Logger.With().Str("component", "ledger").Logger(),
	}
}

// Execute verifies and applies the transaction. An error is returned when the
// transaction is invalid and nothing is written. Otherwise the receipt tells
// whether the execution accepted it.
func (l *Ledger) Execute(tx txn.Transaction) (Receipt, error) {
	start := time.Now()

	receipt := Receipt{TxID: tx.GetID()}

	err := l.db.Update(func(wtx kv.WritableTx) error {
		bucket, err := wtx.GetBucketOrCreate(BucketName)
		if err != nil {
			return xerrors.Errorf("failed to open bucket: %v", err)
		}

		snap := newBucketSnapshot(bucket)

		if v, ok := tx.(verifiable); ok {
			err = v.Verify()
			if err != nil {
				return xerrors.Errorf("%v: %w", err, ErrInvalidTransaction)
			}
		}

		expected, err := readNonce(snap, tx.GetIdentity())
		if err != nil {
			return err
		}

		if tx.GetNonce() != expected {
			return xerrors.Errorf("expected %d but got %d: %w",
				expected, tx.GetNonce(), ErrInvalidNonce)
		}

		staged := mem.NewSnapshot(snap)

		res, err := l.exec.Execute(staged, execution.Step{Current: tx})
		if err != nil {
			return xerrors.Errorf("failed to execute tx: %v", err)
		}

		if res.Accepted {
			err = staged.Apply(snap)
			if err != nil {
				return xerrors.Errorf("failed to flush: %v", err)
			}
		}

		err = writeNonce(snap, tx.GetIdentity(), expected+1)
		if err != nil {
			return err
		}

		receipt.Accepted = res.Accepted
		receipt.Message = res.Message
		receipt.Data = res.Data
		receipt.Err = res.Err

		return nil
	})

	promDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		promTxs.WithLabelValues("invalid").Inc()
		return Receipt{}, err
	}

	if receipt.Accepted {
		promTxs.WithLabelValues("accepted").Inc()
	} else {
		promTxs.WithLabelValues("rejected").Inc()
	}

	l.logger.Debug().
		Hex("txid", receipt.TxID).
		Uint64("nonce", tx.GetNonce()).
		Bool("accepted", receipt.Accepted).
		Str("message", receipt.Message).
		Msg("transaction committed")

	return receipt, nil
}

// GetNonce implements signed.Client. It returns the nonce expected for the next
// transaction of the identity.
func (l *Ledger) GetNonce(ident access.Identity) (uint64, error) {
	var nonce uint64

	err := l.View(func(snap store.Readable) error {
		var err error
		nonce, err = readNonce(snap, ident)
		return err
	})
	if err != nil {
		return 0, err
	}

	return nonce, nil
}

// View executes the read-only function on the current state.
func (l *Ledger) View(fn func(store.Readable) error) error {
	return l.db.View(func(rtx kv.ReadableTx) error {
		return fn(newBucketSnapshot(rtx.GetBucket(BucketName)))
	})
}

// Update executes the function on the current state and commits its writes if
// it returns nil. It bypasses the transactions and is reserved to the node
// administration.
func (l *Ledger) Update(fn func(store.Snapshot) error) error {
	return l.db.Update(func(wtx kv.WritableTx) error {
		bucket, err := wtx.GetBucketOrCreate(BucketName)
		if err != nil {
			return xerrors.Errorf("failed to open bucket: %v", err)
		}

		return fn(newBucketSnapshot(bucket))
	})
}

func readNonce(snap store.Readable, ident access.Identity) (uint64, error) {
	key, err := nonceKey(ident)
	if err != nil {
		return 0, err
	}

	value, err := prefixed.NewReadable(noncePrefix, snap).Get(key)
	if err != nil {
		return 0, xerrors.Errorf("failed to read nonce: %v", err)
	}

	if len(value) == 0 {
		return 0, nil
	}

	if len(value) != 8 {
		return 0, xerrors.Errorf("invalid nonce of size %d", len(value))
	}

	return binary.LittleEndian.Uint64(value), nil
}

func writeNonce(snap store.Snapshot, ident access.Identity, nonce uint64) error {
	key, err := nonceKey(ident)
	if err != nil {
		return err
	}

	value := make([]byte, 8)
	binary.LittleEndian.PutUint64(value, nonce)

	err = prefixed.NewSnapshot(noncePrefix, snap).Set(key, value)
	if err != nil {
		return xerrors.Errorf("failed to write nonce: %v", err)
	}

	return nil
}

func nonceKey(ident access.Identity) ([]byte, error) {
	if ident == nil {
		return nil, xerrors.New("identity is missing")
	}

	key, err := ident.MarshalText()
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal identity: %v", err)
	}

	return key, nil
}
