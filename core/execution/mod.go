// Package execution defines the service that applies a transaction to a
// snapshot of the ledger state.
package execution

import (
	"go.dedis.ch/crush/core/store"
	"go.dedis.ch/crush/core/txn"
)

// Step is a context of execution. It contains the transactions already
// executed in the same batch, and the current one to execute.
type Step struct {
	Previous []txn.Transaction
	Current  txn.Transaction
}

// Result is the result of a transaction execution.
type Result struct {
	// Accepted is the success state of the transaction.
	Accepted bool

	// Message gives a change to the execution to explain why a transaction has
	// failed.
	Message string

	// Err is the error of a rejected transaction, so that callers can match
	// the sentinels of the contract.
	Err error

	// Data is the value returned by the contract when the transaction is
	// accepted.
	Data []byte
}

// Service is the execution service that defines the primitives to execute a
// transaction.
type Service interface {
	// Execute must apply the transaction to the snapshot and return the result
	// of it.
	Execute(snap store.Snapshot, step Step) (Result, error)
}
