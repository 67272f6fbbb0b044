// Package rent implements the funding of the storage allocated in the ledger.
//
// Every record must hold enough funds to be exempt from rent for a number of
// years. The payer of the transaction that creates a record is charged the
// minimum balance of its size. Balances are kept in the ledger state.
package rent

import (
	"encoding/binary"
	"math"

	"go.dedis.ch/crush/core/access"
	"go.dedis.ch/crush/core/store"
	"go.dedis.ch/crush/core/store/prefixed"
	"golang.org/x/xerrors"
)

const (
	// DefaultLamportsPerByteYear is the default price of a byte for a year.
	DefaultLamportsPerByteYear = 3480

	// DefaultExemptionYears is the default number of years that must be paid
	// in advance.
	DefaultExemptionYears = 2

	// StorageOverhead is the number of bytes added to every record for its
	// metadata.
	StorageOverhead = 128

	prefix = "rent"
)

// ErrInsufficientFunds is returned when the balance of an identity is lower
// than the amount to charge.
var ErrInsufficientFunds = xerrors.New("insufficient funds")

// Service computes the minimum balances and manages the accounts of the
// identities.
type Service struct {
	lamportsPerByteYear uint64
	exemptionYears      uint64
}

// Option is the type of options to create a rent service.
type Option func(*Service)

// WithLamportsPerByteYear is an option to set the price of a byte for a year.
func WithLamportsPerByteYear(value uint64) Option {
	return func(s *Service) {
		s.lamportsPerByteYear = value
	}
}

// WithExemptionYears is an option to set the number of years to pay in
// advance.
func WithExemptionYears(value uint64) Option {
	return func(s *Service) {
		s.exemptionYears = value
	}
}

// NewService creates a new rent service.
func NewService(opts ...Option) Service {
	s := Service{
		lamportsPerByteYear: DefaultLamportsPerByteYear,
		exemptionYears:      DefaultExemptionYears,
	}

	for _, opt := range opts {
		opt(&s)
	}

	return s
}

// Minimum returns the minimum balance for a record of the given size to be
// exempt from rent.
func (s Service) Minimum(size int) uint64 {
	return (StorageOverhead + uint64(size)) * s.lamportsPerByteYear * s.exemptionYears
}

// Balance returns the balance of the identity.
func (s Service) Balance(snap store.Readable, ident access.Identity) (uint64, error) {
	key, err := ident.MarshalText()
	if err != nil {
		return 0, xerrors.Errorf("failed to marshal identity: %v", err)
	}

	value, err := prefixed.NewReadable(prefix, snap).Get(key)
	if err != nil {
		return 0, xerrors.Errorf("failed to read balance: %v", err)
	}

	if len(value) == 0 {
		return 0, nil
	}

	if len(value) != 8 {
		return 0, xerrors.Errorf("invalid balance of size %d", len(value))
	}

	return binary.LittleEndian.Uint64(value), nil
}

// Credit adds the amount to the balance of the identity.
func (s Service) Credit(snap store.Snapshot, ident access.Identity, amount uint64) error {
	balance, err := s.Balance(snap, ident)
	if err != nil {
		return err
	}

	if balance > math.MaxUint64-amount {
		return xerrors.Errorf("balance overflow: %d + %d", balance, amount)
	}

	return s.write(snap, ident, balance+amount)
}

// Charge debits the minimum balance of a record of the given size from the
// identity. It returns the amount charged, or an error wrapping
// ErrInsufficientFunds if the balance is too low.
func (s Service) Charge(snap store.Snapshot, ident access.Identity, size int) (uint64, error) {
	if ident == nil {
		return 0, xerrors.New("payer is missing")
	}

	amount := s.Minimum(size)

	balance, err := s.Balance(snap, ident)
	if err != nil {
		return 0, err
	}

	if balance < amount {
		return 0, xerrors.Errorf("balance %d < %d: %w", balance, amount, ErrInsufficientFunds)
	}

	err = s.write(snap, ident, balance-amount)
	if err != nil {
		return 0, err
	}

	return amount, nil
}

func (s Service) write(snap store.Snapshot, ident access.Identity, balance uint64) error {
	key, err := ident.MarshalText()
	if err != nil {
		return xerrors.Errorf("failed to marshal identity: %v", err)
	}

	value := make([]byte, 8)
	binary.LittleEndian.PutUint64(value, balance)

	err = prefixed.NewSnapshot(prefix, snap).Set(key, value)
	if err != nil {
		return xerrors.Errorf("failed to write balance: %v", err)
	}

	return nil
}
