package crush

import (
	"golang.org/x/xerrors"
)

// ErrAlreadyMutual is returned when a submission targets a record that both
// parties have already filled. It is the only terminal rejection of Submit.
var ErrAlreadyMutual = xerrors.New("this crush has already been reciprocated and is mutual")

// ErrConflict is returned by a record store when a compare-and-set loses
// against a concurrent update. Nothing is written and the submission can be
// retried.
var ErrConflict = xerrors.New("concurrent update of the record")

// RecordStore is the storage of the records that the transition function is
// applied to.
type RecordStore interface {
	// Get returns the record of the tag and true, or false when it does not
	// exist.
	Get(tag Tag) (Record, bool, error)

	// CreateIfAbsent returns the record of the tag, after creating an empty
	// one if it does not exist yet.
	CreateIfAbsent(tag Tag) (Record, error)

	// CompareAndSet writes the next record if the current one is filled with
	// the expected count, otherwise it returns an error wrapping ErrConflict.
	CompareAndSet(tag Tag, expected FillCount, next Record) error
}

// Submit fills the next slot of the record of the tag with the payload and
// returns the new fill count. The first submission fills the slot A, the second
// one the slot B, and any later one fails with ErrAlreadyMutual without
// changing the record. Errors of the store are returned unchanged.
func Submit(store RecordStore, tag Tag, payload Cipher) (FillCount, error) {
	current, err := store.CreateIfAbsent(tag)
	if err != nil {
		return 0, err
	}

	next := current

	switch current.Filled {
	case Empty:
		next.SlotA = payload
	case OneSided:
		next.SlotB = payload
	default:
		return 0, ErrAlreadyMutual
	}

	next.Filled++

	err = store.CompareAndSet(tag, current.Filled, next)
	if err != nil {
		return 0, err
	}

	return next.Filled, nil
}
