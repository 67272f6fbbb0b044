package crush

import (
	"go.dedis.ch/crush/core/address"
	"go.dedis.ch/crush/core/store"
	"golang.org/x/xerrors"
)

// ErrAddressMismatch is returned when a stored record does not carry the bump
// of the address derived from its tag.
var ErrAddressMismatch = xerrors.New("record address mismatch")

// CreatedHook is called when a store creates a record.
type CreatedHook func(tag Tag, addr address.Address) error

// SnapshotStore is a record store on top of a snapshot of the ledger state.
// The records are stored at the address derived from their tag.
//
// - implements crush.RecordStore
type SnapshotStore struct {
	snap    store.Snapshot
	created CreatedHook
}

// StoreOption is the type of options to create a snapshot store.
type StoreOption func(*SnapshotStore)

// WithCreatedHook is an option to be notified of the records created by the
// store. An error of the hook aborts the creation.
func WithCreatedHook(fn CreatedHook) StoreOption {
	return func(s *SnapshotStore) {
		s.created = fn
	}
}

// NewSnapshotStore returns a record store that reads and writes the snapshot.
func NewSnapshotStore(snap store.Snapshot, opts ...StoreOption) SnapshotStore {
	s := SnapshotStore{
		snap: snap,
	}

	for _, opt := range opts {
		opt(&s)
	}

	return s
}

// Get implements crush.RecordStore. It returns the record of the tag if it
// exists. The bump of the record is checked against the derived address.
func (s SnapshotStore) Get(tag Tag) (Record, bool, error) {
	addr, bump, err := tag.Address()
	if err != nil {
		return Record{}, false, xerrors.Errorf("failed to derive address: %v", err)
	}

	return s.read(addr, bump)
}

// Lookup returns the record of the tag if it exists in the state.
func Lookup(snap store.Readable, tag Tag) (Record, bool, error) {
	addr, bump, err := tag.Address()
	if err != nil {
		return Record{}, false, xerrors.Errorf("failed to derive address: %v", err)
	}

	return readRecord(snap, addr, bump)
}

// CreateIfAbsent implements crush.RecordStore. It writes an empty record at
// the address of the tag if none exists yet.
func (s SnapshotStore) CreateIfAbsent(tag Tag) (Record, error) {
	addr, bump, err := tag.Address()
	if err != nil {
		return Record{}, xerrors.Errorf("failed to derive address: %v", err)
	}

	rec, found, err := s.read(addr, bump)
	if err != nil {
		return Record{}, err
	}

	if found {
		return rec, nil
	}

	rec = Record{Bump: bump}

	if s.created != nil {
		err = s.created(tag, addr)
		if err != nil {
			return Record{}, xerrors.Errorf("creation refused: %w", err)
		}
	}

	err = s.write(addr, rec)
	if err != nil {
		return Record{}, err
	}

	return rec, nil
}

// CompareAndSet implements crush.RecordStore. It writes the next record if the
// stored one has the expected fill count.
func (s SnapshotStore) CompareAndSet(tag Tag, expected FillCount, next Record) error {
	addr, bump, err := tag.Address()
	if err != nil {
		return xerrors.Errorf("failed to derive address: %v", err)
	}

	current, found, err := s.read(addr, bump)
	if err != nil {
		return err
	}

	if !found {
		return xerrors.Errorf("record %v does not exist: %w", addr, ErrConflict)
	}

	if current.Filled != expected {
		return xerrors.Errorf("expected fill count %d but found %d: %w",
			expected, current.Filled, ErrConflict)
	}

	next.Bump = current.Bump

	return s.write(addr, next)
}

func (s SnapshotStore) read(addr address.Address, bump byte) (Record, bool, error) {
	return readRecord(s.snap, addr, bump)
}

func readRecord(snap store.Readable, addr address.Address, bump byte) (Record, bool, error) {
	value, err := snap.Get(addr[:])
	if err != nil {
		return Record{}, false, xerrors.Errorf("failed to read record: %v", err)
	}

	if value == nil {
		return Record{}, false, nil
	}

	var rec Record

	err = rec.UnmarshalBinary(value)
	if err != nil {
		return Record{}, false, xerrors.Errorf("failed to decode record: %v", err)
	}

	if rec.Bump != bump {
		return Record{}, false, xerrors.Errorf("bump %d != %d: %w", rec.Bump, bump, ErrAddressMismatch)
	}

	return rec, true, nil
}

func (s SnapshotStore) write(addr address.Address, rec Record) error {
	data, err := rec.MarshalBinary()
	if err != nil {
		return xerrors.Errorf("failed to encode record: %v", err)
	}

	err = s.snap.Set(addr[:], data)
	if err != nil {
		return xerrors.Errorf("failed to write record: %v", err)
	}

	return nil
}
