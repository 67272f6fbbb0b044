package crush

import (
	"sync"

	"golang.org/x/xerrors"
)

// MemoryStore is a record store kept in memory. It is safe for concurrent use.
//
// - implements crush.RecordStore
type MemoryStore struct {
	sync.Mutex
	records map[Tag]Record
}

// NewMemoryStore returns an empty in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[Tag]Record),
	}
}

// Get implements crush.RecordStore.
func (s *MemoryStore) Get(tag Tag) (Record, bool, error) {
	s.Lock()
	defer s.Unlock()

	rec, found := s.records[tag]

	return rec, found, nil
}

// CreateIfAbsent implements crush.RecordStore. The bump of a new record is
// the one of the address derived from the tag.
func (s *MemoryStore) CreateIfAbsent(tag Tag) (Record, error) {
	s.Lock()
	defer s.Unlock()

	rec, found := s.records[tag]
	if found {
		return rec, nil
	}

	_, bump, err := tag.Address()
	if err != nil {
		return Record{}, xerrors.Errorf("failed to derive address: %v", err)
	}

	rec = Record{Bump: bump}
	s.records[tag] = rec

	return rec, nil
}

// CompareAndSet implements crush.RecordStore.
func (s *MemoryStore) CompareAndSet(tag Tag, expected FillCount, next Record) error {
	s.Lock()
	defer s.Unlock()

	current, found := s.records[tag]
	if !found {
		return xerrors.Errorf("record does not exist: %w", ErrConflict)
	}

	if current.Filled != expected {
		return xerrors.Errorf("expected fill count %d but found %d: %w",
			expected, current.Filled, ErrConflict)
	}

	next.Bump = current.Bump
	s.records[tag] = next

	return nil
}

// Len returns the number of records.
func (s *MemoryStore) Len() int {
	s.Lock()
	defer s.Unlock()

	return len(s.records)
}
