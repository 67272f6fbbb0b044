// Package mem implements an in-memory snapshot that stages the writes on top of
// a parent store. Reads fall through to the parent when a key has not been
// touched, and the staged changes can be applied to a writable store once the
// caller decides to keep them.
package mem

import (
	"sort"

	"go.dedis.ch/crush/core/store"
	"golang.org/x/xerrors"
)

type item struct {
	value   []byte
	deleted bool
}

// Snapshot is an in-memory overlay of a parent store.
//
// - implements store.Snapshot
type Snapshot struct {
	parent store.Readable
	store  map[string]item
}

// NewSnapshot creates a new empty snapshot. The parent is optional.
func NewSnapshot(parent store.Readable) *Snapshot {
	return &Snapshot{
		parent: parent,
		store:  make(map[string]item),
	}
}

// Get implements store.Readable. It returns the staged value of the key if any,
// otherwise it looks up the parent. A missing key returns nil.
func (s *Snapshot) Get(key []byte) ([]byte, error) {
	it, found := s.store[string(key)]
	if found {
		if it.deleted {
			return nil, nil
		}

		return it.value, nil
	}

	if s.parent == nil {
		return nil, nil
	}

	value, err := s.parent.Get(key)
	if err != nil {
		return nil, xerrors.Errorf("parent failed: %v", err)
	}

	return value, nil
}

// Set implements store.Writable. It stages a copy of the value.
func (s *Snapshot) Set(key, value []byte) error {
	buffer := make([]byte, len(value))
	copy(buffer, value)

	s.store[string(key)] = item{value: buffer}

	return nil
}

// Delete implements store.Writable. It stages the removal of the key.
func (s *Snapshot) Delete(key []byte) error {
	s.store[string(key)] = item{deleted: true}

	return nil
}

// Len returns the number of staged changes.
func (s *Snapshot) Len() int {
	return len(s.store)
}

// Apply writes the staged changes to the store in the order of the keys.
func (s *Snapshot) Apply(w store.Writable) error {
	keys := make([]string, 0, len(s.store))
	for key := range s.store {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		it := s.store[key]

		var err error
		if it.deleted {
			err = w.Delete([]byte(key))
		} else {
			err = w.Set([]byte(key), it.value)
		}

		if err != nil {
			return xerrors.Errorf("failed to apply key %#x: %v", key, err)
		}
	}

	return nil
}
