// Package address derives the storage addresses of the records owned by a
// contract.
//
// An address is derived from the identifier of the program and a list of
// seeds. A bump byte is appended to the seeds and decremented from 255 until
// the hash falls off the Ed25519 curve, which guarantees that no private key
// can ever sign for the address. The bump is returned with the address so that
// it can be stored and checked on later accesses.
package address

import (
	"encoding/hex"

	"go.dedis.ch/crush/crypto"
	"go.dedis.ch/crush/crypto/ed25519"
	"golang.org/x/xerrors"
)

// Size is the size in bytes of an address.
const Size = 32

const (
	// MaxSeeds is the maximum number of seeds, the bump not included.
	MaxSeeds = 16
	// MaxSeedLength is the maximum size in bytes of a single seed.
	MaxSeedLength = 32

	marker = "ProgramDerivedAddress"
)

// ErrOnCurve is returned when the derived hash is a valid point of the curve
// and therefore cannot be used as an address.
var ErrOnCurve = xerrors.New("address is on the curve")

// Address is the identifier of a storage slot or of a program.
type Address [Size]byte

// ProgramID returns the address of the program with the given name.
func ProgramID(name string) Address {
	h := crypto.NewHashFactory(crypto.Sha256).New()
	h.Write([]byte(name))

	var addr Address
	copy(addr[:], h.Sum(nil))

	return addr
}

// Bytes returns the address as a slice.
func (a Address) Bytes() []byte {
	return append([]byte{}, a[:]...)
}

// String implements fmt.Stringer. It returns the hexadecimal representation of
// the address.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// CreateProgramAddress computes the address of the seeds and the bump for the
// program. It returns an error if the result is on the curve.
func CreateProgramAddress(program Address, bump byte, seeds ...[]byte) (Address, error) {
	if len(seeds) > MaxSeeds {
		return Address{}, xerrors.Errorf("too many seeds: %d > %d", len(seeds), MaxSeeds)
	}

	h := crypto.NewHashFactory(crypto.Sha256).New()

	for i, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return Address{}, xerrors.Errorf("seed %d is too long: %d > %d", i, len(seed), MaxSeedLength)
		}

		h.Write([]byte{byte(len(seed))})
		h.Write(seed)
	}

	h.Write([]byte{bump})
	h.Write(program[:])
	h.Write([]byte(marker))

	var addr Address
	copy(addr[:], h.Sum(nil))

	if ed25519.IsOnCurve(addr[:]) {
		return Address{}, ErrOnCurve
	}

	return addr, nil
}

// FindProgramAddress looks for the first bump, starting from 255, that
// produces an address off the curve. It returns the address and the bump.
func FindProgramAddress(program Address, seeds ...[]byte) (Address, byte, error) {
	for bump := 255; bump >= 0; bump-- {
		addr, err := CreateProgramAddress(program, byte(bump), seeds...)
		if err == nil {
			return addr, byte(bump), nil
		}

		if !xerrors.Is(err, ErrOnCurve) {
			return Address{}, 0, xerrors.Errorf("failed to create address: %v", err)
		}
	}

	return Address{}, 0, xerrors.New("no valid bump found")
}

// Verify checks that the address matches the seeds and the bump for the
// program.
func Verify(addr Address, program Address, bump byte, seeds ...[]byte) error {
	expected, err := CreateProgramAddress(program, bump, seeds...)
	if err != nil {
		return xerrors.Errorf("invalid bump %d: %w", bump, err)
	}

	if expected != addr {
		return xerrors.Errorf("mismatch: %v != %v", addr, expected)
	}

	return nil
}
