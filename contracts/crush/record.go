package crush

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"go.dedis.ch/crush/core/address"
	"golang.org/x/xerrors"
)

const (
	// TagSize is the size in bytes of the identifier shared by two parties.
	TagSize = 32

	// CipherSize is the size in bytes of a submitted ciphertext.
	CipherSize = 48

	// DiscriminatorSize is the size of the record type prefix.
	DiscriminatorSize = 8

	// RecordSize is the size in bytes of an encoded record.
	RecordSize = DiscriminatorSize + 1 + 1 + 2*CipherSize

	seedPrefix = "crush"
)

// Discriminator is the prefix of every encoded record that identifies its
// type. It is the beginning of the SHA-256 digest of "account:CrushRecord".
var Discriminator = makeDiscriminator("account:CrushRecord")

// ProgramID is the address of the crush program, used to derive the record
// addresses.
var ProgramID = address.ProgramID(ContractName)

func makeDiscriminator(name string) [DiscriminatorSize]byte {
	digest := sha256.Sum256([]byte(name))

	var d [DiscriminatorSize]byte
	copy(d[:], digest[:])

	return d
}

// Tag is the identifier of a record. Both parties derive it on their side.
type Tag [TagSize]byte

// ParseTag returns the tag of the hexadecimal string.
func ParseTag(str string) (Tag, error) {
	var tag Tag

	err := decodeHex(tag[:], str)
	if err != nil {
		return tag, xerrors.Errorf("invalid tag: %v", err)
	}

	return tag, nil
}

// String implements fmt.Stringer. It returns the hexadecimal tag.
func (t Tag) String() string {
	return hex.EncodeToString(t[:])
}

// Address returns the storage address of the record of the tag, and the bump
// that proves it.
func (t Tag) Address() (address.Address, byte, error) {
	return address.FindProgramAddress(ProgramID, t.seeds()...)
}

func (t Tag) seeds() [][]byte {
	return [][]byte{[]byte(seedPrefix), t[:]}
}

// Cipher is an opaque ciphertext submitted by a party.
type Cipher [CipherSize]byte

// ParseCipher returns the ciphertext of the hexadecimal string.
func ParseCipher(str string) (Cipher, error) {
	var c Cipher

	err := decodeHex(c[:], str)
	if err != nil {
		return c, xerrors.Errorf("invalid cipher: %v", err)
	}

	return c, nil
}

// String implements fmt.Stringer. It returns the hexadecimal ciphertext.
func (c Cipher) String() string {
	return hex.EncodeToString(c[:])
}

// FillCount is the number of slots filled in a record.
type FillCount uint8

const (
	// Empty is the state of a record that has just been created.
	Empty FillCount = iota
	// OneSided is the state of a record after the first submission.
	OneSided
	// Mutual is the final state of a record.
	Mutual
)

// String implements fmt.Stringer.
func (f FillCount) String() string {
	switch f {
	case Empty:
		return "EMPTY"
	case OneSided:
		return "ONE_SIDED"
	case Mutual:
		return "MUTUAL"
	default:
		return fmt.Sprintf("FillCount(%d)", uint8(f))
	}
}

// Record is the state shared by the two parties of a tag.
type Record struct {
	// Bump is the proof of the address the record is stored at.
	Bump   byte
	Filled FillCount
	SlotA  Cipher
	// SlotB is only meaningful once the record is mutual.
	SlotB Cipher
}

// MarshalBinary implements encoding.BinaryMarshaler. It returns the storage
// layout of the record.
func (r Record) MarshalBinary() ([]byte, error) {
	if r.Filled > Mutual {
		return nil, xerrors.Errorf("invalid fill count %d", r.Filled)
	}

	data := make([]byte, 0, RecordSize)
	data = append(data, Discriminator[:]...)
	data = append(data, r.Bump, byte(r.Filled))
	data = append(data, r.SlotA[:]...)
	data = append(data, r.SlotB[:]...)

	return data, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. It populates the
// record from its storage layout.
func (r *Record) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return xerrors.Errorf("invalid record size: %d != %d", len(data), RecordSize)
	}

	if string(data[:DiscriminatorSize]) != string(Discriminator[:]) {
		return xerrors.Errorf("invalid discriminator %#x", data[:DiscriminatorSize])
	}

	offset := DiscriminatorSize

	filled := FillCount(data[offset+1])
	if filled > Mutual {
		return xerrors.Errorf("invalid fill count %d", filled)
	}

	r.Bump = data[offset]
	r.Filled = filled

	offset += 2
	copy(r.SlotA[:], data[offset:offset+CipherSize])

	offset += CipherSize
	copy(r.SlotB[:], data[offset:offset+CipherSize])

	return nil
}

func decodeHex(dst []byte, str string) error {
	if hex.DecodedLen(len(str)) != len(dst) {
		return xerrors.Errorf("expected %d bytes but got %d", len(dst), hex.DecodedLen(len(str)))
	}

	_, err := hex.Decode(dst, []byte(str))
	if err != nil {
		return xerrors.Errorf("malformed hex: %v", err)
	}

	return nil
}
