package crypto

import (
	"crypto/sha256"
	"hash"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/sha3"
)

// HashAlgorithm is the identifier of a hash function supported by the
// factory.
type HashAlgorithm int

const (
	// Sha256 is the SHA-256 hash function.
	Sha256 HashAlgorithm = iota

	// Sha3_224 is the SHA3-224 hash function.
	Sha3_224

	// Blake3 is the BLAKE3 hash function with a 32-byte output.
	Blake3
)

// hashFactory is a hash factory that is using SHA or BLAKE algorithms.
//
// - implements crypto.HashFactory
type hashFactory struct {
	hashType HashAlgorithm
}

// NewSha256Factory returns a new instance of the factory.
//
// Deprecated: use NewHashFactory instead.
func NewSha256Factory() HashFactory {
	return hashFactory{Sha256}
}

// NewHashFactory returns a new instance of the factory.
func NewHashFactory(a HashAlgorithm) HashFactory {
	return hashFactory{a}
}

// New implements crypto.HashFactory. It returns a new Hash instance.
func (f hashFactory) New() hash.Hash {
	switch f.hashType {
	case Sha256:
		return sha256.New()
	case Sha3_224:
		return sha3.New224()
	case Blake3:
		return blake3.New()
	default:
		panic("unknown hash type")
	}
}
