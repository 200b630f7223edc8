package types

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hash is a fixed-size content hash.
type Hash struct {
	Data []byte `msgpack:"data"`
}

// Signature is a fixed-size Ed25519 signature.
type Signature struct {
	Data []byte `msgpack:"data"`
}

// PublicKey is a fixed-size Ed25519 public key.
type PublicKey struct {
	Data []byte `msgpack:"data"`
}

// Timestamp is a Unix nanosecond timestamp.
type Timestamp int64

// HashSize is the expected size of a hash in bytes.
const HashSize = 32

// SignatureSize is the expected size of a signature in bytes.
const SignatureSize = 64

// PublicKeySize is the expected size of a public key in bytes.
const PublicKeySize = 32

// NewHash creates a Hash from bytes, returning an error if the length is wrong.
// Use for untrusted input (network, files).
func NewHash(data []byte) (Hash, error) {
	if len(data) != HashSize {
		return Hash{}, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(data))
	}
	copied := make([]byte, HashSize)
	copy(copied, data)
	return Hash{Data: copied}, nil
}

// MustNewHash creates a Hash, panicking if invalid. Only for trusted internal data.
func MustNewHash(data []byte) Hash {
	h, err := NewHash(data)
	if err != nil {
		panic(err)
	}
	return h
}

// HashBytes computes the SHA-256 hash of data.
func HashBytes(data []byte) Hash {
	h := sha256.Sum256(data)
	return Hash{Data: h[:]}
}

// HashEmpty returns the zero hash.
func HashEmpty() Hash {
	return Hash{Data: make([]byte, HashSize)}
}

// IsHashEmpty returns true if h is nil or all-zero.
func IsHashEmpty(h *Hash) bool {
	if h == nil {
		return true
	}
	for _, b := range h.Data {
		if b != 0 {
			return false
		}
	}
	return true
}

// HashEqual compares two hashes for equality.
func HashEqual(a, b Hash) bool {
	return bytes.Equal(a.Data, b.Data)
}

// HashString returns the hex encoding of a hash.
func HashString(h Hash) string {
	return hex.EncodeToString(h.Data)
}

// NewSignature creates a Signature from bytes, returning an error if the length is wrong.
func NewSignature(data []byte) (Signature, error) {
	if len(data) != SignatureSize {
		return Signature{}, fmt.Errorf("signature must be %d bytes, got %d", SignatureSize, len(data))
	}
	copied := make([]byte, SignatureSize)
	copy(copied, data)
	return Signature{Data: copied}, nil
}

// MustNewSignature creates a Signature, panicking if invalid.
func MustNewSignature(data []byte) Signature {
	s, err := NewSignature(data)
	if err != nil {
		panic(err)
	}
	return s
}

// NewPublicKey creates a PublicKey from bytes, returning an error if the length is wrong.
func NewPublicKey(data []byte) (PublicKey, error) {
	if len(data) != PublicKeySize {
		return PublicKey{}, fmt.Errorf("public key must be %d bytes, got %d", PublicKeySize, len(data))
	}
	copied := make([]byte, PublicKeySize)
	copy(copied, data)
	return PublicKey{Data: copied}, nil
}

// MustNewPublicKey creates a PublicKey, panicking if invalid.
func MustNewPublicKey(data []byte) PublicKey {
	p, err := NewPublicKey(data)
	if err != nil {
		panic(err)
	}
	return p
}

// PublicKeyEqual compares two public keys for equality.
func PublicKeyEqual(a, b PublicKey) bool {
	return bytes.Equal(a.Data, b.Data)
}
