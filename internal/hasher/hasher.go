// Package hasher computes the content digest that identifies a document in the registry.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Size is the digest length in bytes.
const Size = sha256.Size

var ErrInvalidDigest = errors.New("invalid digest")

// Digest is a SHA-256 content hash. It is the registry's bytes32 key.
type Digest [Size]byte

// Sum hashes raw file bytes.
func Sum(b []byte) Digest {
	return Digest(sha256.Sum256(b))
}

// Hex renders the digest as 64 lower-case hex characters without a prefix.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// Bytes32Hex renders the digest in the 0x-prefixed fixed-width form used on-chain.
func (d Digest) Bytes32Hex() string {
	return "0x" + d.Hex()
}

// IsZero reports whether d is the all-zero digest.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

func (d Digest) String() string { return d.Hex() }

// Parse accepts a digest with or without the 0x prefix, in either case.
func Parse(s string) (Digest, error) {
	var d Digest
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(s) != Size*2 {
		return d, fmt.Errorf("%w: want %d hex chars, got %d", ErrInvalidDigest, Size*2, len(s))
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return Digest{}, fmt.Errorf("%w: %v", ErrInvalidDigest, err)
	}
	return d, nil
}
