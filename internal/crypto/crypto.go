// Package crypto implements the operator node's cryptographic primitives
// (spec §4.1, component C1): commit hashing, domain-separated Merkle leaf
// and internal-node hashing, secret generation, and the weighted-random
// ticket derivation used to select a lottery winner.
//
// Balances, cumulative ranges, and weights are carried as *uint256.Int
// throughout — a 256-bit big integer, never a machine word — matching
// spec §9's "arbitrary-precision arithmetic" requirement.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/holiman/uint256"
)

// SecretLen is the length in bytes of a draw's locally-generated secret.
const SecretLen = 32

// leafPrefix and nodePrefix are the mandatory domain-separation bytes of
// spec §4.1. They must match the on-chain verifier bit-for-bit.
const (
	leafPrefix byte = 0x00
	nodePrefix byte = 0x01
)

// Sha256 hashes data with SHA-256.
func Sha256(data ...[]byte) [32]byte {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// BE16 encodes v as a 16-byte (128-bit) big-endian integer, zero-padded.
// This is the wire contract consumed by LeafHash and must match the
// on-chain verifier's own be16 primitive exactly.
func BE16(v *uint256.Int) [16]byte {
	full := v.Bytes32()
	var out [16]byte
	copy(out[:], full[16:32])
	return out
}

// GenerateSecret returns 32 cryptographically random bytes.
func GenerateSecret() ([]byte, error) {
	secret := make([]byte, SecretLen)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	return secret, nil
}

// CommitOf returns the hex-encoded SHA-256 commitment of a secret.
func CommitOf(secret []byte) string {
	h := Sha256(secret)
	return hex.EncodeToString(h[:])
}

// LeafHash computes a Merkle leaf hash over a snapshot entry:
//
//	sha256(0x00 || address || be16(cum_start) || be16(cum_end))
func LeafHash(address string, cumStart, cumEnd *uint256.Int) [32]byte {
	start := BE16(cumStart)
	end := BE16(cumEnd)
	return Sha256([]byte{leafPrefix}, []byte(address), start[:], end[:])
}

// NodeHash computes a Merkle internal-node hash over two child hashes,
// ordered lexicographically (min, max) regardless of call order so that
// the tree is insensitive to sibling argument order:
//
//	sha256(0x01 || min(a,b) || max(a,b))
func NodeHash(a, b [32]byte) [32]byte {
	lo, hi := a, b
	if bytesGreater(lo[:], hi[:]) {
		lo, hi = hi, lo
	}
	return Sha256([]byte{nodePrefix}, lo[:], hi[:])
}

func bytesGreater(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}

// WinningTicket derives the weighted-random winning ticket from the beacon
// randomness and the operator's revealed secret:
//
//	final = drandRandomness XOR sha256(secret)   (aligned to the shorter input)
//	v     = be128(final[:16])
//	ticket = v mod totalWeight
//
// totalWeight must be non-zero; the caller is responsible for treating a
// zero total weight as a fatal, non-retryable condition for the draw (spec
// §4.1).
func WinningTicket(drandRandomness, secret []byte, totalWeight *uint256.Int) (*uint256.Int, error) {
	if totalWeight.IsZero() {
		return nil, fmt.Errorf("winning ticket: total weight is zero")
	}

	secretHash := Sha256(secret)
	final := xorFold(drandRandomness, secretHash[:])
	if len(final) < 16 {
		padded := make([]byte, 16)
		copy(padded[16-len(final):], final)
		final = padded
	}

	var v uint256.Int
	v.SetBytes(final[:16])

	ticket := new(uint256.Int)
	ticket.Mod(&v, totalWeight)
	return ticket, nil
}

// xorFold XORs a and b byte-by-byte, truncated to the length of the shorter
// slice, per spec §4.1.
func xorFold(a, b []byte) []byte {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = a[i] ^ b[i]
	}
	return out
}
