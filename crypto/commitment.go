package crypto

import (
	"bytes"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// commitmentDomain separates commitment digests from any other BLAKE3 use.
// Changing it invalidates every outstanding commitment, so it is versioned.
const commitmentDomain = "batchclear/commitment/v1"

// SecretSize is the required length of a reveal secret in bytes.
const SecretSize = 32

// Digest is the one-way commitment to an order. It binds the committing
// participant to the order payload, a secret, and a nonce without revealing
// any of them. 32 bytes of BLAKE3 output.
type Digest [32]byte

// NewDigestFromString parses a hex-encoded digest.
func NewDigestFromString(data string) (Digest, error) {
	var d Digest
	rawBytes, err := hex.DecodeString(data)
	if err != nil {
		return d, err
	}
	if len(rawBytes) != len(d) {
		return d, ErrBadDigestLength
	}
	copy(d[:], rawBytes)
	return d, nil
}

// Bytes returns the digest as a byte slice.
func (d Digest) Bytes() []byte {
	return d[:]
}

// String returns the hex form of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Equal compares two digests byte-for-byte in constant time. Reveal
// validation must use this rather than ==, so a mismatch leaks nothing
// about where the digests diverge.
func (d Digest) Equal(other Digest) bool {
	return subtle.ConstantTimeCompare(d[:], other[:]) == 1
}

// Secret is the per-commitment random value disclosed at reveal time.
// Secrets from all valid reveals in a batch are folded into the shuffle
// seed, so each must carry full entropy.
type Secret [SecretSize]byte

// NewSecretFromString parses a hex-encoded secret.
func NewSecretFromString(data string) (Secret, error) {
	var s Secret
	rawBytes, err := hex.DecodeString(data)
	if err != nil {
		return s, err
	}
	if len(rawBytes) != len(s) {
		return s, ErrBadSecretLength
	}
	copy(s[:], rawBytes)
	return s, nil
}

// String returns the hex form of the secret.
func (s Secret) String() string {
	return hex.EncodeToString(s[:])
}

// XOR folds another secret into this one. The fold is commutative and
// associative, so the combined value is independent of reveal order.
func (s Secret) XOR(other Secret) Secret {
	var out Secret
	for i := range s {
		out[i] = s[i] ^ other[i]
	}
	return out
}

// ComputeCommitmentDigest derives the digest a participant commits to:
//
//	BLAKE3(domain || batchID || orderBytes || secret || nonce)
//
// orderBytes must be the canonical encoding of the order payload (see
// auction.RevealedOrder.CanonicalBytes); any encoding ambiguity would let a
// participant reveal a payload other than the one committed to.
func ComputeCommitmentDigest(batchID uint64, orderBytes []byte, secret Secret, nonce uint64) Digest {
	h := blake3.New()
	h.Write([]byte(commitmentDomain))

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], batchID)
	h.Write(buf[:])

	binary.BigEndian.PutUint64(buf[:], uint64(len(orderBytes)))
	h.Write(buf[:])
	h.Write(orderBytes)

	h.Write(secret[:])

	binary.BigEndian.PutUint64(buf[:], nonce)
	h.Write(buf[:])

	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// AppendLenPrefixed appends a length-prefixed byte string to buf. Canonical
// encodings use it so that no two distinct payloads share an encoding.
func AppendLenPrefixed(buf, data []byte) []byte {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(data)))
	buf = append(buf, l[:]...)
	return append(buf, data...)
}

// AppendUint64 appends a big-endian uint64 to buf.
func AppendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

// LessDigest orders digests lexicographically. The shuffle engine sorts
// revealed orders by digest before permuting so the result cannot depend on
// submission order.
func LessDigest(a, b Digest) bool {
	return bytes.Compare(a[:], b[:]) < 0
}
