package crypto

import (
	"encoding/binary"
	"errors"
	"math/bits"

	"golang.org/x/crypto/sha3"
)

var (
	// ErrBadDigestLength is returned when parsing a digest of the wrong size.
	ErrBadDigestLength = errors.New("digest must be 32 bytes")

	// ErrBadSecretLength is returned when parsing a secret of the wrong size.
	ErrBadSecretLength = errors.New("secret must be 32 bytes")

	// ErrProofBelowDifficulty is returned when a proof of work does not meet
	// the difficulty it claims.
	ErrProofBelowDifficulty = errors.New("proof of work below claimed difficulty")
)

// powDomain separates fee proofs from commitment digests.
const powDomain = "batchclear/pow/v1"

// PoWProof is a proof of repeated hashing a participant may substitute for
// the monetary fee component of an order. The proof is bound to the
// commitment digest so it cannot be reused across orders.
type PoWProof struct {
	// Nonce is the value found by the prover.
	Nonce uint64 `json:"nonce"`

	// Difficulty is the claimed number of leading zero bits. The verifier
	// recomputes and checks it independently; it is never taken on trust.
	Difficulty uint32 `json:"difficulty"`
}

// powHash computes SHA3-256(domain || digest || nonce).
func powHash(commitment Digest, nonce uint64) [32]byte {
	h := sha3.New256()
	h.Write([]byte(powDomain))
	h.Write(commitment[:])

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	h.Write(buf[:])

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// LeadingZeroBits counts the leading zero bits of a hash output.
func LeadingZeroBits(data [32]byte) uint32 {
	var n uint32
	for _, b := range data {
		if b == 0 {
			n += 8
			continue
		}
		n += uint32(bits.LeadingZeros8(b))
		break
	}
	return n
}

// VerifyPoW checks that the proof meets its claimed difficulty for the
// given commitment digest. A proof that hashes to more leading zeros than
// claimed is accepted at its claimed difficulty only.
func VerifyPoW(commitment Digest, proof PoWProof) error {
	if LeadingZeroBits(powHash(commitment, proof.Nonce)) < proof.Difficulty {
		return ErrProofBelowDifficulty
	}
	return nil
}

// SolvePoW searches for a nonce meeting the given difficulty. Used by test
// fixtures and the demo client; a production prover would parallelize.
func SolvePoW(commitment Digest, difficulty uint32, maxIterations uint64) (PoWProof, error) {
	for nonce := uint64(0); nonce < maxIterations; nonce++ {
		if LeadingZeroBits(powHash(commitment, nonce)) >= difficulty {
			return PoWProof{Nonce: nonce, Difficulty: difficulty}, nil
		}
	}
	return PoWProof{}, errors.New("no proof found within iteration budget")
}
