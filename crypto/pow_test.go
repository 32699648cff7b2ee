package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyPoW(t *testing.T) {
	commitment := ComputeCommitmentDigest(1, []byte("order"), Secret{9}, 0)

	proof, err := SolvePoW(commitment, 8, 1<<20)
	require.NoError(t, err)

	assert.NoError(t, VerifyPoW(commitment, proof))

	// Claiming more difficulty than the hash provides must fail.
	inflated := PoWProof{Nonce: proof.Nonce, Difficulty: 30}
	assert.ErrorIs(t, VerifyPoW(commitment, inflated), ErrProofBelowDifficulty)

	// A proof for one commitment is not valid for another.
	other := ComputeCommitmentDigest(2, []byte("order"), Secret{9}, 0)
	if LeadingZeroBits(powHash(other, proof.Nonce)) < proof.Difficulty {
		assert.Error(t, VerifyPoW(other, proof))
	}
}

func TestLeadingZeroBits(t *testing.T) {
	assert.Equal(t, uint32(256), LeadingZeroBits([32]byte{}))

	var one [32]byte
	one[31] = 1
	assert.Equal(t, uint32(255), LeadingZeroBits(one))

	var high [32]byte
	high[0] = 0x80
	assert.Equal(t, uint32(0), LeadingZeroBits(high))

	var mid [32]byte
	mid[1] = 0x10
	assert.Equal(t, uint32(11), LeadingZeroBits(mid))
}
