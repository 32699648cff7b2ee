package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitmentDigest_Deterministic(t *testing.T) {
	order := []byte("buy 10 X @ 100")
	var secret Secret
	copy(secret[:], "s1")

	d1 := ComputeCommitmentDigest(7, order, secret, 1)
	d2 := ComputeCommitmentDigest(7, order, secret, 1)
	assert.True(t, d1.Equal(d2))
}

func TestCommitmentDigest_SensitiveToEveryInput(t *testing.T) {
	order := []byte("buy 10 X @ 100")
	var secret, otherSecret Secret
	copy(secret[:], "s1")
	copy(otherSecret[:], "s2")

	base := ComputeCommitmentDigest(7, order, secret, 1)

	assert.False(t, base.Equal(ComputeCommitmentDigest(8, order, secret, 1)))
	assert.False(t, base.Equal(ComputeCommitmentDigest(7, []byte("buy 10 X @ 101"), secret, 1)))
	assert.False(t, base.Equal(ComputeCommitmentDigest(7, order, otherSecret, 1)))
	assert.False(t, base.Equal(ComputeCommitmentDigest(7, order, secret, 2)))
}

func TestDigest_HexRoundTrip(t *testing.T) {
	d := ComputeCommitmentDigest(1, []byte("payload"), Secret{1, 2, 3}, 42)

	parsed, err := NewDigestFromString(d.String())
	require.NoError(t, err)
	assert.True(t, d.Equal(parsed))

	_, err = NewDigestFromString("abcd")
	assert.ErrorIs(t, err, ErrBadDigestLength)
}

func TestSecret_XORCommutes(t *testing.T) {
	a := Secret{1, 2, 3}
	b := Secret{4, 5, 6}
	c := Secret{7, 8, 9}

	assert.Equal(t, a.XOR(b), b.XOR(a))
	assert.Equal(t, a.XOR(b).XOR(c), c.XOR(b).XOR(a))
}

func TestSignRoundTrip(t *testing.T) {
	pub, priv, err := GenerateKeyPair()
	require.NoError(t, err)

	sig, err := Sign(priv, []byte("hello"))
	require.NoError(t, err)

	assert.True(t, sig.Verify(pub, []byte("hello")))
	assert.False(t, sig.Verify(pub, []byte("tampered")))

	otherPub, _, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.False(t, sig.Verify(otherPub, []byte("hello")))
}
