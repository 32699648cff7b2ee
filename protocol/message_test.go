package protocol

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashbots/batchclear/crypto"
)

func TestSigned_RoundTrip(t *testing.T) {
	_, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	req := &CommitRequest{BatchID: 3, Collateral: decimal.NewFromInt(10)}
	signed, err := NewSigned(priv, req)
	require.NoError(t, err)

	recovered, signer, err := signed.Recover()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), recovered.BatchID)

	pub, _ := priv.PublicKey()
	assert.True(t, signer.Equal(pub))
}

func TestSigned_RejectsTamperedObject(t *testing.T) {
	_, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	req := &CommitRequest{BatchID: 3, Collateral: decimal.NewFromInt(10)}
	signed, err := NewSigned(priv, req)
	require.NoError(t, err)

	signed.Object.Collateral = decimal.NewFromInt(1000)
	_, _, err = signed.Recover()
	assert.Error(t, err)
}

func TestSigned_RejectsSubstitutedSigner(t *testing.T) {
	_, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	otherPub, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	signed, err := NewSigned(priv, &RevealRequest{Nonce: 1})
	require.NoError(t, err)

	signed.PublicKey = otherPub
	_, _, err = signed.Recover()
	assert.Error(t, err)
}

func TestOrderPayload_CanonicalBytesInjective(t *testing.T) {
	a := OrderPayload{Side: Buy, Pair: "X/USDC", Quantity: decimal.NewFromInt(10), LimitPrice: decimal.NewFromInt(100)}
	b := a
	b.Quantity = decimal.NewFromInt(100)
	b.LimitPrice = decimal.NewFromInt(10)

	// Same concatenated characters, different fields: the length prefixes
	// must keep the encodings apart.
	assert.NotEqual(t, a.CanonicalBytes(), b.CanonicalBytes())

	// Equal payloads encode identically regardless of decimal construction.
	c := OrderPayload{Side: Buy, Pair: "X/USDC", Quantity: decimal.RequireFromString("10"), LimitPrice: decimal.RequireFromString("100")}
	assert.Equal(t, a.CanonicalBytes(), c.CanonicalBytes())
}

func TestOrderPayload_Validate(t *testing.T) {
	valid := OrderPayload{Side: Sell, Pair: "X/USDC", Quantity: decimal.NewFromInt(1), LimitPrice: decimal.NewFromInt(95)}
	require.NoError(t, valid.Validate())

	bad := valid
	bad.Side = "short"
	assert.Error(t, bad.Validate())

	bad = valid
	bad.Quantity = decimal.Zero
	assert.Error(t, bad.Validate())

	bad = valid
	bad.FeeBid = decimal.NewFromInt(-1)
	assert.Error(t, bad.Validate())
}
