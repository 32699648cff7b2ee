package auction

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashbots/batchclear/crypto"
	"github.com/flashbots/batchclear/protocol"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func order(participant string, side protocol.Side, pair, qty, limit string) RevealedOrder {
	var secret crypto.Secret
	copy(secret[:], participant)
	payload := protocol.OrderPayload{
		Side:       side,
		Pair:       pair,
		Quantity:   d(qty),
		LimitPrice: d(limit),
	}
	return RevealedOrder{
		CommitmentID: uuid.New(),
		Participant:  participant,
		Digest:       crypto.ComputeCommitmentDigest(1, payload.CanonicalBytes(), secret, 0),
		Secret:       secret,
		Payload:      payload,
	}
}

func clearingEngine() *ClearingEngine {
	return NewClearingEngine(protocol.DefaultConfig())
}

func TestClearing_CrossingPairMatchesFully(t *testing.T) {
	// Participant A buys 10 X at up to 100; B sells 10 X at 95 or better.
	orders := []RevealedOrder{
		order("a", protocol.Buy, "X/USDC", "10", "100"),
		order("b", protocol.Sell, "X/USDC", "10", "95"),
	}

	result, err := clearingEngine().ComputeClearing(1, orders)
	require.NoError(t, err)

	pair := result.Pair("X/USDC")
	require.NotNil(t, pair)

	// Price lies in [95,100]; both orders fill completely at that price.
	assert.True(t, pair.ClearingPrice.GreaterThanOrEqual(d("95")))
	assert.True(t, pair.ClearingPrice.LessThanOrEqual(d("100")))
	assert.True(t, pair.MatchedVolume.Equal(d("10")))
	require.Len(t, pair.Fills, 2)
	assert.Empty(t, result.Unmatched)
}

func TestClearing_FlatRegionResolvesToMidpoint(t *testing.T) {
	// Every price in [95,100] matches volume 10; the tie-break is the
	// midpoint, favoring neither side.
	orders := []RevealedOrder{
		order("a", protocol.Buy, "X/USDC", "10", "100"),
		order("b", protocol.Sell, "X/USDC", "10", "95"),
	}

	result, err := clearingEngine().ComputeClearing(1, orders)
	require.NoError(t, err)
	assert.True(t, result.Pair("X/USDC").ClearingPrice.Equal(d("97.5")))
}

func TestClearing_SinglePricePerPair(t *testing.T) {
	orders := []RevealedOrder{
		order("a", protocol.Buy, "X/USDC", "5", "102"),
		order("b", protocol.Buy, "X/USDC", "5", "99"),
		order("c", protocol.Sell, "X/USDC", "4", "95"),
		order("d", protocol.Sell, "X/USDC", "6", "98"),
	}

	result, err := clearingEngine().ComputeClearing(1, orders)
	require.NoError(t, err)

	pair := result.Pair("X/USDC")
	require.NotNil(t, pair)

	// Every fill trades at exactly the one computed price, whatever each
	// order's individual limit was.
	for _, fill := range pair.Fills {
		exact := fill.Quantity.Mul(pair.ClearingPrice)
		diff := fill.QuoteAmount.Sub(exact).Abs()
		assert.True(t, diff.LessThan(d("0.000000000001")),
			"fill for %s deviates from clearing price", fill.Participant)
	}

	buyVol, sellVol := decimal.Zero, decimal.Zero
	for _, fill := range pair.Fills {
		if fill.Side == protocol.Buy {
			buyVol = buyVol.Add(fill.Quantity)
		} else {
			sellVol = sellVol.Add(fill.Quantity)
		}
	}
	assert.True(t, buyVol.Equal(sellVol))
	assert.True(t, buyVol.Equal(pair.MatchedVolume))
}

func TestClearing_LimitNotMetIsFullyRefunded(t *testing.T) {
	orders := []RevealedOrder{
		order("a", protocol.Buy, "X/USDC", "10", "100"),
		order("b", protocol.Sell, "X/USDC", "10", "95"),
		order("c", protocol.Buy, "X/USDC", "10", "50"), // far below the cross
	}

	result, err := clearingEngine().ComputeClearing(1, orders)
	require.NoError(t, err)

	pair := result.Pair("X/USDC")
	require.NotNil(t, pair)
	for _, fill := range pair.Fills {
		assert.NotEqual(t, "c", fill.Participant)
	}
	require.Len(t, result.Unmatched, 1)
	assert.Equal(t, orders[2].CommitmentID, result.Unmatched[0])
}

func TestClearing_MarginRationedByOrderingNotSize(t *testing.T) {
	// Supply of 10 faces demand of 15 from one large and one small buyer
	// at the same limit. The execution ordering decides who is rationed;
	// the large order wins nothing by being large.
	big := order("big", protocol.Buy, "X/USDC", "12", "100")
	small := order("small", protocol.Buy, "X/USDC", "3", "100")
	sell := order("s", protocol.Sell, "X/USDC", "10", "100")

	// Execution order: small before big.
	result, err := clearingEngine().ComputeClearing(1, []RevealedOrder{small, big, sell})
	require.NoError(t, err)

	pair := result.Pair("X/USDC")
	require.NotNil(t, pair)

	fills := map[string]decimal.Decimal{}
	for _, fill := range pair.Fills {
		if fill.Side == protocol.Buy {
			fills[fill.Participant] = fill.Quantity
		}
	}
	assert.True(t, fills["small"].Equal(d("3")), "earlier order fills first")
	assert.True(t, fills["big"].Equal(d("7")), "later order takes the remainder")
}

func TestClearing_NoCrossMeansNoTrade(t *testing.T) {
	orders := []RevealedOrder{
		order("a", protocol.Buy, "X/USDC", "10", "90"),
		order("b", protocol.Sell, "X/USDC", "10", "95"),
	}

	result, err := clearingEngine().ComputeClearing(1, orders)
	require.NoError(t, err)
	assert.Nil(t, result.Pair("X/USDC"))
	assert.Len(t, result.Unmatched, 2)
}

func TestClearing_PairsPricedIndependently(t *testing.T) {
	orders := []RevealedOrder{
		order("a", protocol.Buy, "X/USDC", "10", "100"),
		order("b", protocol.Sell, "X/USDC", "10", "100"),
		order("c", protocol.Buy, "Y/USDC", "5", "10"),
		order("d", protocol.Sell, "Y/USDC", "5", "10"),
	}

	result, err := clearingEngine().ComputeClearing(1, orders)
	require.NoError(t, err)
	require.Len(t, result.Pairs, 2)
	assert.True(t, result.Pair("X/USDC").ClearingPrice.Equal(d("100")))
	assert.True(t, result.Pair("Y/USDC").ClearingPrice.Equal(d("10")))
}

func TestClearing_RoundingResidueGoesToPool(t *testing.T) {
	// 1/3 at price 100 produces a repeating quote value; the buyer pays
	// the rounded-up amount, the seller receives the rounded-down amount,
	// and the difference accrues as residue.
	orders := []RevealedOrder{
		order("a", protocol.Buy, "X/USDC", "0.333333333333333", "100"),
		order("b", protocol.Sell, "X/USDC", "0.333333333333333", "99"),
	}

	result, err := clearingEngine().ComputeClearing(1, orders)
	require.NoError(t, err)

	pair := result.Pair("X/USDC")
	require.NotNil(t, pair)
	assert.True(t, pair.Residue.GreaterThanOrEqual(decimal.Zero))

	var buyerPays, sellerGets decimal.Decimal
	for _, fill := range pair.Fills {
		if fill.Side == protocol.Buy {
			buyerPays = fill.QuoteAmount
		} else {
			sellerGets = fill.QuoteAmount
		}
	}
	assert.True(t, buyerPays.Sub(sellerGets).Equal(pair.Residue))
}

func TestClearing_NotionalCapVoids(t *testing.T) {
	cfg := protocol.DefaultConfig()
	cfg.NotionalCap = d("100")
	engine := NewClearingEngine(cfg)

	orders := []RevealedOrder{
		order("a", protocol.Buy, "X/USDC", "10", "100"), // notional 1000
	}

	_, err := engine.ComputeClearing(1, orders)
	assert.ErrorIs(t, err, protocol.ErrArithmeticOverflow)
}

func TestClearing_EmptyBatch(t *testing.T) {
	result, err := clearingEngine().ComputeClearing(1, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Pairs)
	assert.Empty(t, result.Unmatched)
}
