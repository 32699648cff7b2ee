package auction

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashbots/batchclear/crypto"
	"github.com/flashbots/batchclear/protocol"
)

func testOrder(t *testing.T, i int) RevealedOrder {
	t.Helper()
	var secret crypto.Secret
	copy(secret[:], fmt.Sprintf("secret-%d", i))

	payload := protocol.OrderPayload{
		Side:       protocol.Buy,
		Pair:       "X/USDC",
		Quantity:   decimal.NewFromInt(int64(i + 1)),
		LimitPrice: decimal.NewFromInt(100),
	}
	return RevealedOrder{
		CommitmentID: uuid.New(),
		Participant:  fmt.Sprintf("p%d", i),
		Digest:       crypto.ComputeCommitmentDigest(1, payload.CanonicalBytes(), secret, uint64(i)),
		Secret:       secret,
		Payload:      payload,
	}
}

func TestShuffle_IndependentOfSubmissionOrder(t *testing.T) {
	engine := NewShuffleEngine()

	orders := make([]RevealedOrder, 8)
	for i := range orders {
		orders[i] = testOrder(t, i)
	}

	want := engine.DeriveOrdering(orders)

	// Any permutation of the input yields the same execution ordering.
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 20; trial++ {
		permuted := make([]RevealedOrder, len(orders))
		copy(permuted, orders)
		rng.Shuffle(len(permuted), func(i, j int) {
			permuted[i], permuted[j] = permuted[j], permuted[i]
		})

		got := engine.DeriveOrdering(permuted)
		require.Equal(t, len(want), len(got))
		for i := range want {
			assert.Equal(t, want[i].CommitmentID, got[i].CommitmentID, "trial %d position %d", trial, i)
		}
	}
}

func TestShuffle_SeedChangesOrdering(t *testing.T) {
	engine := NewShuffleEngine()

	orders := make([]RevealedOrder, 16)
	for i := range orders {
		orders[i] = testOrder(t, i)
	}

	base := engine.DeriveOrdering(orders)

	// Changing one participant's secret reshuffles everyone.
	changed := make([]RevealedOrder, len(orders))
	copy(changed, orders)
	changed[0].Secret[0] ^= 0xff

	other := engine.DeriveOrdering(changed)
	samePositions := 0
	for i := range base {
		if base[i].CommitmentID == other[i].CommitmentID {
			samePositions++
		}
	}
	assert.Less(t, samePositions, len(base), "ordering must depend on every secret")
}

func TestShuffle_SeedIsXOROfSecrets(t *testing.T) {
	engine := NewShuffleEngine()

	a := testOrder(t, 0)
	b := testOrder(t, 1)

	seed := engine.DeriveSeed([]RevealedOrder{a, b})
	assert.Equal(t, a.Secret.XOR(b.Secret), seed)

	// Empty batch folds to the zero seed.
	assert.Equal(t, crypto.Secret{}, engine.DeriveSeed(nil))
}

func TestShuffleStream_UniformSmallRange(t *testing.T) {
	stream := newShuffleStream(crypto.Secret{7})

	counts := make([]int, 5)
	const draws = 50000
	for i := 0; i < draws; i++ {
		counts[stream.uintN(5)]++
	}

	for v, n := range counts {
		// Loose uniformity bound: each bucket within 5% of expectation.
		assert.InDelta(t, draws/5, n, 0.05*float64(draws/5), "value %d", v)
	}
}
