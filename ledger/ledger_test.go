package ledger

import (
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashbots/batchclear/protocol"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestLedger_LockUnlock(t *testing.T) {
	l := NewCollateralLedger()
	require.NoError(t, l.Deposit("alice", "USDC", d("100")))

	require.NoError(t, l.Lock("alice", "USDC", d("30")))
	assert.True(t, l.Available("alice", "USDC").Equal(d("70")))
	assert.True(t, l.Locked("alice", "USDC").Equal(d("30")))

	err := l.Lock("alice", "USDC", d("71"))
	assert.ErrorIs(t, err, protocol.ErrInsufficientBalance)

	require.NoError(t, l.Unlock("alice", "USDC", d("30")))
	assert.True(t, l.Available("alice", "USDC").Equal(d("100")))
	assert.True(t, l.Locked("alice", "USDC").IsZero())
}

func TestLedger_SlashSplitsBetweenPoolAndOwner(t *testing.T) {
	l := NewCollateralLedger()
	require.NoError(t, l.Deposit("carol", "USDC", d("100")))
	require.NoError(t, l.Lock("carol", "USDC", d("40")))

	slashed, err := l.Slash("carol", "USDC", d("40"), d("0.5"))
	require.NoError(t, err)

	assert.True(t, slashed.Equal(d("20")))
	assert.True(t, l.Available("carol", "USDC").Equal(d("80")))
	assert.True(t, l.Locked("carol", "USDC").IsZero())
	assert.True(t, l.Available(PoolAccount, "USDC").Equal(d("20")))
}

func TestLedger_ApplyTransfersAtomic(t *testing.T) {
	l := NewCollateralLedger()
	require.NoError(t, l.Deposit("a", "X", d("10")))
	require.NoError(t, l.Deposit("b", "USDC", d("1000")))

	transfers := []Transfer{
		{From: "a", To: "b", Asset: "X", Amount: d("10")},
		{From: "b", To: "a", Asset: "USDC", Amount: d("975")},
	}
	require.NoError(t, l.ApplyTransfers(transfers))
	assert.True(t, l.Available("b", "X").Equal(d("10")))
	assert.True(t, l.Available("a", "USDC").Equal(d("975")))
}

func TestLedger_ApplyTransfersAllOrNothing(t *testing.T) {
	l := NewCollateralLedger()
	require.NoError(t, l.Deposit("a", "X", d("10")))
	require.NoError(t, l.Deposit("b", "USDC", d("100")))

	transfers := []Transfer{
		{From: "a", To: "b", Asset: "X", Amount: d("10")},
		{From: "b", To: "a", Asset: "USDC", Amount: d("975")}, // overdraws b
	}
	err := l.ApplyTransfers(transfers)
	require.ErrorIs(t, err, protocol.ErrInsufficientBalance)

	// No partial application.
	assert.True(t, l.Available("a", "X").Equal(d("10")))
	assert.True(t, l.Available("b", "USDC").Equal(d("100")))
	assert.True(t, l.Available("b", "X").IsZero())
}

func TestLedger_ApplyTransfersNetsFlows(t *testing.T) {
	// b receives before paying out: as a net position the set is feasible
	// even though b starts empty.
	l := NewCollateralLedger()
	require.NoError(t, l.Deposit("a", "USDC", d("50")))

	transfers := []Transfer{
		{From: "a", To: "b", Asset: "USDC", Amount: d("50")},
		{From: "b", To: "c", Asset: "USDC", Amount: d("30")},
	}
	require.NoError(t, l.ApplyTransfers(transfers))
	assert.True(t, l.Available("b", "USDC").Equal(d("20")))
	assert.True(t, l.Available("c", "USDC").Equal(d("30")))
}

func TestLedger_ConcurrentDistinctParticipants(t *testing.T) {
	l := NewCollateralLedger()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("p%d", i)
			for j := 0; j < 100; j++ {
				_ = l.Deposit(id, "USDC", d("1"))
				_ = l.Lock(id, "USDC", d("1"))
				_ = l.Unlock(id, "USDC", d("1"))
			}
		}(i)
	}
	wg.Wait()

	total := decimal.Zero
	for i := 0; i < 32; i++ {
		total = total.Add(l.Available(fmt.Sprintf("p%d", i), "USDC"))
	}
	assert.True(t, total.Equal(d("3200")))
	assert.True(t, l.TotalLocked("USDC").IsZero())
}
