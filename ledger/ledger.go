// Package ledger tracks participant balances and locked collateral.
//
// Accounts are arena-indexed by participant identifier and carry their own
// mutex, so operations on unrelated participants never contend while the
// uniqueness and collateral invariants for a single participant stay
// serialized. Multi-account operations take locks in a deterministic order.
package ledger

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/flashbots/batchclear/protocol"
)

// PoolAccount receives slashed collateral, trading fees, and rounding
// residue. Value in it belongs to honest participants and liquidity
// providers; the protocol operator has no claim on it.
const PoolAccount = "pool"

// Account is one participant's balance record. Locked amounts back live
// commitments and are unreachable by transfers.
type Account struct {
	mu        sync.Mutex
	available map[string]decimal.Decimal
	locked    map[string]decimal.Decimal
}

func newAccount() *Account {
	return &Account{
		available: make(map[string]decimal.Decimal),
		locked:    make(map[string]decimal.Decimal),
	}
}

// CollateralLedger is the shared balance state of one pool. The outer map
// is guarded by mu; individual balances by the account's own mutex.
type CollateralLedger struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

// NewCollateralLedger creates an empty ledger with the pool account.
func NewCollateralLedger() *CollateralLedger {
	l := &CollateralLedger{accounts: make(map[string]*Account)}
	l.accounts[PoolAccount] = newAccount()
	return l
}

// account returns the record for a participant, creating it on first
// interaction. Records persist across batches.
func (l *CollateralLedger) account(participant string) *Account {
	l.mu.RLock()
	acct, ok := l.accounts[participant]
	l.mu.RUnlock()
	if ok {
		return acct
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if acct, ok = l.accounts[participant]; ok {
		return acct
	}
	acct = newAccount()
	l.accounts[participant] = acct
	return acct
}

// Deposit credits a participant's available balance.
func (l *CollateralLedger) Deposit(participant, asset string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("deposit of %s %s: amount must not be negative", amount, asset)
	}
	acct := l.account(participant)
	acct.mu.Lock()
	acct.available[asset] = acct.available[asset].Add(amount)
	acct.mu.Unlock()
	return nil
}

// Available returns a participant's free balance for an asset.
func (l *CollateralLedger) Available(participant, asset string) decimal.Decimal {
	acct := l.account(participant)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.available[asset]
}

// Locked returns a participant's locked balance for an asset.
func (l *CollateralLedger) Locked(participant, asset string) decimal.Decimal {
	acct := l.account(participant)
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.locked[asset]
}

// Lock moves amount from available to locked.
func (l *CollateralLedger) Lock(participant, asset string, amount decimal.Decimal) error {
	acct := l.account(participant)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	if acct.available[asset].LessThan(amount) {
		return fmt.Errorf("lock %s %s for %s: %w", amount, asset, participant, protocol.ErrInsufficientBalance)
	}
	acct.available[asset] = acct.available[asset].Sub(amount)
	acct.locked[asset] = acct.locked[asset].Add(amount)
	return nil
}

// Unlock returns amount from locked to available.
func (l *CollateralLedger) Unlock(participant, asset string, amount decimal.Decimal) error {
	acct := l.account(participant)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	if acct.locked[asset].LessThan(amount) {
		return fmt.Errorf("unlock %s %s for %s: %w", amount, asset, participant, protocol.ErrInsufficientBalance)
	}
	acct.locked[asset] = acct.locked[asset].Sub(amount)
	acct.available[asset] = acct.available[asset].Add(amount)
	return nil
}

// Slash forfeits slashRate of the participant's locked amount to the pool
// account and releases the remainder. Returns the forfeited value.
func (l *CollateralLedger) Slash(participant, asset string, lockedAmount, slashRate decimal.Decimal) (decimal.Decimal, error) {
	slashed := lockedAmount.Mul(slashRate)
	remainder := lockedAmount.Sub(slashed)

	acct := l.account(participant)
	acct.mu.Lock()
	if acct.locked[asset].LessThan(lockedAmount) {
		acct.mu.Unlock()
		return decimal.Zero, fmt.Errorf("slash %s %s of %s: %w", lockedAmount, asset, participant, protocol.ErrInsufficientBalance)
	}
	acct.locked[asset] = acct.locked[asset].Sub(lockedAmount)
	acct.available[asset] = acct.available[asset].Add(remainder)
	acct.mu.Unlock()

	pool := l.account(PoolAccount)
	pool.mu.Lock()
	pool.available[asset] = pool.available[asset].Add(slashed)
	pool.mu.Unlock()

	return slashed, nil
}

// Transfer moves amount between two participants' available balances.
type Transfer struct {
	From   string
	To     string
	Asset  string
	Amount decimal.Decimal
}

// ApplyTransfers applies a set of transfers atomically: either every
// transfer is applied or none is. All involved accounts are locked in
// deterministic order, debit feasibility is checked for the whole set, and
// only then are balances mutated.
func (l *CollateralLedger) ApplyTransfers(transfers []Transfer) error {
	if len(transfers) == 0 {
		return nil
	}

	ids := make(map[string]struct{}, 2*len(transfers))
	for _, tr := range transfers {
		if tr.Amount.IsNegative() {
			return fmt.Errorf("transfer %s -> %s: negative amount %s", tr.From, tr.To, tr.Amount)
		}
		ids[tr.From] = struct{}{}
		ids[tr.To] = struct{}{}
	}
	ordered := make([]string, 0, len(ids))
	for id := range ids {
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)

	accts := make(map[string]*Account, len(ordered))
	for _, id := range ordered {
		accts[id] = l.account(id)
	}
	for _, id := range ordered {
		accts[id].mu.Lock()
	}
	defer func() {
		for i := len(ordered) - 1; i >= 0; i-- {
			accts[ordered[i]].mu.Unlock()
		}
	}()

	// Feasibility pass over net balances.
	type key struct{ id, asset string }
	net := make(map[key]decimal.Decimal)
	for _, tr := range transfers {
		net[key{tr.From, tr.Asset}] = net[key{tr.From, tr.Asset}].Sub(tr.Amount)
		net[key{tr.To, tr.Asset}] = net[key{tr.To, tr.Asset}].Add(tr.Amount)
	}
	for k, delta := range net {
		if accts[k.id].available[k.asset].Add(delta).IsNegative() {
			return fmt.Errorf("transfer set would overdraw %s %s: %w", k.id, k.asset, protocol.ErrInsufficientBalance)
		}
	}

	for k, delta := range net {
		accts[k.id].available[k.asset] = accts[k.id].available[k.asset].Add(delta)
	}
	return nil
}

// TotalLocked sums locked balances of an asset across all participants.
// Used by the collateral-conservation check and tests.
func (l *CollateralLedger) TotalLocked(asset string) decimal.Decimal {
	l.mu.RLock()
	accts := make([]*Account, 0, len(l.accounts))
	for _, acct := range l.accounts {
		accts = append(accts, acct)
	}
	l.mu.RUnlock()

	total := decimal.Zero
	for _, acct := range accts {
		acct.mu.Lock()
		total = total.Add(acct.locked[asset])
		acct.mu.Unlock()
	}
	return total
}
