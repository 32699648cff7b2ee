package auction

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flashbots/batchclear/crypto"
	"github.com/flashbots/batchclear/protocol"
)

// RevealedOrder is an order whose payload hash-matched its commitment. It
// is immutable once the reveal window closes; the shuffle and clearing
// engines run over a frozen snapshot of these.
type RevealedOrder struct {
	CommitmentID uuid.UUID             `json:"commitment_id"`
	Participant  string                `json:"participant"`
	Digest       crypto.Digest         `json:"digest"`
	Secret       crypto.Secret         `json:"secret"`
	Payload      protocol.OrderPayload `json:"payload"`
	Collateral   decimal.Decimal       `json:"collateral"`

	// FeePaidByPoW records that a verified proof of work stands in for the
	// payload's monetary fee bid, so settlement must not charge it.
	FeePaidByPoW bool `json:"fee_paid_by_pow"`
}

// Fill records how much of an order matched. Every fill in a batch trades
// at the pair's single clearing price, never at the order's own limit.
type Fill struct {
	CommitmentID uuid.UUID       `json:"commitment_id"`
	Participant  string          `json:"participant"`
	Side         protocol.Side   `json:"side"`
	Quantity     decimal.Decimal `json:"quantity"`

	// QuoteAmount is the rounded quote-asset value of the fill: what the
	// buyer pays (buy side) or the seller receives (sell side).
	QuoteAmount decimal.Decimal `json:"quote_amount"`
}

// PairClearing is the uniform-price outcome for one asset pair.
type PairClearing struct {
	Pair string `json:"pair"`

	// ClearingPrice is the single price every fill in the pair trades at.
	ClearingPrice decimal.Decimal `json:"clearing_price"`

	// MatchedVolume is the base-asset volume matched on each side.
	MatchedVolume decimal.Decimal `json:"matched_volume"`

	// Fills holds partially and fully filled orders in execution order.
	Fills []Fill `json:"fills"`

	// Residue is the quote-asset rounding remainder allocated to the pool.
	Residue decimal.Decimal `json:"residue"`
}

// ClearingResult is the complete priced outcome of a batch. It is computed
// exactly once; settlement retries reuse it verbatim.
type ClearingResult struct {
	BatchID uint64 `json:"batch_id"`

	// Pairs is sorted by pair name for deterministic iteration.
	Pairs []PairClearing `json:"pairs"`

	// Unmatched lists commitment IDs of revealed orders that did not trade
	// and are fully refunded; there are no partial price concessions.
	Unmatched []uuid.UUID `json:"unmatched"`
}

// Pair returns the clearing for one pair, or nil.
func (r *ClearingResult) Pair(name string) *PairClearing {
	for i := range r.Pairs {
		if r.Pairs[i].Pair == name {
			return &r.Pairs[i]
		}
	}
	return nil
}
