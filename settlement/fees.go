package settlement

import (
	"github.com/shopspring/decimal"

	"github.com/flashbots/batchclear/auction"
	"github.com/flashbots/batchclear/protocol"
)

// FeeCredit is one liquidity provider's share of a pair's trading fees.
type FeeCredit struct {
	Participant string
	Amount      decimal.Decimal
}

// allocateFees splits a pair's total trading fee among its liquidity
// providers by marginal contribution rather than a flat pro-rata split.
//
// The coalition value of a set of providers is the volume the batch could
// match with only their liquidity present: min(matched demand, sum of
// their eligible posted quantity). Providers join in the shuffle-derived
// execution order and each is credited with the value their joining adds.
// This is the one-permutation estimator of the Shapley value; exact
// Shapley is exponential in the number of providers, and the shuffle
// permutation is itself unbiased and manipulation-resistant, so a single
// deterministic sample inherits those guarantees. A provider whose posted
// liquidity adds nothing beyond what earlier joiners already cover earns
// nothing, however large their share of total posted liquidity.
func allocateFees(pair *auction.PairClearing, ordering []auction.RevealedOrder, totalFee decimal.Decimal) []FeeCredit {
	if !totalFee.IsPositive() {
		return nil
	}

	// Eligible posted sell quantity per provider, in execution order.
	type provider struct {
		participant string
		posted      decimal.Decimal
	}
	providers := []provider{}
	index := map[string]int{}
	for _, ord := range ordering {
		p := ord.Payload
		if p.Pair != pair.Pair || p.Side != protocol.Sell {
			continue
		}
		if p.LimitPrice.GreaterThan(pair.ClearingPrice) {
			continue
		}
		if i, ok := index[ord.Participant]; ok {
			providers[i].posted = providers[i].posted.Add(p.Quantity)
			continue
		}
		index[ord.Participant] = len(providers)
		providers = append(providers, provider{ord.Participant, p.Quantity})
	}
	if len(providers) == 0 {
		return nil
	}

	demand := pair.MatchedVolume
	credits := []FeeCredit{}
	coalition := decimal.Zero
	value := decimal.Zero
	totalMarginal := decimal.Zero
	marginals := make([]decimal.Decimal, len(providers))
	for i, prov := range providers {
		coalition = coalition.Add(prov.posted)
		joined := decimal.Min(demand, coalition)
		marginals[i] = joined.Sub(value)
		totalMarginal = totalMarginal.Add(marginals[i])
		value = joined
	}
	if !totalMarginal.IsPositive() {
		return nil
	}

	// Shares round down; the shortfall stays in the pool.
	for i, prov := range providers {
		if !marginals[i].IsPositive() {
			continue
		}
		share := totalFee.Mul(marginals[i]).Div(totalMarginal).RoundDown(quoteScale)
		if share.IsPositive() {
			credits = append(credits, FeeCredit{prov.participant, share})
		}
	}
	return credits
}

const quoteScale = 12
