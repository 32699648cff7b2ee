package auction

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flashbots/batchclear/protocol"
)

// quoteScale is the decimal precision of quote-asset transfer amounts.
// Fill values are rounded to it; the remainder goes to the pool.
const quoteScale = 12

// ClearingEngine aggregates revealed orders into supply and demand curves
// and computes one uniform clearing price per asset pair.
type ClearingEngine struct {
	cfg *protocol.EngineConfig
}

// NewClearingEngine creates a clearing engine for a pool configuration.
func NewClearingEngine(cfg *protocol.EngineConfig) *ClearingEngine {
	return &ClearingEngine{cfg: cfg}
}

// ComputeClearing prices a batch. ordering must be the shuffle-derived
// permutation of the batch's valid reveals; it decides rationing at the
// marginal price level and nothing else. The computation is a single
// deterministic pass over an immutable snapshot.
//
// A batch whose aggregate declared notional exceeds the configured cap
// fails with ErrArithmeticOverflow; the caller voids the batch and returns
// all collateral unslashed.
func (e *ClearingEngine) ComputeClearing(batchID uint64, ordering []RevealedOrder) (*ClearingResult, error) {
	totalNotional := decimal.Zero
	for i := range ordering {
		totalNotional = totalNotional.Add(ordering[i].Payload.Notional())
		if totalNotional.GreaterThan(e.cfg.NotionalCap) {
			return nil, fmt.Errorf("batch %d aggregate notional %s: %w",
				batchID, totalNotional, protocol.ErrArithmeticOverflow)
		}
	}

	byPair := make(map[string][]RevealedOrder)
	pairs := []string{}
	for _, ord := range ordering {
		if _, seen := byPair[ord.Payload.Pair]; !seen {
			pairs = append(pairs, ord.Payload.Pair)
		}
		byPair[ord.Payload.Pair] = append(byPair[ord.Payload.Pair], ord)
	}
	sort.Strings(pairs)

	result := &ClearingResult{BatchID: batchID}
	for _, pair := range pairs {
		clearing, unmatched := e.clearPair(pair, byPair[pair])
		if clearing != nil {
			result.Pairs = append(result.Pairs, *clearing)
		}
		result.Unmatched = append(result.Unmatched, unmatched...)
	}
	return result, nil
}

// clearPair computes the uniform price and fills for one pair. The orders
// slice is in execution order.
func (e *ClearingEngine) clearPair(pair string, orders []RevealedOrder) (*PairClearing, []uuid.UUID) {
	price, matched := crossCurves(orders)
	if !matched.IsPositive() {
		return nil, commitmentIDs(orders)
	}

	clearing := &PairClearing{
		Pair:          pair,
		ClearingPrice: price,
		MatchedVolume: matched,
		Residue:       decimal.Zero,
	}

	unmatched := []uuid.UUID{}
	for _, side := range []protocol.Side{protocol.Buy, protocol.Sell} {
		remaining := matched
		for _, ord := range orders {
			if ord.Payload.Side != side {
				continue
			}
			if !eligible(ord.Payload, price) || !remaining.IsPositive() {
				unmatched = append(unmatched, ord.CommitmentID)
				continue
			}

			qty := decimal.Min(ord.Payload.Quantity, remaining)
			remaining = remaining.Sub(qty)

			exact := qty.Mul(price)
			var quote decimal.Decimal
			if side == protocol.Buy {
				// Buyers pay rounded up, sellers receive rounded down;
				// the gap accrues to the pool, never to either side.
				quote = exact.RoundUp(quoteScale)
				clearing.Residue = clearing.Residue.Add(quote.Sub(exact))
			} else {
				quote = exact.RoundDown(quoteScale)
				clearing.Residue = clearing.Residue.Add(exact.Sub(quote))
			}

			clearing.Fills = append(clearing.Fills, Fill{
				CommitmentID: ord.CommitmentID,
				Participant:  ord.Participant,
				Side:         side,
				Quantity:     qty,
				QuoteAmount:  quote,
			})
		}
	}

	return clearing, unmatched
}

func commitmentIDs(orders []RevealedOrder) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(orders))
	for i := range orders {
		ids = append(ids, orders[i].CommitmentID)
	}
	return ids
}

// eligible reports whether an order's limit is at least as favorable as
// the clearing price.
func eligible(p protocol.OrderPayload, price decimal.Decimal) bool {
	if p.Side == protocol.Buy {
		return p.LimitPrice.GreaterThanOrEqual(price)
	}
	return p.LimitPrice.LessThanOrEqual(price)
}

// crossCurves finds the price maximizing matched volume. Candidate prices
// are the distinct limit prices; cumulative demand is non-increasing and
// cumulative supply non-decreasing in price, so the maximizers form a
// contiguous interval. A flat (non-unique) optimum resolves to the
// midpoint of that interval, which favors neither side.
func crossCurves(orders []RevealedOrder) (decimal.Decimal, decimal.Decimal) {
	prices := candidatePrices(orders)
	if len(prices) == 0 {
		return decimal.Zero, decimal.Zero
	}

	best := decimal.Zero
	var lo, hi decimal.Decimal
	for _, p := range prices {
		demand, supply := decimal.Zero, decimal.Zero
		for i := range orders {
			pay := orders[i].Payload
			switch {
			case pay.Side == protocol.Buy && pay.LimitPrice.GreaterThanOrEqual(p):
				demand = demand.Add(pay.Quantity)
			case pay.Side == protocol.Sell && pay.LimitPrice.LessThanOrEqual(p):
				supply = supply.Add(pay.Quantity)
			}
		}

		matched := decimal.Min(demand, supply)
		switch {
		case matched.GreaterThan(best):
			best = matched
			lo, hi = p, p
		case matched.Equal(best) && best.IsPositive():
			hi = p
		}
	}

	if !best.IsPositive() {
		return decimal.Zero, decimal.Zero
	}
	mid := lo.Add(hi).Div(decimal.NewFromInt(2))
	return mid, best
}

func candidatePrices(orders []RevealedOrder) []decimal.Decimal {
	seen := make(map[string]struct{}, len(orders))
	prices := make([]decimal.Decimal, 0, len(orders))
	for i := range orders {
		p := orders[i].Payload.LimitPrice
		if _, ok := seen[p.String()]; ok {
			continue
		}
		seen[p.String()] = struct{}{}
		prices = append(prices, p)
	}
	sort.Slice(prices, func(i, j int) bool {
		return prices[i].LessThan(prices[j])
	})
	return prices
}
