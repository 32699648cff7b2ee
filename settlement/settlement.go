package settlement

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/flashbots/batchclear/auction"
	"github.com/flashbots/batchclear/ledger"
	"github.com/flashbots/batchclear/protocol"
)

// Engine applies clearing results to balances. Settlement never re-runs
// price discovery: a retry after a transient fault reuses the identical
// clearing result it was first called with, and replaying an already
// settled batch produces no additional transfers.
type Engine struct {
	cfg        *protocol.EngineConfig
	transferor AssetTransferor

	mu      sync.Mutex
	settled map[uint64][]TransferInstruction
}

// NewEngine creates a settlement engine.
func NewEngine(cfg *protocol.EngineConfig, transferor AssetTransferor) *Engine {
	return &Engine{
		cfg:        cfg,
		transferor: transferor,
		settled:    make(map[uint64][]TransferInstruction),
	}
}

// Settled reports whether a batch has been settled.
func (e *Engine) Settled(batchID uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.settled[batchID]
	return ok
}

// Instructions returns the instructions a settled batch executed.
func (e *Engine) Instructions(batchID uint64) ([]TransferInstruction, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	instrs, ok := e.settled[batchID]
	return instrs, ok
}

// Settle executes a batch's clearing result. The instruction sequence is
// derived from the shuffle ordering and applied all-or-nothing; on a
// transferor fault the batch stays unsettled and the error wraps
// ErrSettlementFailed so the scheduler loop retries with the same result.
func (e *Engine) Settle(ctx context.Context, result *auction.ClearingResult, ordering []auction.RevealedOrder) ([]TransferInstruction, error) {
	e.mu.Lock()
	if instrs, done := e.settled[result.BatchID]; done {
		e.mu.Unlock()
		return instrs, nil
	}
	e.mu.Unlock()

	instructions := e.buildInstructions(result, ordering)

	if err := e.transferor.Execute(ctx, instructions); err != nil {
		return nil, fmt.Errorf("batch %d: %w: %w", result.BatchID, err, protocol.ErrSettlementFailed)
	}

	e.mu.Lock()
	e.settled[result.BatchID] = instructions
	e.mu.Unlock()
	return instructions, nil
}

// buildInstructions turns fills into trade legs, fee charges and fee
// credits, in execution order. Trade legs route through the pool account:
// buyers pay quote in and receive base out, sellers deliver base and
// receive quote. With buyer legs rounded up and seller legs rounded down,
// the pair's rounding residue accumulates in the pool by construction.
func (e *Engine) buildInstructions(result *auction.ClearingResult, ordering []auction.RevealedOrder) []TransferInstruction {
	instructions := []TransferInstruction{}
	seq := 0
	emit := func(kind TransferKind, from, to, asset string, amount decimal.Decimal) {
		if !amount.IsPositive() {
			return
		}
		instructions = append(instructions, TransferInstruction{
			BatchID: result.BatchID,
			Seq:     seq,
			Kind:    kind,
			From:    from,
			To:      to,
			Asset:   asset,
			Amount:  amount,
		})
		seq++
	}

	for p := range result.Pairs {
		pair := &result.Pairs[p]
		base, quote := splitPair(pair.Pair)

		totalFee := decimal.Zero
		for _, fill := range pair.Fills {
			if fill.Side == protocol.Buy {
				emit(TransferTrade, fill.Participant, ledger.PoolAccount, quote, fill.QuoteAmount)
				emit(TransferTrade, ledger.PoolAccount, fill.Participant, base, fill.Quantity)

				fee := fill.QuoteAmount.Mul(e.cfg.TradingFeeRate).RoundUp(quoteScale)
				emit(TransferFee, fill.Participant, ledger.PoolAccount, quote, fee)
				totalFee = totalFee.Add(fee)
			} else {
				emit(TransferTrade, fill.Participant, ledger.PoolAccount, base, fill.Quantity)
				emit(TransferTrade, ledger.PoolAccount, fill.Participant, quote, fill.QuoteAmount)
			}
		}

		for _, credit := range allocateFees(pair, ordering, totalFee) {
			emit(TransferFeeCredit, ledger.PoolAccount, credit.Participant, quote, credit.Amount)
		}
	}

	// Priority-fee bids from every revealed order that did not substitute
	// proof of work, matched or not: the bid was committed unconditionally.
	for _, ord := range ordering {
		if ord.FeePaidByPoW || !ord.Payload.FeeBid.IsPositive() {
			continue
		}
		_, quote := splitPair(ord.Payload.Pair)
		emit(TransferFee, ord.Participant, ledger.PoolAccount, quote, ord.Payload.FeeBid)
	}

	return instructions
}

// splitPair separates "BASE/QUOTE". Pair syntax is validated at reveal
// time, so a malformed pair cannot reach settlement.
func splitPair(pair string) (base, quote string) {
	idx := strings.Index(pair, "/")
	if idx < 0 {
		return pair, pair
	}
	return pair[:idx], pair[idx+1:]
}
