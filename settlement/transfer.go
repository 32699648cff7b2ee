// Package settlement turns a clearing result into executable transfer
// instructions and applies them atomically, with idempotent replay and
// retry semantics for transient faults.
package settlement

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/flashbots/batchclear/ledger"
)

// TransferKind labels what an instruction settles.
type TransferKind string

const (
	// TransferTrade moves a traded asset leg at the clearing price.
	TransferTrade TransferKind = "trade"

	// TransferFee moves a trading fee or priority-fee bid into the pool.
	TransferFee TransferKind = "fee"

	// TransferFeeCredit distributes pooled fees to a liquidity provider.
	TransferFeeCredit TransferKind = "fee_credit"
)

// TransferInstruction is one executable asset movement. Instructions for a
// batch are emitted in the shuffle-derived execution order and numbered by
// Seq within the batch.
type TransferInstruction struct {
	BatchID uint64          `json:"batch_id"`
	Seq     int             `json:"seq"`
	Kind    TransferKind    `json:"kind"`
	From    string          `json:"from"`
	To      string          `json:"to"`
	Asset   string          `json:"asset"`
	Amount  decimal.Decimal `json:"amount"`
}

// AssetTransferor performs the actual asset movement for a settled batch.
// It is the external token-transfer collaborator: the engine computes
// instructions, the transferor executes them. Execution must be
// all-or-nothing for the batch, or safely resumable on replay with the
// same batch identifier.
type AssetTransferor interface {
	Execute(ctx context.Context, instructions []TransferInstruction) error
}

// LedgerTransferor settles batches directly against the in-process ledger.
type LedgerTransferor struct {
	ledger *ledger.CollateralLedger
}

// NewLedgerTransferor creates a transferor backed by the given ledger.
func NewLedgerTransferor(l *ledger.CollateralLedger) *LedgerTransferor {
	return &LedgerTransferor{ledger: l}
}

// Execute applies the instructions atomically to the ledger.
func (t *LedgerTransferor) Execute(_ context.Context, instructions []TransferInstruction) error {
	transfers := make([]ledger.Transfer, len(instructions))
	for i, instr := range instructions {
		transfers[i] = ledger.Transfer{
			From:   instr.From,
			To:     instr.To,
			Asset:  instr.Asset,
			Amount: instr.Amount,
		}
	}
	return t.ledger.ApplyTransfers(transfers)
}
