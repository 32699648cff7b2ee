// Package engine ties the batch lifecycle together: it accepts
// commitments and reveals, and drives each batch through shuffle,
// clearing and settlement when its reveal deadline passes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flashbots/batchclear/auction"
	"github.com/flashbots/batchclear/ledger"
	"github.com/flashbots/batchclear/metrics"
	"github.com/flashbots/batchclear/protocol"
	"github.com/flashbots/batchclear/settlement"
)

// BatchRecord is the durable outcome of a finished batch.
type BatchRecord struct {
	BatchID      uint64                           `json:"batch_id"`
	State        protocol.BatchState              `json:"state"`
	Result       *auction.ClearingResult          `json:"result,omitempty"`
	Instructions []settlement.TransferInstruction `json:"instructions,omitempty"`
	Audit        []AuditRecord                    `json:"audit,omitempty"`
}

// BatchArchive persists finished batches. Each call is bounded by a
// timeout and failures are logged; the in-memory record stays queryable
// either way.
type BatchArchive interface {
	SaveBatch(ctx context.Context, rec *BatchRecord) error
}

// defaultArchiveTimeout caps one archive round-trip so a hung store
// cannot stall the lifecycle loop.
const defaultArchiveTimeout = 10 * time.Second

// Config wires an Engine's collaborators. Log is required; Archive,
// Metrics and Transferor are optional.
type Config struct {
	Engine     *protocol.EngineConfig
	Log        *slog.Logger
	Archive    BatchArchive
	Metrics    *metrics.Metrics
	Transferor settlement.AssetTransferor
}

// Engine is the auction engine facade. All request handling goes through
// it, and its Run loop owns the batch lifecycle transitions.
type Engine struct {
	cfg *protocol.EngineConfig
	log *slog.Logger

	scheduler   *protocol.BatchScheduler
	ledger      *ledger.CollateralLedger
	commitments *CommitmentStore
	reveals     *RevealValidator
	shuffle     *auction.ShuffleEngine
	clearing    *auction.ClearingEngine
	settler     *settlement.Engine

	archive        BatchArchive
	archiveTimeout time.Duration
	metrics        *metrics.Metrics

	mu        sync.RWMutex
	orderings map[uint64][]auction.RevealedOrder
	records   map[uint64]*BatchRecord
	pending   map[uint64]struct{}
}

// New creates an engine from a validated configuration.
func New(cfg Config) (*Engine, error) {
	if cfg.Engine == nil {
		cfg.Engine = protocol.DefaultConfig()
	}
	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}
	if cfg.Log == nil {
		return nil, errors.New("engine: logger is required")
	}

	l := ledger.NewCollateralLedger()
	transferor := cfg.Transferor
	if transferor == nil {
		transferor = settlement.NewLedgerTransferor(l)
	}
	scheduler := protocol.NewBatchScheduler(cfg.Engine)
	commitments := NewCommitmentStore(cfg.Engine, scheduler, l)

	return &Engine{
		cfg:            cfg.Engine,
		log:            cfg.Log,
		scheduler:      scheduler,
		ledger:         l,
		commitments:    commitments,
		reveals:        NewRevealValidator(cfg.Engine, scheduler, commitments, l),
		shuffle:        auction.NewShuffleEngine(),
		clearing:       auction.NewClearingEngine(cfg.Engine),
		settler:        settlement.NewEngine(cfg.Engine, transferor),
		archive:        cfg.Archive,
		archiveTimeout: defaultArchiveTimeout,
		metrics:        cfg.Metrics,
		orderings:      make(map[uint64][]auction.RevealedOrder),
		records:        make(map[uint64]*BatchRecord),
		pending:        make(map[uint64]struct{}),
	}, nil
}

// Ledger exposes the collateral ledger for deposit handling and tests.
func (e *Engine) Ledger() *ledger.CollateralLedger {
	return e.ledger
}

// Scheduler exposes the batch scheduler.
func (e *Engine) Scheduler() *protocol.BatchScheduler {
	return e.scheduler
}

// EngineConfig returns the engine's immutable runtime parameters.
func (e *Engine) EngineConfig() *protocol.EngineConfig {
	return e.cfg
}

// Run opens the first batch and drives the settling pipeline until the
// context is canceled. Settlement of batch N runs concurrently with the
// commit phase of batch N+1; the scheduler pipelines the open.
//
// Scheduler transitions are treated as wakeups, not as a work queue:
// delivery is at most once, so every wakeup rescans the scheduler for
// batches that reached Settling, and the ticker bounds how long a missed
// notification can delay one.
func (e *Engine) Run(ctx context.Context) {
	transitions := e.scheduler.Subscribe(ctx)
	e.scheduler.Start(ctx)

	wake := time.NewTicker(e.cfg.RevealWindow)
	defer wake.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-transitions:
			if !ok {
				return
			}
		case <-wake.C:
		}
		e.settleDue(ctx)
		e.retryPending(ctx)
	}
}

// settleDue runs the settling pipeline for every batch sitting in
// Settling with no outcome yet. Batches whose first settlement attempt
// failed already have a record; retryPending owns those.
func (e *Engine) settleDue(ctx context.Context) {
	for _, batchID := range e.scheduler.SettlingBatches() {
		e.mu.RLock()
		_, seen := e.records[batchID]
		e.mu.RUnlock()
		if seen {
			continue
		}
		e.processSettling(ctx, batchID)
	}
}

// Commit handles an authenticated commitment submission.
func (e *Engine) Commit(signer string, req *protocol.CommitRequest) (*protocol.CommitResponse, error) {
	id, err := e.commitments.SubmitCommitment(signer, req.BatchID, req.Digest, req.Collateral, req.DeclaredNotional)
	if err != nil {
		if e.metrics != nil {
			e.metrics.CommitsRejected.Inc()
		}
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.CommitsAccepted.Inc()
	}
	return &protocol.CommitResponse{CommitmentID: id, BatchID: req.BatchID}, nil
}

// Reveal handles an authenticated reveal submission.
func (e *Engine) Reveal(signer string, req *protocol.RevealRequest) (*protocol.RevealResponse, error) {
	err := e.reveals.SubmitReveal(signer, req.CommitmentID, req.Order, req.Secret, req.Nonce, req.PoWProof)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RevealsRejected.Inc()
			if errors.Is(err, protocol.ErrInvalidReveal) {
				e.metrics.Slashes.WithLabelValues(string(AuditInvalidReveal)).Inc()
			}
		}
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.RevealsAccepted.Inc()
	}
	c, err := e.commitments.Get(req.CommitmentID)
	if err != nil {
		return nil, err
	}
	return &protocol.RevealResponse{Accepted: true, BatchID: c.BatchID}, nil
}

// Deposit credits a participant's available balance.
func (e *Engine) Deposit(participant string, req *protocol.DepositRequest) error {
	return e.ledger.Deposit(participant, req.Asset, req.Amount)
}

// BatchState returns the lifecycle state of a batch.
func (e *Engine) BatchState(batchID uint64) (protocol.BatchState, error) {
	return e.scheduler.Snapshot(batchID)
}

// ClearingOutcome returns the clearing result of a batch that reached
// settlement. Before then it reports a phase violation so callers can
// distinguish "not yet" from "no such batch".
func (e *Engine) ClearingOutcome(batchID uint64) (*auction.ClearingResult, error) {
	e.mu.RLock()
	rec, ok := e.records[batchID]
	e.mu.RUnlock()
	if ok {
		if rec.Result == nil {
			return nil, fmt.Errorf("batch %d voided: %w", batchID, protocol.ErrArithmeticOverflow)
		}
		return rec.Result, nil
	}
	state, err := e.scheduler.Snapshot(batchID)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("batch %d still in phase %s: %w", batchID, state.Phase, protocol.ErrPhaseViolation)
}

// Audit returns the slashing audit trail of a batch.
func (e *Engine) Audit(batchID uint64) []AuditRecord {
	e.mu.RLock()
	if rec, ok := e.records[batchID]; ok {
		e.mu.RUnlock()
		return rec.Audit
	}
	e.mu.RUnlock()
	return e.reveals.Audit(batchID)
}

// processSettling runs the reveal-deadline pipeline for one batch:
// shuffle the valid reveals, compute the clearing, then either settle or
// void. No-shows are slashed only once the clearing is known to be
// computable, so a voided batch returns every remaining stake in full.
func (e *Engine) processSettling(ctx context.Context, batchID uint64) {
	snapshot := e.reveals.Reveals(batchID)
	ordering := e.shuffle.DeriveOrdering(snapshot)

	result, err := e.clearing.ComputeClearing(batchID, ordering)
	if err != nil {
		e.voidBatch(ctx, batchID, err)
		return
	}

	swept := e.reveals.SweepNoShows(batchID)
	if e.metrics != nil {
		for range swept {
			e.metrics.Slashes.WithLabelValues(string(AuditNoShow)).Inc()
		}
	}
	for _, rec := range swept {
		e.log.Info("slashed no-show commitment",
			"batch", batchID, "participant", rec.Participant, "slashed", rec.Slashed,
		)
	}

	e.mu.Lock()
	e.orderings[batchID] = ordering
	e.mu.Unlock()

	e.settleBatch(ctx, batchID, result)
}

// settleBatch applies a computed clearing. A failed attempt leaves the
// result in the retry queue; the next lifecycle transition retries it.
func (e *Engine) settleBatch(ctx context.Context, batchID uint64, result *auction.ClearingResult) {
	e.mu.RLock()
	ordering := e.orderings[batchID]
	e.mu.RUnlock()

	instrs, err := e.settler.Settle(ctx, result, ordering)
	if err != nil {
		if errors.Is(err, protocol.ErrInsufficientBalance) {
			e.log.Error("settlement infeasible, participant underfunded; retrying until funds arrive",
				"batch", batchID, "err", err)
		} else {
			e.log.Error("settlement failed, queued for retry", "batch", batchID, "err", err)
		}
		if e.metrics != nil {
			e.metrics.SettlementFailures.Inc()
		}
		e.mu.Lock()
		e.records[batchID] = &BatchRecord{BatchID: batchID, Result: result, Audit: e.reveals.Audit(batchID)}
		e.pending[batchID] = struct{}{}
		e.mu.Unlock()
		return
	}

	if e.cfg.HoldCollateralUntilSettlement {
		if err := e.reveals.ReleaseRevealed(batchID); err != nil {
			e.log.Error("releasing held collateral", "batch", batchID, "err", err)
		}
	}

	if _, err := e.scheduler.AdvancePhase(batchID, false); err != nil {
		e.log.Error("closing settled batch", "batch", batchID, "err", err)
	}
	state, _ := e.scheduler.Snapshot(batchID)

	rec := &BatchRecord{
		BatchID:      batchID,
		State:        state,
		Result:       result,
		Instructions: instrs,
		Audit:        e.reveals.Audit(batchID),
	}
	e.mu.Lock()
	e.records[batchID] = rec
	delete(e.pending, batchID)
	e.mu.Unlock()

	e.persist(ctx, rec)
	e.commitments.Prune(batchID)
	e.reveals.Prune(batchID)

	if e.metrics != nil {
		e.metrics.BatchesSettled.Inc()
	}
	e.log.Info("batch settled",
		"batch", batchID, "orders", len(ordering), "transfers", len(instrs),
	)
}

// voidBatch abandons a batch whose clearing could not be computed. All
// still-locked collateral is returned in full; nobody is slashed for a
// fault no participant caused.
func (e *Engine) voidBatch(ctx context.Context, batchID uint64, cause error) {
	if err := e.reveals.ReleaseUnresolved(batchID); err != nil {
		e.log.Error("releasing collateral of voided batch", "batch", batchID, "err", err)
	}
	if e.cfg.HoldCollateralUntilSettlement {
		if err := e.reveals.ReleaseRevealed(batchID); err != nil {
			e.log.Error("releasing held collateral of voided batch", "batch", batchID, "err", err)
		}
	}
	if _, err := e.scheduler.AdvancePhase(batchID, true); err != nil {
		e.log.Error("voiding batch", "batch", batchID, "err", err)
	}
	state, _ := e.scheduler.Snapshot(batchID)

	rec := &BatchRecord{BatchID: batchID, State: state, Audit: e.reveals.Audit(batchID)}
	e.mu.Lock()
	e.records[batchID] = rec
	e.mu.Unlock()

	e.persist(ctx, rec)
	e.commitments.Prune(batchID)
	e.reveals.Prune(batchID)

	if e.metrics != nil {
		e.metrics.BatchesVoided.Inc()
	}
	e.log.Warn("batch voided", "batch", batchID, "cause", cause)
}

// retryPending re-attempts settlement of batches whose previous attempt
// failed. Replay is idempotent: the instruction set is rebuilt from the
// same clearing result, so a partial earlier failure cannot double-apply.
func (e *Engine) retryPending(ctx context.Context) {
	e.mu.RLock()
	var due []uint64
	for batchID := range e.pending {
		due = append(due, batchID)
	}
	e.mu.RUnlock()

	for _, batchID := range due {
		e.mu.RLock()
		rec := e.records[batchID]
		e.mu.RUnlock()
		if rec == nil || rec.Result == nil {
			continue
		}
		e.settleBatch(ctx, batchID, rec.Result)
	}
}

// persist archives a finished batch, best effort. The call is bounded so
// a hung archive cannot hold up settlement of the batches behind it.
func (e *Engine) persist(ctx context.Context, rec *BatchRecord) {
	if e.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, e.archiveTimeout)
	defer cancel()
	if err := e.archive.SaveBatch(ctx, rec); err != nil {
		e.log.Error("archiving batch", "batch", rec.BatchID, "err", err)
	}
}

// PoolBalance reports the liquidity pool's available balance in one
// asset. Zero protocol extraction means every fee, slash and rounding
// residue lands here and nowhere else.
func (e *Engine) PoolBalance(asset string) decimal.Decimal {
	return e.ledger.Available(ledger.PoolAccount, asset)
}

// Commitment looks up a stored commitment.
func (e *Engine) Commitment(id uuid.UUID) (*Commitment, error) {
	return e.commitments.Get(id)
}
