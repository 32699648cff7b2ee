package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flashbots/batchclear/auction"
	"github.com/flashbots/batchclear/crypto"
	"github.com/flashbots/batchclear/ledger"
	"github.com/flashbots/batchclear/protocol"
)

// AuditEvent classifies a slashing entry in the audit trail.
type AuditEvent string

const (
	AuditInvalidReveal AuditEvent = "invalid_reveal"
	AuditNoShow        AuditEvent = "no_show"
)

// AuditRecord is one slashing event. Every slash is recorded with enough
// detail for an operator to reconstruct why collateral moved.
type AuditRecord struct {
	BatchID      uint64          `json:"batch_id"`
	CommitmentID uuid.UUID       `json:"commitment_id"`
	Participant  string          `json:"participant"`
	Event        AuditEvent      `json:"event"`
	Slashed      decimal.Decimal `json:"slashed"`
	Returned     decimal.Decimal `json:"returned"`
	At           time.Time       `json:"at"`
}

// RevealValidator checks order reveals against their commitments and
// applies the slashing rules for reveals that do not check out.
type RevealValidator struct {
	cfg       *protocol.EngineConfig
	scheduler *protocol.BatchScheduler
	store     *CommitmentStore
	ledger    *ledger.CollateralLedger

	mu      sync.RWMutex
	reveals map[uint64][]auction.RevealedOrder
	audit   map[uint64][]AuditRecord
}

// NewRevealValidator creates a reveal validator.
func NewRevealValidator(cfg *protocol.EngineConfig, scheduler *protocol.BatchScheduler, store *CommitmentStore, l *ledger.CollateralLedger) *RevealValidator {
	return &RevealValidator{
		cfg:       cfg,
		scheduler: scheduler,
		store:     store,
		ledger:    l,
		reveals:   make(map[uint64][]auction.RevealedOrder),
		audit:     make(map[uint64][]AuditRecord),
	}
}

// SubmitReveal validates a reveal against its stored commitment. A reveal
// whose recomputed digest matches is accepted and releases the reveal
// obligation; one that provably mismatches is slashed on the spot. Errors
// that do not prove misbehavior, such as a proof-of-work below the
// minimum difficulty, reject the request without consuming the
// commitment, so the participant can retry within the reveal window.
func (v *RevealValidator) SubmitReveal(signer string, commitmentID uuid.UUID, order protocol.OrderPayload, secret crypto.Secret, nonce uint64, pow *crypto.PoWProof) error {
	c, err := v.store.Get(commitmentID)
	if err != nil {
		return err
	}
	if c.Participant != signer {
		return fmt.Errorf("commitment %s: %w", commitmentID, protocol.ErrNotOwnCommitment)
	}
	if !v.scheduler.IsAcceptingReveals(c.BatchID) {
		return fmt.Errorf("batch %d reveal: %w", c.BatchID, protocol.ErrPhaseViolation)
	}

	mu := v.store.participantLock(c.Participant)
	mu.Lock()
	defer mu.Unlock()

	if c.resolved {
		return fmt.Errorf("commitment %s already consumed: %w", commitmentID, protocol.ErrInvalidReveal)
	}

	if pow != nil {
		if pow.Difficulty < v.cfg.MinPoWDifficulty {
			return fmt.Errorf("proof difficulty %d below minimum %d: %w",
				pow.Difficulty, v.cfg.MinPoWDifficulty, protocol.ErrProofDifficultyTooLow)
		}
		if err := crypto.VerifyPoW(c.Digest, *pow); err != nil {
			return fmt.Errorf("commitment %s: %w", commitmentID, err)
		}
	}

	if err := order.Validate(); err != nil {
		v.slash(c, AuditInvalidReveal)
		return fmt.Errorf("commitment %s: %v: %w", commitmentID, err, protocol.ErrInvalidReveal)
	}

	digest := crypto.ComputeCommitmentDigest(c.BatchID, order.CanonicalBytes(), secret, nonce)
	if !digest.Equal(c.Digest) {
		v.slash(c, AuditInvalidReveal)
		return fmt.Errorf("commitment %s: digest mismatch: %w", commitmentID, protocol.ErrInvalidReveal)
	}

	if order.Notional().GreaterThan(c.DeclaredNotional) {
		v.slash(c, AuditInvalidReveal)
		return fmt.Errorf("commitment %s: revealed notional exceeds declared: %w", commitmentID, protocol.ErrInvalidReveal)
	}

	c.resolved = true
	if !v.cfg.HoldCollateralUntilSettlement {
		if err := v.ledger.Unlock(c.Participant, v.cfg.CollateralAsset, c.Collateral); err != nil {
			return fmt.Errorf("commitment %s: release collateral: %w", commitmentID, err)
		}
	}

	v.mu.Lock()
	v.reveals[c.BatchID] = append(v.reveals[c.BatchID], auction.RevealedOrder{
		CommitmentID: c.ID,
		Participant:  c.Participant,
		Digest:       c.Digest,
		Secret:       secret,
		Payload:      order,
		Collateral:   c.Collateral,
		FeePaidByPoW: pow != nil,
	})
	v.mu.Unlock()
	return nil
}

// slash burns the configured fraction of a commitment's collateral into
// the pool, returns the remainder, and records the event.
func (v *RevealValidator) slash(c *Commitment, event AuditEvent) {
	c.resolved = true
	slashed, err := v.ledger.Slash(c.Participant, v.cfg.CollateralAsset, c.Collateral, v.cfg.SlashRate)
	if err != nil {
		// Locked collateral cannot go missing between commit and slash;
		// if it somehow did, record a zero-amount entry rather than drop
		// the event.
		slashed = decimal.Zero
	}
	v.mu.Lock()
	v.audit[c.BatchID] = append(v.audit[c.BatchID], AuditRecord{
		BatchID:      c.BatchID,
		CommitmentID: c.ID,
		Participant:  c.Participant,
		Event:        event,
		Slashed:      slashed,
		Returned:     c.Collateral.Sub(slashed),
		At:           time.Now(),
	})
	v.mu.Unlock()
}

// SweepNoShows slashes every commitment of the batch that was never
// consumed by a reveal. Called once the reveal deadline is past.
func (v *RevealValidator) SweepNoShows(batchID uint64) []AuditRecord {
	var swept []AuditRecord
	for _, c := range v.store.BatchCommitments(batchID) {
		mu := v.store.participantLock(c.Participant)
		mu.Lock()
		if !c.resolved {
			v.slash(c, AuditNoShow)
		}
		mu.Unlock()
	}
	v.mu.RLock()
	for _, rec := range v.audit[batchID] {
		if rec.Event == AuditNoShow {
			swept = append(swept, rec)
		}
	}
	v.mu.RUnlock()
	return swept
}

// ReleaseUnresolved returns every still-locked commitment's collateral in
// full, without slashing. Used when a batch is voided.
func (v *RevealValidator) ReleaseUnresolved(batchID uint64) error {
	for _, c := range v.store.BatchCommitments(batchID) {
		mu := v.store.participantLock(c.Participant)
		mu.Lock()
		if !c.resolved {
			c.resolved = true
			if err := v.ledger.Unlock(c.Participant, v.cfg.CollateralAsset, c.Collateral); err != nil {
				mu.Unlock()
				return err
			}
		}
		mu.Unlock()
	}
	return nil
}

// ReleaseRevealed returns the collateral of every accepted reveal in the
// batch. Only meaningful when collateral is held until settlement.
func (v *RevealValidator) ReleaseRevealed(batchID uint64) error {
	v.mu.RLock()
	orders := v.reveals[batchID]
	v.mu.RUnlock()
	for _, o := range orders {
		if err := v.ledger.Unlock(o.Participant, v.cfg.CollateralAsset, o.Collateral); err != nil {
			return err
		}
	}
	return nil
}

// Reveals returns a snapshot of the batch's accepted reveals.
func (v *RevealValidator) Reveals(batchID uint64) []auction.RevealedOrder {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]auction.RevealedOrder, len(v.reveals[batchID]))
	copy(out, v.reveals[batchID])
	return out
}

// Audit returns the batch's slashing audit trail.
func (v *RevealValidator) Audit(batchID uint64) []AuditRecord {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]AuditRecord, len(v.audit[batchID]))
	copy(out, v.audit[batchID])
	return out
}

// Prune drops a closed batch's reveal records.
func (v *RevealValidator) Prune(batchID uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.reveals, batchID)
}
