package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flashbots/batchclear/crypto"
	"github.com/flashbots/batchclear/ledger"
	"github.com/flashbots/batchclear/protocol"
)

// Commitment is a stored hidden order. Only the digest is held before the
// reveal phase; the store has nothing to leak.
type Commitment struct {
	ID               uuid.UUID
	BatchID          uint64
	Participant      string
	Digest           crypto.Digest
	Collateral       decimal.Decimal
	DeclaredNotional decimal.Decimal
	SubmittedAt      time.Time

	// resolved flips when the commitment is consumed by a valid reveal,
	// slashed for an invalid one, or swept as a no-show. Guarded by the
	// participant lock of its owner.
	resolved bool
}

// CommitmentStore records hidden order commitments for open batches.
// Submissions from distinct participants proceed without contention; a
// single participant's submissions are serialized by a per-participant
// lock so the one-live-commitment invariant holds under concurrency.
type CommitmentStore struct {
	cfg       *protocol.EngineConfig
	scheduler *protocol.BatchScheduler
	ledger    *ledger.CollateralLedger

	mu      sync.RWMutex
	byID    map[uuid.UUID]*Commitment
	byBatch map[uint64]map[string]*Commitment

	lockMu           sync.Mutex
	participantLocks map[string]*sync.Mutex
}

// NewCommitmentStore creates a commitment store.
func NewCommitmentStore(cfg *protocol.EngineConfig, scheduler *protocol.BatchScheduler, l *ledger.CollateralLedger) *CommitmentStore {
	return &CommitmentStore{
		cfg:              cfg,
		scheduler:        scheduler,
		ledger:           l,
		byID:             make(map[uuid.UUID]*Commitment),
		byBatch:          make(map[uint64]map[string]*Commitment),
		participantLocks: make(map[string]*sync.Mutex),
	}
}

// participantLock returns the serialization lock for one participant.
func (s *CommitmentStore) participantLock(participant string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	mu, ok := s.participantLocks[participant]
	if !ok {
		mu = &sync.Mutex{}
		s.participantLocks[participant] = mu
	}
	return mu
}

// SubmitCommitment stores a hidden order commitment, locking its
// collateral atomically with insertion. The collateral requirement is
// identical for every participant: max(flat minimum, ratio × declared
// notional). Rejections leave ledger state untouched.
func (s *CommitmentStore) SubmitCommitment(participant string, batchID uint64, digest crypto.Digest, collateral, declaredNotional decimal.Decimal) (uuid.UUID, error) {
	if !s.scheduler.IsAcceptingCommitments(batchID) {
		return uuid.Nil, fmt.Errorf("batch %d commit: %w", batchID, protocol.ErrPhaseViolation)
	}
	if declaredNotional.IsNegative() {
		return uuid.Nil, fmt.Errorf("batch %d commit: declared notional must not be negative", batchID)
	}
	if collateral.LessThan(s.cfg.RequiredCollateral(declaredNotional)) {
		return uuid.Nil, fmt.Errorf("batch %d commit: need %s, posted %s: %w",
			batchID, s.cfg.RequiredCollateral(declaredNotional), collateral, protocol.ErrInsufficientCollateral)
	}

	mu := s.participantLock(participant)
	mu.Lock()
	defer mu.Unlock()

	s.mu.RLock()
	_, dup := s.byBatch[batchID][participant]
	s.mu.RUnlock()
	if dup {
		return uuid.Nil, fmt.Errorf("batch %d commit by %s: %w", batchID, participant, protocol.ErrDuplicateCommitment)
	}

	if err := s.ledger.Lock(participant, s.cfg.CollateralAsset, collateral); err != nil {
		return uuid.Nil, fmt.Errorf("batch %d commit by %s: %w", batchID, participant, err)
	}

	c := &Commitment{
		ID:               uuid.New(),
		BatchID:          batchID,
		Participant:      participant,
		Digest:           digest,
		Collateral:       collateral,
		DeclaredNotional: declaredNotional,
		SubmittedAt:      time.Now(),
	}

	s.mu.Lock()
	if s.byBatch[batchID] == nil {
		s.byBatch[batchID] = make(map[string]*Commitment)
	}
	s.byBatch[batchID][participant] = c
	s.byID[c.ID] = c
	s.mu.Unlock()

	return c.ID, nil
}

// Get returns a commitment by identifier.
func (s *CommitmentStore) Get(id uuid.UUID) (*Commitment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, protocol.ErrUnknownCommitment
	}
	return c, nil
}

// BatchCommitments returns all commitments of a batch.
func (s *CommitmentStore) BatchCommitments(batchID uint64) []*Commitment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Commitment, 0, len(s.byBatch[batchID]))
	for _, c := range s.byBatch[batchID] {
		out = append(out, c)
	}
	return out
}

// Prune drops a closed batch's commitments from the index.
func (s *CommitmentStore) Prune(batchID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.byBatch[batchID] {
		delete(s.byID, c.ID)
	}
	delete(s.byBatch, batchID)
}
