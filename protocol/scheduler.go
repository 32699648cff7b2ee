package protocol

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Transition notifies subscribers that a batch entered a new phase.
type Transition struct {
	BatchID uint64
	Phase   Phase
}

type subscriber struct {
	ctx context.Context
	ch  chan Transition
}

// BatchScheduler drives batches through Commit → Reveal → Settling →
// Closed on the configured wall-clock cadence. Exactly one batch is in
// Commit or Reveal at any time; when that batch reaches Settling the next
// one opens immediately, so settlement of batch N overlaps the commit
// window of batch N+1.
//
// Deadline expiry is the only thing that moves a batch out of Commit or
// Reveal. The Settling → Closed (or Voided) step is completion-driven and
// reported by the settlement pipeline via AdvancePhase.
type BatchScheduler struct {
	mu          sync.RWMutex
	cfg         *EngineConfig
	nextID      uint64
	current     uint64
	batches     map[uint64]*BatchState
	subscribers []subscriber
	started     *atomic.Bool

	// now is replaceable for tests.
	now func() time.Time
}

// NewBatchScheduler creates a scheduler for the given pool configuration.
func NewBatchScheduler(cfg *EngineConfig) *BatchScheduler {
	return &BatchScheduler{
		cfg:     cfg,
		batches: make(map[uint64]*BatchState),
		started: &atomic.Bool{},
		now:     time.Now,
	}
}

// OpenBatch creates the next batch in its commit phase and returns its
// identifier. Batch identifiers are a monotonic sequence.
func (s *BatchScheduler) OpenBatch() uint64 {
	s.mu.Lock()
	id, state := s.openBatchLocked()
	s.notifyLocked(Transition{BatchID: id, Phase: state.Phase})
	s.mu.Unlock()
	return id
}

func (s *BatchScheduler) openBatchLocked() (uint64, *BatchState) {
	id := s.nextID
	s.nextID++

	openedAt := s.now()
	state := &BatchState{
		BatchID:        id,
		Phase:          PhaseCommit,
		OpenedAt:       openedAt,
		CommitDeadline: openedAt.Add(s.cfg.CommitWindow),
		RevealDeadline: openedAt.Add(s.cfg.CommitWindow + s.cfg.RevealWindow),
	}
	s.batches[id] = state
	s.current = id
	return id, state
}

// Snapshot returns the state of a batch.
func (s *BatchScheduler) Snapshot(batchID uint64) (BatchState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.batches[batchID]
	if !ok {
		return BatchState{}, ErrUnknownBatch
	}
	return *state, nil
}

// CurrentBatch returns the identifier of the batch in Commit or Reveal.
func (s *BatchScheduler) CurrentBatch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// IsAcceptingCommitments reports whether the batch accepts commitments now.
func (s *BatchScheduler) IsAcceptingCommitments(batchID uint64) bool {
	state, err := s.Snapshot(batchID)
	return err == nil && state.AcceptingCommitments(s.now())
}

// IsAcceptingReveals reports whether the batch accepts reveals now.
func (s *BatchScheduler) IsAcceptingReveals(batchID uint64) bool {
	state, err := s.Snapshot(batchID)
	return err == nil && state.AcceptingReveals(s.now())
}

// AdvancePhase moves a batch one step forward and returns the new phase.
// The voided flag selects Voided over Closed when leaving Settling.
// Illegal transitions return ErrPhaseViolation and change nothing.
func (s *BatchScheduler) AdvancePhase(batchID uint64, voided bool) (Phase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advancePhaseLocked(batchID, voided)
}

func (s *BatchScheduler) advancePhaseLocked(batchID uint64, voided bool) (Phase, error) {
	state, ok := s.batches[batchID]
	if !ok {
		return 0, ErrUnknownBatch
	}

	var next Phase
	switch state.Phase {
	case PhaseCommit:
		next = PhaseReveal
	case PhaseReveal:
		next = PhaseSettling
	case PhaseSettling:
		next = PhaseClosed
		if voided {
			next = PhaseVoided
		}
	default:
		return state.Phase, ErrPhaseViolation
	}
	if !state.Phase.CanAdvanceTo(next) {
		return state.Phase, ErrPhaseViolation
	}
	state.Phase = next

	// Pipeline: the moment nothing is in Commit or Reveal, open the next
	// batch so the commit window of N+1 overlaps the settling of N.
	if next == PhaseSettling && s.current == batchID {
		id, opened := s.openBatchLocked()
		s.notifyLocked(Transition{BatchID: id, Phase: opened.Phase})
	}

	s.notifyLocked(Transition{BatchID: batchID, Phase: next})
	return next, nil
}

// SettlingBatches returns, in ascending order, every batch currently in
// the Settling phase. Transition delivery is at most once, so consumers
// driving settlement scan this instead of trusting one notification per
// batch.
func (s *BatchScheduler) SettlingBatches() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []uint64
	for id, state := range s.batches {
		if state.Phase == PhaseSettling {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Subscribe returns a channel of phase transitions. The channel is closed
// when ctx is done. Slow subscribers miss transitions rather than blocking
// the scheduler.
func (s *BatchScheduler) Subscribe(ctx context.Context) <-chan Transition {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Transition, 16)
	s.subscribers = append(s.subscribers, subscriber{ctx, ch})
	return ch
}

func (s *BatchScheduler) notifyLocked(tr Transition) {
	toRemove := []int{}
	for i, sub := range s.subscribers {
		select {
		case <-sub.ctx.Done():
			close(sub.ch)
			toRemove = append(toRemove, i)
		case sub.ch <- tr:
		default:
			// Skip if the channel is full.
		}
	}

	slices.Reverse(toRemove)
	for _, i := range toRemove {
		s.subscribers = slices.Delete(s.subscribers, i, i+1)
	}
}

// Start opens the first batch and begins deadline-driven advancement.
// Returns immediately; progression runs until ctx is done.
func (s *BatchScheduler) Start(ctx context.Context) {
	if s.started.Swap(true) {
		return
	}

	s.OpenBatch()

	go func() {
		for {
			deadline, ok := s.nextDeadline()
			if !ok {
				// Nothing in Commit or Reveal; should not happen while
				// running, but do not spin if it does.
				deadline = s.now().Add(s.cfg.CommitWindow)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Until(deadline)):
				s.advanceDue()
			}
		}
	}()
}

// nextDeadline returns the next wall-clock instant at which the current
// batch must leave its phase.
func (s *BatchScheduler) nextDeadline() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.batches[s.current]
	if !ok {
		return time.Time{}, false
	}
	switch state.Phase {
	case PhaseCommit:
		return state.CommitDeadline, true
	case PhaseReveal:
		return state.RevealDeadline, true
	default:
		return time.Time{}, false
	}
}

// advanceDue advances the current batch past any expired deadlines.
func (s *BatchScheduler) advanceDue() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	state, ok := s.batches[s.current]
	if !ok {
		return
	}
	if state.Phase == PhaseCommit && !now.Before(state.CommitDeadline) {
		s.advancePhaseLocked(state.BatchID, false) //nolint:errcheck
	}
	if state.Phase == PhaseReveal && !now.Before(state.RevealDeadline) {
		s.advancePhaseLocked(state.BatchID, false) //nolint:errcheck
	}
}
