package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *EngineConfig {
	cfg := DefaultConfig()
	cfg.CommitWindow = 80 * time.Millisecond
	cfg.RevealWindow = 20 * time.Millisecond
	return cfg
}

func TestScheduler_PhaseSequence(t *testing.T) {
	s := NewBatchScheduler(testConfig())
	id := s.OpenBatch()

	state, err := s.Snapshot(id)
	require.NoError(t, err)
	assert.Equal(t, PhaseCommit, state.Phase)
	assert.Equal(t, state.OpenedAt.Add(80*time.Millisecond), state.CommitDeadline)
	assert.Equal(t, state.OpenedAt.Add(100*time.Millisecond), state.RevealDeadline)

	phase, err := s.AdvancePhase(id, false)
	require.NoError(t, err)
	assert.Equal(t, PhaseReveal, phase)

	phase, err = s.AdvancePhase(id, false)
	require.NoError(t, err)
	assert.Equal(t, PhaseSettling, phase)

	phase, err = s.AdvancePhase(id, false)
	require.NoError(t, err)
	assert.Equal(t, PhaseClosed, phase)

	// Terminal states never advance.
	_, err = s.AdvancePhase(id, false)
	assert.ErrorIs(t, err, ErrPhaseViolation)
}

func TestScheduler_VoidOnlyFromSettling(t *testing.T) {
	s := NewBatchScheduler(testConfig())
	id := s.OpenBatch()

	s.AdvancePhase(id, false)
	s.AdvancePhase(id, false)

	phase, err := s.AdvancePhase(id, true)
	require.NoError(t, err)
	assert.Equal(t, PhaseVoided, phase)
}

func TestScheduler_PipelinesNextBatch(t *testing.T) {
	s := NewBatchScheduler(testConfig())
	id := s.OpenBatch()

	s.AdvancePhase(id, false)
	assert.Equal(t, id, s.CurrentBatch())

	// Entering Settling must open the next commit window immediately.
	s.AdvancePhase(id, false)
	next := s.CurrentBatch()
	assert.Equal(t, id+1, next)
	assert.True(t, s.IsAcceptingCommitments(next))
	assert.False(t, s.IsAcceptingCommitments(id))
}

func TestScheduler_SettlingBatchesAccumulate(t *testing.T) {
	s := NewBatchScheduler(testConfig())
	assert.Empty(t, s.SettlingBatches())

	// Park three consecutive batches in Settling without closing any.
	first := s.OpenBatch()
	for i := 0; i < 3; i++ {
		id := s.CurrentBatch()
		s.AdvancePhase(id, false)
		s.AdvancePhase(id, false)
	}
	assert.Equal(t, []uint64{first, first + 1, first + 2}, s.SettlingBatches())

	// Closing one removes it from the scan; the rest stay due.
	_, err := s.AdvancePhase(first+1, false)
	require.NoError(t, err)
	assert.Equal(t, []uint64{first, first + 2}, s.SettlingBatches())
}

func TestScheduler_AcceptanceWindows(t *testing.T) {
	now := time.Now()
	s := NewBatchScheduler(testConfig())
	s.now = func() time.Time { return now }

	id := s.OpenBatch()
	assert.True(t, s.IsAcceptingCommitments(id))
	assert.False(t, s.IsAcceptingReveals(id))

	// Past the commit deadline the window closes even before the phase
	// transition fires.
	now = now.Add(81 * time.Millisecond)
	assert.False(t, s.IsAcceptingCommitments(id))

	s.AdvancePhase(id, false)
	assert.True(t, s.IsAcceptingReveals(id))

	now = now.Add(21 * time.Millisecond)
	assert.False(t, s.IsAcceptingReveals(id))
}

func TestScheduler_SubscribersSeeTransitions(t *testing.T) {
	s := NewBatchScheduler(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Subscribe(ctx)
	id := s.OpenBatch()
	s.AdvancePhase(id, false)
	s.AdvancePhase(id, false)

	seen := []Transition{}
	for len(seen) < 4 {
		select {
		case tr := <-ch:
			seen = append(seen, tr)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d transitions", len(seen))
		}
	}

	assert.Equal(t, Transition{id, PhaseCommit}, seen[0])
	assert.Equal(t, Transition{id + 1, PhaseCommit}, seen[2])
	assert.Equal(t, Transition{id, PhaseSettling}, seen[3])
}

func TestScheduler_DeadlineDrivenAdvance(t *testing.T) {
	s := NewBatchScheduler(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	id := s.CurrentBatch()

	require.Eventually(t, func() bool {
		state, err := s.Snapshot(id)
		return err == nil && state.Phase == PhaseSettling
	}, time.Second, 5*time.Millisecond)

	// The follow-on batch must already be committing.
	assert.Equal(t, id+1, s.CurrentBatch())
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.ProtocolFeeShare = cfg.SlashRate
	assert.Error(t, cfg.Validate(), "non-zero protocol extraction must be rejected")

	cfg = DefaultConfig()
	cfg.CommitWindow = 0
	assert.Error(t, cfg.Validate())
}
