package protocol

import (
	"fmt"
	"time"
)

// Phase is the lifecycle stage of a batch. Transitions are monotonic and
// one-directional; a batch never returns to an earlier phase.
type Phase int

const (
	// PhaseCommit accepts hidden order commitments.
	PhaseCommit Phase = iota

	// PhaseReveal accepts disclosures matching prior commitments.
	PhaseReveal

	// PhaseSettling covers shuffle, clearing and transfer application.
	PhaseSettling

	// PhaseClosed is the terminal state of a settled batch.
	PhaseClosed

	// PhaseVoided is the terminal state of a batch aborted by an
	// arithmetic fault. All collateral is returned unslashed.
	PhaseVoided
)

func (p Phase) String() string {
	switch p {
	case PhaseCommit:
		return "commit"
	case PhaseReveal:
		return "reveal"
	case PhaseSettling:
		return "settling"
	case PhaseClosed:
		return "closed"
	case PhaseVoided:
		return "voided"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText implements encoding.TextMarshaler for JSON fields.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "commit":
		*p = PhaseCommit
	case "reveal":
		*p = PhaseReveal
	case "settling":
		*p = PhaseSettling
	case "closed":
		*p = PhaseClosed
	case "voided":
		*p = PhaseVoided
	default:
		return fmt.Errorf("unknown phase %q", text)
	}
	return nil
}

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool {
	return p == PhaseClosed || p == PhaseVoided
}

// CanAdvanceTo reports whether a transition from p to next is legal.
// Voiding is only reachable from Settling, where the clearing computation
// runs; every other transition is the single forward step.
func (p Phase) CanAdvanceTo(next Phase) bool {
	switch p {
	case PhaseCommit:
		return next == PhaseReveal
	case PhaseReveal:
		return next == PhaseSettling
	case PhaseSettling:
		return next == PhaseClosed || next == PhaseVoided
	default:
		return false
	}
}

// BatchState is the externally visible snapshot of a batch: its phase and
// the wall-clock deadlines that bound participant action.
type BatchState struct {
	BatchID        uint64    `json:"batch_id"`
	Phase          Phase     `json:"phase"`
	OpenedAt       time.Time `json:"opened_at"`
	CommitDeadline time.Time `json:"commit_deadline"`
	RevealDeadline time.Time `json:"reveal_deadline"`
}

// AcceptingCommitments reports whether the batch accepts commitments at t.
func (s BatchState) AcceptingCommitments(t time.Time) bool {
	return s.Phase == PhaseCommit && t.Before(s.CommitDeadline)
}

// AcceptingReveals reports whether the batch accepts reveals at t.
func (s BatchState) AcceptingReveals(t time.Time) bool {
	return s.Phase == PhaseReveal && t.Before(s.RevealDeadline)
}
