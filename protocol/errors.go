package protocol

import "errors"

// Validation rejections leave no trace in ledger state and are surfaced to
// the caller synchronously. Slashing outcomes mutate the ledger and are
// additionally recorded in the batch audit trail.
var (
	// ErrPhaseViolation is returned for an operation attempted outside its
	// valid batch phase. The operation is rejected without side effects.
	ErrPhaseViolation = errors.New("operation outside its batch phase window")

	// ErrDuplicateCommitment is returned when a participant already has a
	// live commitment in the open batch.
	ErrDuplicateCommitment = errors.New("participant already committed in this batch")

	// ErrInsufficientCollateral is returned when the posted collateral is
	// below the uniform requirement.
	ErrInsufficientCollateral = errors.New("posted collateral below uniform requirement")

	// ErrInvalidReveal is returned when a revealed payload does not
	// reproduce the stored commitment digest. The commitment's collateral
	// is slashed at the uniform rate.
	ErrInvalidReveal = errors.New("reveal does not match commitment digest")

	// ErrNoShow marks a commitment whose reveal never arrived before the
	// deadline. Treated identically to an invalid reveal so that
	// commit-without-reveal is not a free information-gathering strategy.
	ErrNoShow = errors.New("commitment was never revealed")

	// ErrSettlementFailed marks a transient settlement fault. The batch is
	// retried on the next scheduler tick with the identical, already
	// computed clearing result; price discovery is never re-run.
	ErrSettlementFailed = errors.New("settlement could not be applied")

	// ErrArithmeticOverflow is a fatal per-batch fault in the clearing
	// computation. The batch is voided and all collateral returned
	// unslashed, since no participant caused the fault.
	ErrArithmeticOverflow = errors.New("clearing computation exceeded arithmetic bounds")

	// ErrUnknownBatch is returned for an identifier the engine has no
	// record of.
	ErrUnknownBatch = errors.New("unknown batch")

	// ErrUnknownCommitment is returned when a reveal references a
	// commitment the engine has no record of.
	ErrUnknownCommitment = errors.New("unknown commitment")

	// ErrNotOwnCommitment is returned when a reveal is signed by a key
	// other than the one that committed.
	ErrNotOwnCommitment = errors.New("reveal signer does not own the commitment")

	// ErrInsufficientBalance is returned when an account cannot cover a
	// requested lock or transfer.
	ErrInsufficientBalance = errors.New("insufficient available balance")

	// ErrProofDifficultyTooLow rejects a proof-of-work fee substitute whose
	// claimed difficulty is below the pool's uniform minimum.
	ErrProofDifficultyTooLow = errors.New("proof difficulty below pool minimum")
)
