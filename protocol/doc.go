// Package protocol defines the shared vocabulary of the batch auction
// engine: the immutable engine configuration, the error taxonomy, the batch
// phase state machine and its wall-clock scheduler, and the signed wire
// messages exchanged with participants.
//
// # Batch lifecycle
//
// A batch moves one-way through Commit → Reveal → Settling → Closed. During
// Commit the engine accepts hidden order commitments; during Reveal it
// accepts the matching disclosures; Settling covers clearing-price
// computation and transfer application; Closed batches are archived. A
// batch that hits an arithmetic fault during clearing is Voided instead:
// no settlement is attempted and all collateral is returned unslashed.
//
// Phase transitions are driven purely by configured wall-clock deadlines.
// No participant action can advance or stall a phase. Batches pipeline:
// the Settling work of batch N overlaps the Commit window of batch N+1,
// but at most one batch is ever in Commit or Reveal.
package protocol
