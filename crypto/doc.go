// Package crypto provides the cryptographic primitives used by the batch
// auction engine: Ed25519 identity keys and signatures, the one-way
// commitment digest that hides order content until the reveal window, and
// verification of proof-of-work fee substitutes.
//
// Participants are identified by their Ed25519 public keys. The wallet
// layer that holds private keys and produces request signatures is an
// external collaborator; this package only defines the key and signature
// types it exchanges with the engine.
package crypto
