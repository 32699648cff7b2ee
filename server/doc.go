// Package server exposes the batch auction engine over HTTP.
//
// All mutating requests travel inside signed envelopes; the recovered
// signing key identifies the participant, so the API needs no session or
// account handshake. Read endpoints serve batch lifecycle state, clearing
// results and the slashing audit trail.
package server
