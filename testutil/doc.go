// Package testutil provides fixtures for testing the auction engine:
// short-window configurations, key pairs, order payloads, and fully
// materialized commitments with their secrets and digests.
package testutil
