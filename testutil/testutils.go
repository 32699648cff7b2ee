package testutil

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flashbots/batchclear/crypto"
	"github.com/flashbots/batchclear/protocol"
)

// NewTestConfig creates an engine configuration suitable for tests:
// short windows, no trading fee, and the documented default slashing
// parameters. Options override individual fields.
func NewTestConfig(options ...ConfigOption) *protocol.EngineConfig {
	cfg := protocol.DefaultConfig()
	cfg.CommitWindow = 100 * time.Millisecond
	cfg.RevealWindow = 50 * time.Millisecond
	cfg.TradingFeeRate = decimal.Zero
	for _, opt := range options {
		opt(cfg)
	}
	return cfg
}

// ConfigOption customizes a test configuration.
type ConfigOption func(*protocol.EngineConfig)

// WithWindows sets the commit and reveal window durations.
func WithWindows(commit, reveal time.Duration) ConfigOption {
	return func(cfg *protocol.EngineConfig) {
		cfg.CommitWindow = commit
		cfg.RevealWindow = reveal
	}
}

// WithTradingFee sets the trading fee rate.
func WithTradingFee(rate string) ConfigOption {
	return func(cfg *protocol.EngineConfig) {
		cfg.TradingFeeRate = decimal.RequireFromString(rate)
	}
}

// WithSlashRate sets the slash rate.
func WithSlashRate(rate string) ConfigOption {
	return func(cfg *protocol.EngineConfig) {
		cfg.SlashRate = decimal.RequireFromString(rate)
	}
}

// WithNotionalCap sets the per-batch aggregate notional cap.
func WithNotionalCap(cap string) ConfigOption {
	return func(cfg *protocol.EngineConfig) {
		cfg.NotionalCap = decimal.RequireFromString(cap)
	}
}

// GenerateTestKeyPair generates a signing key pair, panicking on failure
// so fixtures stay terse.
func GenerateTestKeyPair() (crypto.PublicKey, crypto.PrivateKey) {
	pub, priv, err := crypto.GenerateKeyPair()
	if err != nil {
		panic(fmt.Sprintf("generating test key pair: %v", err))
	}
	return pub, priv
}

// RandomSecret returns a fresh commitment secret.
func RandomSecret() crypto.Secret {
	var s crypto.Secret
	if _, err := rand.Read(s[:]); err != nil {
		panic(fmt.Sprintf("reading randomness: %v", err))
	}
	return s
}

// Order builds an order payload from string-encoded decimals.
func Order(side protocol.Side, pair, quantity, limitPrice string) protocol.OrderPayload {
	return protocol.OrderPayload{
		Side:       side,
		Pair:       pair,
		Quantity:   decimal.RequireFromString(quantity),
		LimitPrice: decimal.RequireFromString(limitPrice),
	}
}

// Commitment is a fully materialized hidden order for tests: the payload
// together with the secret, nonce and digest that bind it to a batch.
type Commitment struct {
	Order  protocol.OrderPayload
	Secret crypto.Secret
	Nonce  uint64
	Digest crypto.Digest
}

// NewCommitment builds a commitment for the given order in the given
// batch, with a fresh random secret.
func NewCommitment(batchID uint64, order protocol.OrderPayload, nonce uint64) Commitment {
	secret := RandomSecret()
	return Commitment{
		Order:  order,
		Secret: secret,
		Nonce:  nonce,
		Digest: crypto.ComputeCommitmentDigest(batchID, order.CanonicalBytes(), secret, nonce),
	}
}

// CommitRequest builds the wire request for a commitment, posting
// exactly the required collateral for the order's notional.
func (c Commitment) CommitRequest(cfg *protocol.EngineConfig, batchID uint64) *protocol.CommitRequest {
	return &protocol.CommitRequest{
		BatchID:          batchID,
		Digest:           c.Digest,
		Collateral:       cfg.RequiredCollateral(c.Order.Notional()),
		DeclaredNotional: c.Order.Notional(),
	}
}

// RevealRequest builds the wire request revealing the commitment.
func (c Commitment) RevealRequest(commitmentID uuid.UUID) *protocol.RevealRequest {
	return &protocol.RevealRequest{
		CommitmentID: commitmentID,
		Order:        c.Order,
		Secret:       c.Secret,
		Nonce:        c.Nonce,
	}
}
