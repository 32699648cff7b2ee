package protocol

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flashbots/batchclear/crypto"
)

// Side distinguishes buy and sell orders.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Valid reports whether the side is one of the two known values.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// OrderPayload is the cleartext an order commitment binds to. It never
// crosses the wire before the reveal phase; during commit only its digest
// does.
type OrderPayload struct {
	// Side is buy or sell.
	Side Side `json:"side"`

	// Pair is the asset pair, e.g. "X/USDC". Base and quote are separated
	// by a slash.
	Pair string `json:"pair"`

	// Quantity is the base-asset amount.
	Quantity decimal.Decimal `json:"quantity"`

	// LimitPrice bounds the acceptable clearing price: a maximum for buys,
	// a minimum for sells.
	LimitPrice decimal.Decimal `json:"limit_price"`

	// FeeBid is an optional priority-fee bid in the quote asset. It buys
	// nothing in the price computation; it funds the liquidity pool.
	FeeBid decimal.Decimal `json:"fee_bid"`
}

// Validate checks payload well-formedness.
func (o *OrderPayload) Validate() error {
	if !o.Side.Valid() {
		return errors.New("side must be buy or sell")
	}
	base, quote, ok := strings.Cut(o.Pair, "/")
	if !ok || base == "" || quote == "" {
		return errors.New(`pair must have the form "BASE/QUOTE"`)
	}
	if !o.Quantity.IsPositive() {
		return errors.New("quantity must be positive")
	}
	if !o.LimitPrice.IsPositive() {
		return errors.New("limit price must be positive")
	}
	if o.FeeBid.IsNegative() {
		return errors.New("fee bid must not be negative")
	}
	return nil
}

// CanonicalBytes produces the deterministic encoding hashed into the
// commitment digest. Decimals are rendered in their canonical string form;
// every field is length-prefixed so no two payloads share an encoding.
func (o *OrderPayload) CanonicalBytes() []byte {
	buf := make([]byte, 0, 96)
	buf = crypto.AppendLenPrefixed(buf, []byte(o.Side))
	buf = crypto.AppendLenPrefixed(buf, []byte(o.Pair))
	buf = crypto.AppendLenPrefixed(buf, []byte(o.Quantity.String()))
	buf = crypto.AppendLenPrefixed(buf, []byte(o.LimitPrice.String()))
	buf = crypto.AppendLenPrefixed(buf, []byte(o.FeeBid.String()))
	return buf
}

// Notional returns the quote value of the payload at its limit price.
func (o *OrderPayload) Notional() decimal.Decimal {
	return o.Quantity.Mul(o.LimitPrice)
}

// CommitRequest submits a hidden order commitment. Sent inside a Signed
// envelope; the signer becomes the committing participant.
type CommitRequest struct {
	// BatchID must name the batch currently in its commit phase.
	BatchID uint64 `json:"batch_id"`

	// Digest commits to (order payload, secret, nonce).
	Digest crypto.Digest `json:"digest"`

	// Collateral is the amount to lock, in the pool's collateral asset.
	Collateral decimal.Decimal `json:"collateral"`

	// DeclaredNotional is the maximum quote notional the hidden order may
	// carry. The uniform collateral requirement is computed from it, and a
	// reveal exceeding it is invalid.
	DeclaredNotional decimal.Decimal `json:"declared_notional"`
}

// CommitResponse acknowledges a stored commitment.
type CommitResponse struct {
	CommitmentID uuid.UUID `json:"commitment_id"`
	BatchID      uint64    `json:"batch_id"`
}

// RevealRequest discloses the payload behind a commitment. Sent inside a
// Signed envelope; the signer must match the committing participant.
type RevealRequest struct {
	CommitmentID uuid.UUID     `json:"commitment_id"`
	Order        OrderPayload  `json:"order"`
	Secret       crypto.Secret `json:"secret"`
	Nonce        uint64        `json:"nonce"`

	// PoWProof optionally substitutes proof of work for the fee bid.
	PoWProof *crypto.PoWProof `json:"pow_proof,omitempty"`
}

// RevealResponse acknowledges an accepted reveal.
type RevealResponse struct {
	Accepted bool   `json:"accepted"`
	BatchID  uint64 `json:"batch_id"`
}

// DepositRequest credits a participant's available balance. Deposits stand
// in for the external token-transfer collaborator on the way in.
type DepositRequest struct {
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}
