package protocol

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// EngineConfig carries the protocol-level constants of one auction pool.
// The values are uniform across all participants and immutable at runtime:
// a config is validated once at construction and never mutated, so several
// pools can run side by side with different but internally uniform
// parameters.
type EngineConfig struct {
	// CommitWindow is the duration of a batch's commitment phase.
	CommitWindow time.Duration `json:"commit_window,string"`

	// RevealWindow is the duration of a batch's reveal phase.
	RevealWindow time.Duration `json:"reveal_window,string"`

	// CollateralRatio is the fraction of a commitment's declared maximum
	// notional that must be posted as collateral.
	CollateralRatio decimal.Decimal `json:"collateral_ratio"`

	// MinCollateral is the flat uniform collateral floor. The requirement
	// for a commitment is max(MinCollateral, CollateralRatio * notional).
	MinCollateral decimal.Decimal `json:"min_collateral"`

	// SlashRate is the fraction of locked collateral forfeited on an
	// invalid or missing reveal.
	SlashRate decimal.Decimal `json:"slash_rate"`

	// ProtocolFeeShare is the operator's share of slashed value and trading
	// fees. Fixed at zero: all value flows to honest participants and
	// liquidity providers.
	ProtocolFeeShare decimal.Decimal `json:"protocol_fee_share"`

	// TradingFeeRate is the per-fill fee charged on matched quote volume
	// and distributed among liquidity providers.
	TradingFeeRate decimal.Decimal `json:"trading_fee_rate"`

	// MinPoWDifficulty is the minimum accepted difficulty, in leading zero
	// bits, for a proof-of-work fee substitute.
	MinPoWDifficulty uint32 `json:"min_pow_difficulty"`

	// NotionalCap bounds the aggregate quote notional a single batch may
	// clear. Exceeding it voids the batch rather than risking unbounded
	// arithmetic.
	NotionalCap decimal.Decimal `json:"notional_cap"`

	// CollateralAsset denominates collateral balances.
	CollateralAsset string `json:"collateral_asset"`

	// HoldCollateralUntilSettlement keeps a valid reveal's collateral
	// locked until its batch settles instead of releasing it immediately.
	// Applies uniformly to all participants.
	HoldCollateralUntilSettlement bool `json:"hold_collateral_until_settlement"`
}

// DefaultConfig returns the documented pool defaults: an 8s commit window,
// a 2s reveal window, 5% collateral on declared notional, and a 50% slash.
func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		CommitWindow:     8 * time.Second,
		RevealWindow:     2 * time.Second,
		CollateralRatio:  decimal.RequireFromString("0.05"),
		MinCollateral:    decimal.NewFromInt(1),
		SlashRate:        decimal.RequireFromString("0.5"),
		ProtocolFeeShare: decimal.Zero,
		TradingFeeRate:   decimal.RequireFromString("0.001"),
		MinPoWDifficulty: 16,
		NotionalCap:      decimal.New(1, 12),
		CollateralAsset:  "USDC",
	}
}

// Validate checks that the configuration is internally consistent.
func (c *EngineConfig) Validate() error {
	if c.CommitWindow <= 0 || c.RevealWindow <= 0 {
		return errors.New("commit and reveal windows must be positive")
	}
	if c.CollateralRatio.IsNegative() || c.CollateralRatio.GreaterThan(decimal.NewFromInt(1)) {
		return errors.New("collateral ratio must be in [0,1]")
	}
	if c.MinCollateral.IsNegative() {
		return errors.New("minimum collateral must not be negative")
	}
	if c.SlashRate.IsNegative() || c.SlashRate.GreaterThan(decimal.NewFromInt(1)) {
		return errors.New("slash rate must be in [0,1]")
	}
	if !c.ProtocolFeeShare.IsZero() {
		return errors.New("protocol fee share is fixed at zero")
	}
	if c.TradingFeeRate.IsNegative() {
		return errors.New("trading fee rate must not be negative")
	}
	if !c.NotionalCap.IsPositive() {
		return errors.New("notional cap must be positive")
	}
	if c.CollateralAsset == "" {
		return errors.New("collateral asset is required")
	}
	return nil
}

// RequiredCollateral computes the uniform collateral requirement for a
// declared maximum notional.
func (c *EngineConfig) RequiredCollateral(declaredNotional decimal.Decimal) decimal.Decimal {
	required := c.CollateralRatio.Mul(declaredNotional)
	if required.LessThan(c.MinCollateral) {
		return c.MinCollateral
	}
	return required
}
