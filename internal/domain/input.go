// Package domain defines the shared types for confidential strategy
// computations: circuit inputs, derived plans, and computation receipts.
package domain

// Scale ceilings for bounded numeric fields.
const (
	MaxBps       = 10000 // basis-point fields (win rate, slippage, drawdown)
	MaxScore     = 1000  // score fields (risk appetite, privacy priority, ...)
	MaxSentiment = 1000  // market sentiment magnitude
)

// UserPreferences holds private trading preferences. Immutable once
// submitted to a computation.
type UserPreferences struct {
	DesiredSize          uint64 // smallest-unit notional, must be positive
	SlippageToleranceBps uint16 // 0-10000
	RiskAppetite         uint16 // 0-1000 (0 = conservative)
	PreferredHoldTimeSec uint32 // seconds
}

// Validate checks all fields are within declared ranges.
func (p *UserPreferences) Validate() error {
	if p.DesiredSize == 0 {
		return invalidField("desired_size", "must be positive")
	}
	if p.SlippageToleranceBps > MaxBps {
		return invalidField("slippage_tolerance_bps", "%d exceeds %d", p.SlippageToleranceBps, MaxBps)
	}
	if p.RiskAppetite > MaxScore {
		return invalidField("risk_appetite", "%d exceeds %d", p.RiskAppetite, MaxScore)
	}
	return nil
}

// UserHistory holds a private snapshot of past trading performance.
// It represents a snapshot at submission time, not a live ledger.
type UserHistory struct {
	RecentPnL      int64  // signed, smallest units
	WinRateBps     uint16 // 0-10000
	AvgHoldTimeSec uint32 // seconds
	TotalTrades    uint32
}

// Validate checks all fields are within declared ranges.
func (h *UserHistory) Validate() error {
	if h.WinRateBps > MaxBps {
		return invalidField("win_rate_bps", "%d exceeds %d", h.WinRateBps, MaxBps)
	}
	return nil
}

// MarketState holds the public market snapshot supplied fresh per request.
// Not retained by the core.
type MarketState struct {
	CurrentPrice   uint64 // fixed-point, must be positive
	LiquidityDepth uint64
	VolatilityBps  uint32 // unbounded upward
	RecentVolume   uint64
}

// Validate checks all fields are within declared ranges.
func (m *MarketState) Validate() error {
	if m.CurrentPrice == 0 {
		return invalidField("current_price", "must be positive")
	}
	return nil
}

// StrategyIntent is the private input to the routing/privacy circuit.
type StrategyIntent struct {
	DesiredSize          uint64 // smallest-unit notional, must be positive
	RiskAppetite         uint16 // 0-1000
	PrivacyPriority      uint16 // 0-1000 (0 = normal, 1000 = max privacy)
	SlippageToleranceBps uint16 // 0-10000
	WinRateBps           uint16 // 0-10000
	MaxDrawdownBps       uint16 // 0-10000
	AvgHoldTimeSec       uint32 // seconds
}

// Validate checks all fields are within declared ranges.
func (i *StrategyIntent) Validate() error {
	if i.DesiredSize == 0 {
		return invalidField("desired_size", "must be positive")
	}
	if i.RiskAppetite > MaxScore {
		return invalidField("risk_appetite", "%d exceeds %d", i.RiskAppetite, MaxScore)
	}
	if i.PrivacyPriority > MaxScore {
		return invalidField("privacy_priority", "%d exceeds %d", i.PrivacyPriority, MaxScore)
	}
	if i.SlippageToleranceBps > MaxBps {
		return invalidField("slippage_tolerance_bps", "%d exceeds %d", i.SlippageToleranceBps, MaxBps)
	}
	if i.WinRateBps > MaxBps {
		return invalidField("win_rate_bps", "%d exceeds %d", i.WinRateBps, MaxBps)
	}
	if i.MaxDrawdownBps > MaxBps {
		return invalidField("max_drawdown_bps", "%d exceeds %d", i.MaxDrawdownBps, MaxBps)
	}
	return nil
}

// PortfolioContext is the private portfolio input to the risk circuit.
type PortfolioContext struct {
	TotalCapital         uint64 // smallest units, must be positive
	CurrentExposure      uint64 // smallest units
	DiversificationScore uint16 // 0-1000
	LeverageBps          uint16 // 0-10000
}

// Validate checks all fields are within declared ranges.
func (p *PortfolioContext) Validate() error {
	if p.TotalCapital == 0 {
		return invalidField("total_capital", "must be positive")
	}
	if p.DiversificationScore > MaxScore {
		return invalidField("diversification_score", "%d exceeds %d", p.DiversificationScore, MaxScore)
	}
	if p.LeverageBps > MaxBps {
		return invalidField("leverage_bps", "%d exceeds %d", p.LeverageBps, MaxBps)
	}
	return nil
}

// PerformanceHistory is the private performance input to the risk circuit.
type PerformanceHistory struct {
	TotalPnL         int64 // signed, smallest units
	SharpeRatioCenti int16 // Sharpe ratio scaled by 100
	MaxDrawdownBps   uint16
	ConsistencyScore uint16 // 0-1000
}

// Validate checks all fields are within declared ranges.
func (h *PerformanceHistory) Validate() error {
	if h.MaxDrawdownBps > MaxBps {
		return invalidField("max_drawdown_bps", "%d exceeds %d", h.MaxDrawdownBps, MaxBps)
	}
	if h.ConsistencyScore > MaxScore {
		return invalidField("consistency_score", "%d exceeds %d", h.ConsistencyScore, MaxScore)
	}
	return nil
}

// MarketConditions is the public market input to the risk circuit.
type MarketConditions struct {
	VolatilityBps uint32 // unbounded upward
	LiquidityRisk uint16 // 0-1000
	Sentiment     int16  // -1000..1000
}

// Validate checks all fields are within declared ranges.
func (m *MarketConditions) Validate() error {
	if m.LiquidityRisk > MaxScore {
		return invalidField("liquidity_risk", "%d exceeds %d", m.LiquidityRisk, MaxScore)
	}
	if m.Sentiment > MaxSentiment || m.Sentiment < -MaxSentiment {
		return invalidField("sentiment", "%d outside [-%d, %d]", m.Sentiment, MaxSentiment, MaxSentiment)
	}
	return nil
}

// StrategyInput is the full input tuple for the slice-planning circuit.
type StrategyInput struct {
	Preferences UserPreferences
	History     UserHistory
	Market      MarketState
}

// Validate checks every component of the tuple.
func (i *StrategyInput) Validate() error {
	if err := i.Preferences.Validate(); err != nil {
		return err
	}
	if err := i.History.Validate(); err != nil {
		return err
	}
	return i.Market.Validate()
}

// RouteInput is the full input tuple for the routing/privacy circuit.
type RouteInput struct {
	Intent StrategyIntent
	Market MarketState
}

// Validate checks every component of the tuple.
func (i *RouteInput) Validate() error {
	if err := i.Intent.Validate(); err != nil {
		return err
	}
	return i.Market.Validate()
}

// RiskInput is the full input tuple for the risk scoring circuit.
type RiskInput struct {
	Portfolio   PortfolioContext
	Performance PerformanceHistory
	Market      MarketConditions
}

// Validate checks every component of the tuple.
func (i *RiskInput) Validate() error {
	if err := i.Portfolio.Validate(); err != nil {
		return err
	}
	if err := i.Performance.Validate(); err != nil {
		return err
	}
	return i.Market.Validate()
}

// ComputationInput is the tagged input for one computation request.
// Exactly one variant pointer must be set, matching Circuit.
type ComputationInput struct {
	Circuit  CircuitID
	Strategy *StrategyInput
	Route    *RouteInput
	Risk     *RiskInput
}

// Validate checks the circuit tag, variant presence, and all field ranges.
func (c *ComputationInput) Validate() error {
	if !c.Circuit.Valid() {
		return invalidField("circuit_id", "unknown circuit %q", c.Circuit)
	}
	switch c.Circuit {
	case CircuitStrategyPlan:
		if c.Strategy == nil {
			return invalidField("strategy", "missing input for circuit %s", c.Circuit)
		}
		return c.Strategy.Validate()
	case CircuitRoutePlan:
		if c.Route == nil {
			return invalidField("route", "missing input for circuit %s", c.Circuit)
		}
		return c.Route.Validate()
	case CircuitRiskScore:
		if c.Risk == nil {
			return invalidField("risk", "missing input for circuit %s", c.Circuit)
		}
		return c.Risk.Validate()
	}
	return nil
}
