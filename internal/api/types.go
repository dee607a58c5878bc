// Package api defines the JSON surface shared by the server endpoints and
// the CLI tools: session requests, plan responses, and the receipt exchange
// format. Binary receipt fields travel as hex.
package api

import (
	"encoding/hex"
	"fmt"

	"evalys-gmpc/internal/domain"
)

// StrategyInputJSON carries the strategy circuit's three input tuples.
type StrategyInputJSON struct {
	Preferences struct {
		DesiredSize          uint64 `json:"desired_size"`
		SlippageToleranceBps uint16 `json:"slippage_tolerance_bps"`
		RiskAppetite         uint16 `json:"risk_appetite"`
		PreferredHoldTimeSec uint32 `json:"preferred_hold_time_sec"`
	} `json:"preferences"`
	History struct {
		RecentPnL      int64  `json:"recent_pnl"`
		WinRateBps     uint16 `json:"win_rate_bps"`
		AvgHoldTimeSec uint32 `json:"avg_hold_time_sec"`
		TotalTrades    uint32 `json:"total_trades"`
	} `json:"history"`
	Market MarketStateJSON `json:"market"`
}

// MarketStateJSON is the public market snapshot.
type MarketStateJSON struct {
	CurrentPrice   uint64 `json:"current_price"`
	LiquidityDepth uint64 `json:"liquidity_depth"`
	VolatilityBps  uint32 `json:"volatility_bps"`
	RecentVolume   uint64 `json:"recent_volume"`
}

// RouteInputJSON carries the route circuit's intent and market state.
type RouteInputJSON struct {
	Intent struct {
		DesiredSize          uint64 `json:"desired_size"`
		RiskAppetite         uint16 `json:"risk_appetite"`
		PrivacyPriority      uint16 `json:"privacy_priority"`
		SlippageToleranceBps uint16 `json:"slippage_tolerance_bps"`
		WinRateBps           uint16 `json:"win_rate_bps"`
		MaxDrawdownBps       uint16 `json:"max_drawdown_bps"`
		AvgHoldTimeSec       uint32 `json:"avg_hold_time_sec"`
	} `json:"intent"`
	Market MarketStateJSON `json:"market"`
}

// RiskInputJSON carries the risk circuit's portfolio, performance, and
// market condition tuples.
type RiskInputJSON struct {
	Portfolio struct {
		TotalCapital         uint64 `json:"total_capital"`
		CurrentExposure      uint64 `json:"current_exposure"`
		DiversificationScore uint16 `json:"diversification_score"`
		LeverageBps          uint16 `json:"leverage_bps"`
	} `json:"portfolio"`
	Performance struct {
		TotalPnL         int64  `json:"total_pnl"`
		SharpeRatioCenti int16  `json:"sharpe_ratio_centi"`
		MaxDrawdownBps   uint16 `json:"max_drawdown_bps"`
		ConsistencyScore uint16 `json:"consistency_score"`
	} `json:"performance"`
	Conditions struct {
		VolatilityBps uint32 `json:"volatility_bps"`
		LiquidityRisk uint16 `json:"liquidity_risk"`
		Sentiment     int16  `json:"sentiment"`
	} `json:"conditions"`
}

// SessionRequest is the POST /v1/sessions body. Exactly one input object
// must be set, matching the circuit.
type SessionRequest struct {
	Circuit  string             `json:"circuit"`
	Strategy *StrategyInputJSON `json:"strategy,omitempty"`
	Route    *RouteInputJSON    `json:"route,omitempty"`
	Risk     *RiskInputJSON     `json:"risk,omitempty"`
}

// ToDomain converts the request into a validated computation input.
func (r *SessionRequest) ToDomain() (*domain.ComputationInput, error) {
	circuit := domain.CircuitID(r.Circuit)
	in := &domain.ComputationInput{Circuit: circuit}

	switch circuit {
	case domain.CircuitStrategyPlan:
		if r.Strategy == nil {
			return nil, fmt.Errorf("circuit %s requires a strategy object", circuit)
		}
		s := r.Strategy
		in.Strategy = &domain.StrategyInput{
			Preferences: domain.UserPreferences{
				DesiredSize:          s.Preferences.DesiredSize,
				SlippageToleranceBps: s.Preferences.SlippageToleranceBps,
				RiskAppetite:         s.Preferences.RiskAppetite,
				PreferredHoldTimeSec: s.Preferences.PreferredHoldTimeSec,
			},
			History: domain.UserHistory{
				RecentPnL:      s.History.RecentPnL,
				WinRateBps:     s.History.WinRateBps,
				AvgHoldTimeSec: s.History.AvgHoldTimeSec,
				TotalTrades:    s.History.TotalTrades,
			},
			Market: marketFromJSON(s.Market),
		}
	case domain.CircuitRoutePlan:
		if r.Route == nil {
			return nil, fmt.Errorf("circuit %s requires a route object", circuit)
		}
		rt := r.Route
		in.Route = &domain.RouteInput{
			Intent: domain.StrategyIntent{
				DesiredSize:          rt.Intent.DesiredSize,
				RiskAppetite:         rt.Intent.RiskAppetite,
				PrivacyPriority:      rt.Intent.PrivacyPriority,
				SlippageToleranceBps: rt.Intent.SlippageToleranceBps,
				WinRateBps:           rt.Intent.WinRateBps,
				MaxDrawdownBps:       rt.Intent.MaxDrawdownBps,
				AvgHoldTimeSec:       rt.Intent.AvgHoldTimeSec,
			},
			Market: marketFromJSON(rt.Market),
		}
	case domain.CircuitRiskScore:
		if r.Risk == nil {
			return nil, fmt.Errorf("circuit %s requires a risk object", circuit)
		}
		rk := r.Risk
		in.Risk = &domain.RiskInput{
			Portfolio: domain.PortfolioContext{
				TotalCapital:         rk.Portfolio.TotalCapital,
				CurrentExposure:      rk.Portfolio.CurrentExposure,
				DiversificationScore: rk.Portfolio.DiversificationScore,
				LeverageBps:          rk.Portfolio.LeverageBps,
			},
			Performance: domain.PerformanceHistory{
				TotalPnL:         rk.Performance.TotalPnL,
				SharpeRatioCenti: rk.Performance.SharpeRatioCenti,
				MaxDrawdownBps:   rk.Performance.MaxDrawdownBps,
				ConsistencyScore: rk.Performance.ConsistencyScore,
			},
			Market: domain.MarketConditions{
				VolatilityBps: rk.Conditions.VolatilityBps,
				LiquidityRisk: rk.Conditions.LiquidityRisk,
				Sentiment:     rk.Conditions.Sentiment,
			},
		}
	default:
		return nil, fmt.Errorf("unknown circuit %q", r.Circuit)
	}

	if err := in.Validate(); err != nil {
		return nil, err
	}
	return in, nil
}

func marketFromJSON(m MarketStateJSON) domain.MarketState {
	return domain.MarketState{
		CurrentPrice:   m.CurrentPrice,
		LiquidityDepth: m.LiquidityDepth,
		VolatilityBps:  m.VolatilityBps,
		RecentVolume:   m.RecentVolume,
	}
}

// PlanJSON is the decoded plan, shaped per circuit.
type PlanJSON struct {
	Circuit string `json:"circuit"`

	// strategy_plan_v1
	RecommendedMode *uint8  `json:"recommended_mode,omitempty"`
	NumSlices       *uint8  `json:"num_slices,omitempty"`
	SliceSizeBase   *uint64 `json:"slice_size_base,omitempty"`
	TimingWindowSec *uint32 `json:"timing_window_sec,omitempty"`
	RiskLevel       *uint16 `json:"risk_level,omitempty"`
	MaxNotional     *uint64 `json:"max_notional,omitempty"`

	// route_plan_v1
	RecommendedSize *uint64 `json:"recommended_size,omitempty"`
	MevRoute        *uint8  `json:"mev_route,omitempty"`
	PrivacyMode     *uint8  `json:"privacy_mode,omitempty"`
	RiskClass       *uint8  `json:"risk_class,omitempty"`

	// risk_score_v1
	OverallRisk    *uint16 `json:"overall_risk,omitempty"`
	PortfolioRisk  *uint16 `json:"portfolio_risk,omitempty"`
	TradeRisk      *uint16 `json:"trade_risk,omitempty"`
	Recommendation *uint8  `json:"recommendation,omitempty"`
}

// PlanToJSON flattens a decoded plan for the response body.
func PlanToJSON(p *domain.Plan) PlanJSON {
	out := PlanJSON{Circuit: string(p.Circuit)}
	switch {
	case p.Strategy != nil:
		s := p.Strategy
		mode := uint8(s.RecommendedMode)
		out.RecommendedMode = &mode
		out.NumSlices = &s.NumSlices
		out.SliceSizeBase = &s.SliceSizeBase
		out.TimingWindowSec = &s.TimingWindowSec
		out.RiskLevel = &s.RiskLevel
		out.MaxNotional = &s.MaxNotional
	case p.Route != nil:
		r := p.Route
		out.RecommendedSize = &r.RecommendedSize
		out.NumSlices = &r.NumSlices
		out.TimingWindowSec = &r.TimingWindowSec
		route := uint8(r.MevRoute)
		out.MevRoute = &route
		mode := uint8(r.PrivacyMode)
		out.PrivacyMode = &mode
		class := uint8(r.RiskClass)
		out.RiskClass = &class
	case p.Risk != nil:
		rk := p.Risk
		out.OverallRisk = &rk.OverallRisk
		out.PortfolioRisk = &rk.PortfolioRisk
		out.TradeRisk = &rk.TradeRisk
		rec := uint8(rk.Recommendation)
		out.Recommendation = &rec
	}
	return out
}

// ReceiptJSON is the receipt exchange format used by the server response
// and the offline verifier.
type ReceiptJSON struct {
	ReceiptID     string `json:"receipt_id"`
	ComputationID string `json:"computation_id"`
	ResultHash    string `json:"result_hash"`
	Signature     string `json:"signature"`
	Timestamp     int64  `json:"timestamp"`
	Status        string `json:"status"`
}

// ReceiptToJSON converts a domain receipt to its exchange form.
func ReceiptToJSON(r *domain.ComputationReceipt) ReceiptJSON {
	return ReceiptJSON{
		ReceiptID:     hex.EncodeToString(r.ReceiptID[:]),
		ComputationID: r.ComputationID,
		ResultHash:    hex.EncodeToString(r.ResultHash[:]),
		Signature:     hex.EncodeToString(r.Signature[:]),
		Timestamp:     r.Timestamp,
		Status:        string(r.Status),
	}
}

// ToDomain parses the exchange form back into a domain receipt.
func (j *ReceiptJSON) ToDomain() (*domain.ComputationReceipt, error) {
	r := &domain.ComputationReceipt{
		ComputationID: j.ComputationID,
		Timestamp:     j.Timestamp,
		Status:        domain.ComputationStatus(j.Status),
	}
	if err := decodeHexInto(r.ReceiptID[:], j.ReceiptID, "receipt_id"); err != nil {
		return nil, err
	}
	if err := decodeHexInto(r.ResultHash[:], j.ResultHash, "result_hash"); err != nil {
		return nil, err
	}
	if err := decodeHexInto(r.Signature[:], j.Signature, "signature"); err != nil {
		return nil, err
	}
	return r, nil
}

func decodeHexInto(dst []byte, s, field string) error {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("decode %s: %w", field, err)
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("%s is %d bytes, want %d", field, len(raw), len(dst))
	}
	copy(dst, raw)
	return nil
}

// SessionResponse is the POST /v1/sessions success body.
type SessionResponse struct {
	SessionID     string      `json:"session_id"`
	ComputationID string      `json:"computation_id"`
	Plan          PlanJSON    `json:"plan"`
	Receipt       ReceiptJSON `json:"receipt"`
	Polls         int         `json:"polls"`
	DurationMs    int64       `json:"duration_ms"`
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
