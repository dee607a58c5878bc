package engine

import "evalys-gmpc/internal/domain"

// Recommendation thresholds on the overall 0-1000 risk score.
const (
	recommendCautionAbove = 600
	recommendAvoidAbove   = 800
)

// DeriveRiskAssessment computes the portfolio risk scoring ruleset.
// All three scores stay within 0-1000 for every valid input.
func DeriveRiskAssessment(in *domain.RiskInput) *domain.RiskAssessment {
	portfolioRisk := portfolioRisk(&in.Portfolio)
	tradeRisk := tradeRisk(&in.Market)

	// Performance adjustment on the combined score.
	base := (uint32(portfolioRisk) + uint32(tradeRisk)) / 2
	perf := &in.Performance
	switch {
	case perf.TotalPnL < 0 && perf.MaxDrawdownBps > 5000:
		base += 200
	case perf.SharpeRatioCenti > 100 && perf.ConsistencyScore > 800:
		if base >= 120 {
			base -= 120
		} else {
			base = 0
		}
	}
	overall := clampScore(base)

	rec := domain.RecommendProceed
	switch {
	case overall > recommendAvoidAbove:
		rec = domain.RecommendAvoid
	case overall > recommendCautionAbove:
		rec = domain.RecommendCaution
	}

	return &domain.RiskAssessment{
		OverallRisk:    overall,
		PortfolioRisk:  portfolioRisk,
		TradeRisk:      tradeRisk,
		Recommendation: rec,
	}
}

// portfolioRisk scores exposure concentration, diversification, and leverage.
// Exposure thresholds avoid multiplying the raw exposure, which can sit near
// the uint64 ceiling for smallest-unit notionals.
func portfolioRisk(p *domain.PortfolioContext) uint16 {
	// TotalCapital is validated positive upstream.
	var score uint32
	switch {
	case p.CurrentExposure > p.TotalCapital/5*4: // >80% of capital deployed
		score = 1000
	case p.CurrentExposure > p.TotalCapital/5*3: // >60%
		score = 800
	case p.DiversificationScore < 400:
		score = 600 + uint32(400-p.DiversificationScore)/2
	default:
		score = 400
	}

	// Leverage adds up to 200 on top.
	score += uint32(p.LeverageBps) / 50

	return clampScore(score)
}

// tradeRisk scores the market conditions alone.
func tradeRisk(m *domain.MarketConditions) uint16 {
	switch {
	case m.VolatilityBps > 5000:
		return 1000
	case m.VolatilityBps > 3000:
		return 800
	case m.LiquidityRisk > 800:
		return 700
	default:
		return 400
	}
}
