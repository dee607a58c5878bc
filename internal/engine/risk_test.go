package engine

import (
	"reflect"
	"testing"

	"evalys-gmpc/internal/domain"
)

func baseRiskInput() *domain.RiskInput {
	return &domain.RiskInput{
		Portfolio: domain.PortfolioContext{
			TotalCapital:         10_000_000_000,
			CurrentExposure:      4_000_000_000,
			DiversificationScore: 650,
			LeverageBps:          2000,
		},
		Performance: domain.PerformanceHistory{
			TotalPnL:         1_200_000,
			SharpeRatioCenti: 50,
			MaxDrawdownBps:   2200,
			ConsistencyScore: 500,
		},
		Market: domain.MarketConditions{
			VolatilityBps: 2000,
			LiquidityRisk: 300,
			Sentiment:     0,
		},
	}
}

func TestDeriveRiskAssessmentDeterministic(t *testing.T) {
	a := DeriveRiskAssessment(baseRiskInput())
	b := DeriveRiskAssessment(baseRiskInput())
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same input produced different assessments:\n%+v\n%+v", a, b)
	}
}

func TestRiskScoresAlwaysInRange(t *testing.T) {
	exposures := []uint64{0, 1, 3_000_000_000, 6_000_000_001, 8_000_000_001, 10_000_000_000}
	leverages := []uint16{0, 5000, 10000}
	vols := []uint32{0, 3000, 3001, 5000, 5001, 10000}
	pnls := []int64{-1_000_000, 0, 1_000_000}

	for _, exposure := range exposures {
		for _, leverage := range leverages {
			for _, vol := range vols {
				for _, pnl := range pnls {
					in := baseRiskInput()
					in.Portfolio.CurrentExposure = exposure
					in.Portfolio.LeverageBps = leverage
					in.Market.VolatilityBps = vol
					in.Performance.TotalPnL = pnl
					in.Performance.MaxDrawdownBps = 6000

					a := DeriveRiskAssessment(in)
					for name, score := range map[string]uint16{
						"overall": a.OverallRisk, "portfolio": a.PortfolioRisk, "trade": a.TradeRisk,
					} {
						if score > domain.MaxScore {
							t.Fatalf("%s risk %d out of range (exposure=%d leverage=%d vol=%d)",
								name, score, exposure, leverage, vol)
						}
					}
					if !a.Recommendation.Valid() {
						t.Fatalf("invalid recommendation %d", a.Recommendation)
					}
				}
			}
		}
	}
}

// Exposure near the uint64 ceiling must not overflow the concentration math.
func TestPortfolioRiskExtremeNotionals(t *testing.T) {
	in := baseRiskInput()
	in.Portfolio.TotalCapital = 1 << 62
	in.Portfolio.CurrentExposure = 1 << 62

	a := DeriveRiskAssessment(in)
	if a.PortfolioRisk != domain.MaxScore {
		t.Fatalf("fully deployed capital scored %d, want %d", a.PortfolioRisk, domain.MaxScore)
	}
}

func TestRecommendationThresholds(t *testing.T) {
	// Calm portfolio and market floor the overall score at 400.
	calm := baseRiskInput()
	calm.Portfolio.CurrentExposure = 0
	calm.Portfolio.LeverageBps = 0
	calm.Market.VolatilityBps = 0
	calm.Market.LiquidityRisk = 0
	if got := DeriveRiskAssessment(calm).Recommendation; got != domain.RecommendProceed {
		t.Fatalf("calm input: recommendation = %d, want proceed", got)
	}

	// Concentrated and volatile pushes past the avoid line.
	hot := baseRiskInput()
	hot.Portfolio.CurrentExposure = hot.Portfolio.TotalCapital
	hot.Portfolio.LeverageBps = 10000
	hot.Market.VolatilityBps = 9000
	hot.Performance.TotalPnL = -1
	hot.Performance.MaxDrawdownBps = 6000
	if got := DeriveRiskAssessment(hot).Recommendation; got != domain.RecommendAvoid {
		t.Fatalf("hot input: recommendation = %d, want avoid", got)
	}

	// Middling score lands in caution.
	mid := baseRiskInput()
	mid.Portfolio.CurrentExposure = mid.Portfolio.TotalCapital // portfolio 1000 + leverage
	mid.Portfolio.LeverageBps = 0
	mid.Market.VolatilityBps = 0
	mid.Market.LiquidityRisk = 0 // trade 400, overall 700
	if got := DeriveRiskAssessment(mid).Recommendation; got != domain.RecommendCaution {
		t.Fatalf("mid input: recommendation = %d, want caution", got)
	}
}

func TestPerformanceAdjustments(t *testing.T) {
	in := baseRiskInput()
	neutral := DeriveRiskAssessment(in)

	losing := baseRiskInput()
	losing.Performance.TotalPnL = -1
	losing.Performance.MaxDrawdownBps = 5001
	if got := DeriveRiskAssessment(losing); got.OverallRisk <= neutral.OverallRisk {
		t.Fatalf("drawdown penalty missing: %d <= %d", got.OverallRisk, neutral.OverallRisk)
	}

	strong := baseRiskInput()
	strong.Performance.SharpeRatioCenti = 150
	strong.Performance.ConsistencyScore = 850
	if got := DeriveRiskAssessment(strong); got.OverallRisk >= neutral.OverallRisk {
		t.Fatalf("consistency discount missing: %d >= %d", got.OverallRisk, neutral.OverallRisk)
	}
}

func TestTradeRiskBands(t *testing.T) {
	cases := []struct {
		vol     uint32
		liqRisk uint16
		want    uint16
	}{
		{5001, 0, 1000},
		{3001, 0, 800},
		{0, 801, 700},
		{0, 800, 400},
		{3000, 100, 400},
	}
	for _, tc := range cases {
		in := baseRiskInput()
		in.Market.VolatilityBps = tc.vol
		in.Market.LiquidityRisk = tc.liqRisk
		if got := DeriveRiskAssessment(in).TradeRisk; got != tc.want {
			t.Errorf("vol=%d liq=%d: trade risk = %d, want %d", tc.vol, tc.liqRisk, got, tc.want)
		}
	}
}
