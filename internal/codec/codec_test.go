package codec

import (
	"errors"
	"reflect"
	"testing"

	"evalys-gmpc/internal/domain"
)

func strategyInput() *domain.ComputationInput {
	return &domain.ComputationInput{
		Circuit: domain.CircuitStrategyPlan,
		Strategy: &domain.StrategyInput{
			Preferences: domain.UserPreferences{
				DesiredSize:          1_000_000_000,
				SlippageToleranceBps: 50,
				RiskAppetite:         500,
				PreferredHoldTimeSec: 600,
			},
			History: domain.UserHistory{
				RecentPnL:      -250_000,
				WinRateBps:     5500,
				AvgHoldTimeSec: 300,
				TotalTrades:    42,
			},
			Market: domain.MarketState{
				CurrentPrice:   1_350_000,
				LiquidityDepth: 5_000_000_000,
				VolatilityBps:  2500,
				RecentVolume:   800_000_000,
			},
		},
	}
}

func routeInput() *domain.ComputationInput {
	return &domain.ComputationInput{
		Circuit: domain.CircuitRoutePlan,
		Route: &domain.RouteInput{
			Intent: domain.StrategyIntent{
				DesiredSize:          500_000_000,
				RiskAppetite:         700,
				PrivacyPriority:      800,
				SlippageToleranceBps: 75,
				WinRateBps:           6000,
				MaxDrawdownBps:       1500,
				AvgHoldTimeSec:       900,
			},
			Market: domain.MarketState{
				CurrentPrice:   42_000,
				LiquidityDepth: 9_000_000_000,
				VolatilityBps:  7500,
				RecentVolume:   300_000_000,
			},
		},
	}
}

func riskInput() *domain.ComputationInput {
	return &domain.ComputationInput{
		Circuit: domain.CircuitRiskScore,
		Risk: &domain.RiskInput{
			Portfolio: domain.PortfolioContext{
				TotalCapital:         10_000_000_000,
				CurrentExposure:      4_000_000_000,
				DiversificationScore: 650,
				LeverageBps:          5000,
			},
			Performance: domain.PerformanceHistory{
				TotalPnL:         1_200_000,
				SharpeRatioCenti: 150,
				MaxDrawdownBps:   2200,
				ConsistencyScore: 820,
			},
			Market: domain.MarketConditions{
				VolatilityBps: 4100,
				LiquidityRisk: 300,
				Sentiment:     -200,
			},
		},
	}
}

func TestInputRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   *domain.ComputationInput
	}{
		{"strategy", strategyInput()},
		{"route", routeInput()},
		{"risk", riskInput()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := EncodeInput(tc.in)
			if err != nil {
				t.Fatalf("EncodeInput: %v", err)
			}

			got, err := DecodeInput(tc.in.Circuit, data)
			if err != nil {
				t.Fatalf("DecodeInput: %v", err)
			}
			if !reflect.DeepEqual(got, tc.in) {
				t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, tc.in)
			}
		})
	}
}

func TestEncodeInputDeterministic(t *testing.T) {
	a, err := EncodeInput(strategyInput())
	if err != nil {
		t.Fatalf("EncodeInput: %v", err)
	}
	b, err := EncodeInput(strategyInput())
	if err != nil {
		t.Fatalf("EncodeInput: %v", err)
	}
	if string(a) != string(b) {
		t.Fatal("same input encoded to different bytes")
	}
}

func TestEncodeInputRejectsInvalid(t *testing.T) {
	in := strategyInput()
	in.Strategy.Preferences.RiskAppetite = 1001
	if _, err := EncodeInput(in); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDecodeInputSchemaMismatch(t *testing.T) {
	valid, err := EncodeInput(strategyInput())
	if err != nil {
		t.Fatalf("EncodeInput: %v", err)
	}

	t.Run("wrong magic", func(t *testing.T) {
		data := append([]byte(nil), valid...)
		data[0] = 'X'
		if _, err := DecodeInput(domain.CircuitStrategyPlan, data); !errors.Is(err, ErrSchemaMismatch) {
			t.Fatalf("expected ErrSchemaMismatch, got %v", err)
		}
	})

	t.Run("wrong version", func(t *testing.T) {
		data := append([]byte(nil), valid...)
		data[4] = LayoutVersion + 1
		if _, err := DecodeInput(domain.CircuitStrategyPlan, data); !errors.Is(err, ErrSchemaMismatch) {
			t.Fatalf("expected ErrSchemaMismatch, got %v", err)
		}
	})

	t.Run("wrong circuit", func(t *testing.T) {
		if _, err := DecodeInput(domain.CircuitRoutePlan, valid); !errors.Is(err, ErrSchemaMismatch) {
			t.Fatalf("expected ErrSchemaMismatch, got %v", err)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		if _, err := DecodeInput(domain.CircuitStrategyPlan, valid[:len(valid)-1]); !errors.Is(err, ErrSchemaMismatch) {
			t.Fatalf("expected ErrSchemaMismatch, got %v", err)
		}
	})

	t.Run("trailing bytes", func(t *testing.T) {
		data := append(append([]byte(nil), valid...), 0)
		if _, err := DecodeInput(domain.CircuitStrategyPlan, data); !errors.Is(err, ErrSchemaMismatch) {
			t.Fatalf("expected ErrSchemaMismatch, got %v", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if _, err := DecodeInput(domain.CircuitStrategyPlan, nil); !errors.Is(err, ErrSchemaMismatch) {
			t.Fatalf("expected ErrSchemaMismatch, got %v", err)
		}
	})
}

func TestPlanRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		plan *domain.Plan
	}{
		{
			"strategy",
			&domain.Plan{
				Circuit: domain.CircuitStrategyPlan,
				Strategy: &domain.StrategyPlan{
					RecommendedMode: domain.ModeStealth,
					NumSlices:       5,
					SliceSizeBase:   200_000_000,
					TimingWindowSec: 120,
					RiskLevel:       640,
					MaxNotional:     1_000_000_000,
				},
			},
		},
		{
			"route",
			&domain.Plan{
				Circuit: domain.CircuitRoutePlan,
				Route: &domain.RoutePlan{
					RecommendedSize: 350_000_000,
					NumSlices:       7,
					TimingWindowSec: 38,
					MevRoute:        domain.RoutePrivate,
					PrivacyMode:     domain.ModeMaxGhost,
					RiskClass:       domain.RiskHigh,
				},
			},
		},
		{
			"risk",
			&domain.Plan{
				Circuit: domain.CircuitRiskScore,
				Risk: &domain.RiskAssessment{
					OverallRisk:    720,
					PortfolioRisk:  800,
					TradeRisk:      640,
					Recommendation: domain.RecommendCaution,
				},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := EncodePlan(tc.plan)
			if err != nil {
				t.Fatalf("EncodePlan: %v", err)
			}
			got, err := DecodePlan(tc.plan.Circuit, data)
			if err != nil {
				t.Fatalf("DecodePlan: %v", err)
			}
			if !reflect.DeepEqual(got, tc.plan) {
				t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, tc.plan)
			}
		})
	}
}

func TestDecodePlanRejectsBadEnum(t *testing.T) {
	plan := &domain.Plan{
		Circuit: domain.CircuitStrategyPlan,
		Strategy: &domain.StrategyPlan{
			RecommendedMode: domain.ModeNormal,
			NumSlices:       3,
			SliceSizeBase:   10,
			TimingWindowSec: 60,
			RiskLevel:       100,
			MaxNotional:     30,
		},
	}
	data, err := EncodePlan(plan)
	if err != nil {
		t.Fatalf("EncodePlan: %v", err)
	}

	// The mode byte is the first field after the header.
	data[headerLen] = 99
	if _, err := DecodePlan(domain.CircuitStrategyPlan, data); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
