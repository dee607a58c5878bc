package api

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"evalys-gmpc/internal/domain"
)

func strategyRequestJSON() string {
	return `{
		"circuit": "strategy_plan_v1",
		"strategy": {
			"preferences": {
				"desired_size": 5000000000,
				"slippage_tolerance_bps": 50,
				"risk_appetite": 500,
				"preferred_hold_time_sec": 3600
			},
			"history": {
				"recent_pnl": -2500,
				"win_rate_bps": 4800,
				"avg_hold_time_sec": 1200,
				"total_trades": 17
			},
			"market": {
				"current_price": 1000000,
				"liquidity_depth": 40000000000,
				"volatility_bps": 1500,
				"recent_volume": 900000000
			}
		}
	}`
}

func TestSessionRequestToDomain(t *testing.T) {
	var req SessionRequest
	if err := json.Unmarshal([]byte(strategyRequestJSON()), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	in, err := req.ToDomain()
	if err != nil {
		t.Fatalf("ToDomain: %v", err)
	}
	if in.Circuit != domain.CircuitStrategyPlan {
		t.Errorf("circuit = %q", in.Circuit)
	}
	if in.Strategy == nil {
		t.Fatal("strategy input not populated")
	}
	if in.Strategy.Preferences.DesiredSize != 5_000_000_000 {
		t.Errorf("desired size = %d", in.Strategy.Preferences.DesiredSize)
	}
	if in.Strategy.History.RecentPnL != -2500 {
		t.Errorf("recent pnl = %d", in.Strategy.History.RecentPnL)
	}
	if in.Strategy.Market.VolatilityBps != 1500 {
		t.Errorf("volatility = %d", in.Strategy.Market.VolatilityBps)
	}
}

func TestSessionRequestUnknownCircuit(t *testing.T) {
	req := SessionRequest{Circuit: "curve_eval_v1"}
	if _, err := req.ToDomain(); err == nil {
		t.Fatal("expected error for unknown circuit")
	}
}

func TestSessionRequestMissingInputObject(t *testing.T) {
	cases := []string{"strategy_plan_v1", "route_plan_v1", "risk_score_v1"}
	for _, circuit := range cases {
		t.Run(circuit, func(t *testing.T) {
			req := SessionRequest{Circuit: circuit}
			_, err := req.ToDomain()
			if err == nil {
				t.Fatal("expected error when input object is absent")
			}
			if !strings.Contains(err.Error(), "requires") {
				t.Errorf("err = %v", err)
			}
		})
	}
}

func TestSessionRequestValidatesRanges(t *testing.T) {
	var req SessionRequest
	if err := json.Unmarshal([]byte(strategyRequestJSON()), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	req.Strategy.Preferences.RiskAppetite = 1001

	_, err := req.ToDomain()
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestRiskRequestConditionsMapping(t *testing.T) {
	body := `{
		"circuit": "risk_score_v1",
		"risk": {
			"portfolio": {
				"total_capital": 100000000,
				"current_exposure": 25000000,
				"diversification_score": 650,
				"leverage_bps": 120
			},
			"performance": {
				"total_pnl": 40000,
				"sharpe_ratio_centi": 150,
				"max_drawdown_bps": 2000,
				"consistency_score": 820
			},
			"conditions": {
				"volatility_bps": 1200,
				"liquidity_risk": 300,
				"sentiment": -200
			}
		}
	}`

	var req SessionRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	in, err := req.ToDomain()
	if err != nil {
		t.Fatalf("ToDomain: %v", err)
	}
	if in.Risk.Market.Sentiment != -200 {
		t.Errorf("sentiment = %d", in.Risk.Market.Sentiment)
	}
	if in.Risk.Market.LiquidityRisk != 300 {
		t.Errorf("liquidity risk = %d", in.Risk.Market.LiquidityRisk)
	}
}

func TestReceiptJSONRoundTrip(t *testing.T) {
	r := &domain.ComputationReceipt{
		ComputationID: "9xK3mQ",
		Timestamp:     1756400000,
		Status:        domain.StatusCompleted,
	}
	for i := range r.ReceiptID {
		r.ReceiptID[i] = byte(i)
		r.ResultHash[i] = byte(255 - i)
	}
	for i := range r.Signature {
		r.Signature[i] = byte(i * 2)
	}

	wire := ReceiptToJSON(r)
	if len(wire.ReceiptID) != 64 || len(wire.Signature) != 128 {
		t.Fatalf("hex lengths: receipt_id=%d signature=%d", len(wire.ReceiptID), len(wire.Signature))
	}

	back, err := wire.ToDomain()
	if err != nil {
		t.Fatalf("ToDomain: %v", err)
	}
	if *back != *r {
		t.Errorf("round trip mismatch: got %+v, want %+v", back, r)
	}
}

func TestReceiptJSONRejectsMalformed(t *testing.T) {
	good := ReceiptToJSON(&domain.ComputationReceipt{
		ComputationID: "comp",
		Status:        domain.StatusCompleted,
	})

	cases := map[string]func(*ReceiptJSON){
		"non_hex_receipt_id": func(j *ReceiptJSON) { j.ReceiptID = "zz" + j.ReceiptID[2:] },
		"short_result_hash":  func(j *ReceiptJSON) { j.ResultHash = j.ResultHash[:62] },
		"short_signature":    func(j *ReceiptJSON) { j.Signature = j.Signature[:126] },
		"empty_receipt_id":   func(j *ReceiptJSON) { j.ReceiptID = "" },
	}

	for name, corrupt := range cases {
		t.Run(name, func(t *testing.T) {
			j := good
			corrupt(&j)
			if _, err := j.ToDomain(); err == nil {
				t.Fatal("corrupted receipt accepted")
			}
		})
	}
}

func TestPlanToJSONShapes(t *testing.T) {
	strat := PlanToJSON(&domain.Plan{
		Circuit: domain.CircuitStrategyPlan,
		Strategy: &domain.StrategyPlan{
			RecommendedMode: domain.ModeStealth,
			NumSlices:       5,
			SliceSizeBase:   1_000_000,
			TimingWindowSec: 120,
			RiskLevel:       460,
			MaxNotional:     5_000_000,
		},
	})
	if strat.RecommendedMode == nil || *strat.RecommendedMode != uint8(domain.ModeStealth) {
		t.Error("strategy plan missing recommended_mode")
	}
	if strat.RecommendedSize != nil || strat.OverallRisk != nil {
		t.Error("strategy plan leaked fields of other circuits")
	}

	risk := PlanToJSON(&domain.Plan{
		Circuit: domain.CircuitRiskScore,
		Risk: &domain.RiskAssessment{
			OverallRisk:    620,
			PortfolioRisk:  540,
			TradeRisk:      700,
			Recommendation: domain.RecommendCaution,
		},
	})
	if risk.OverallRisk == nil || *risk.OverallRisk != 620 {
		t.Error("risk assessment missing overall_risk")
	}
	if risk.NumSlices != nil || risk.MaxNotional != nil {
		t.Error("risk assessment leaked strategy fields")
	}
}
