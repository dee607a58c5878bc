package engine

import "evalys-gmpc/internal/domain"

// Score-scale thirds used for enum selection thresholds.
const (
	tierMidAbove  = 334 // scores at or above this leave the low tier
	tierHighAbove = 667 // scores at or above this enter the high tier
)

// DeriveRoutePlan computes the routing/privacy ruleset.
//
// Enum selection is total: every (privacy_priority, risk) combination maps
// to exactly one MevRoute, PrivacyMode, and RiskClass. RecommendedSize never
// exceeds the intent's desired size.
func DeriveRoutePlan(in *domain.RouteInput) *domain.RoutePlan {
	intent := &in.Intent

	// Size haircut: percentage factors, applied as integer math.
	riskFactorPct := uint64(100)
	switch {
	case intent.RiskAppetite < tierMidAbove:
		riskFactorPct = 50
	case intent.RiskAppetite < tierHighAbove:
		riskFactorPct = 80
	}

	volPenaltyPct := uint64(100)
	if in.Market.VolatilityBps > 7000 {
		volPenaltyPct = 70
	}

	recommended := intent.DesiredSize / 10000 * riskFactorPct * volPenaltyPct
	if intent.DesiredSize < 10000 {
		// Small orders would truncate to zero above; divide last instead.
		recommended = intent.DesiredSize * riskFactorPct * volPenaltyPct / 10000
	}
	if recommended == 0 {
		recommended = 1
	}
	if recommended > intent.DesiredSize {
		recommended = intent.DesiredSize
	}

	var numSlices uint8
	switch {
	case intent.PrivacyPriority >= tierHighAbove:
		numSlices = 7
	case intent.PrivacyPriority >= tierMidAbove:
		numSlices = 5
	default:
		numSlices = 3
	}

	window := uint32(38)
	if in.Market.VolatilityBps > 7000 {
		window = 60
	}

	route := domain.RouteStandard
	switch {
	case intent.PrivacyPriority >= tierHighAbove:
		route = domain.RoutePrivate
	case intent.PrivacyPriority >= tierMidAbove:
		route = domain.RouteJitoBundle
	}

	privacy := domain.ModeNormal
	switch {
	case intent.PrivacyPriority >= tierHighAbove:
		privacy = domain.ModeMaxGhost
	case intent.PrivacyPriority >= tierMidAbove:
		privacy = domain.ModeStealth
	}

	riskClass := domain.RiskBalanced
	switch {
	case intent.RiskAppetite >= tierHighAbove || in.Market.VolatilityBps > 8000:
		riskClass = domain.RiskHigh
	case intent.RiskAppetite < tierMidAbove && in.Market.VolatilityBps < 5000:
		riskClass = domain.RiskLow
	}

	return &domain.RoutePlan{
		RecommendedSize: recommended,
		NumSlices:       numSlices,
		TimingWindowSec: window,
		MevRoute:        route,
		PrivacyMode:     privacy,
		RiskClass:       riskClass,
	}
}
