package engine

import "evalys-gmpc/internal/domain"

// Risk level thresholds for execution mode selection.
const (
	modeStealthAbove  = 400 // risk_level above this selects Stealth
	modeMaxGhostAbove = 800 // risk_level above this selects Max Ghost
)

// Size thresholds for baseline slice counts.
const (
	mediumOrderAbove = 1_000_000_000
	largeOrderAbove  = 10_000_000_000
)

// DeriveStrategyPlan computes the slice-planning ruleset.
//
// Guarantees:
//   - MaxNotional == Preferences.DesiredSize, always
//   - NumSlices >= 1 and SliceSizeBase*NumSlices <= DesiredSize
//   - RiskLevel is non-decreasing in VolatilityBps and in RiskAppetite
//   - NumSlices at lower LiquidityDepth >= NumSlices at higher, other
//     fields fixed
func DeriveStrategyPlan(in *domain.StrategyInput) *domain.StrategyPlan {
	riskLevel := riskScore(&in.Preferences, &in.History, &in.Market)

	mode := domain.ModeNormal
	switch {
	case riskLevel > modeMaxGhostAbove:
		mode = domain.ModeMaxGhost
	case riskLevel > modeStealthAbove:
		mode = domain.ModeStealth
	}

	numSlices := sliceCount(in.Preferences.DesiredSize, in.Market.LiquidityDepth)
	sliceSize := in.Preferences.DesiredSize / uint64(numSlices)

	return &domain.StrategyPlan{
		RecommendedMode: mode,
		NumSlices:       numSlices,
		SliceSizeBase:   sliceSize,
		TimingWindowSec: timingWindow(&in.Preferences, &in.History, &in.Market),
		RiskLevel:       riskLevel,
		MaxNotional:     in.Preferences.DesiredSize,
	}
}

// riskScore combines appetite, history, and volatility into a 0-1000 level.
// The appetite term is linear and the volatility term is linear, so the
// score is monotone in both before the final cap.
func riskScore(prefs *domain.UserPreferences, hist *domain.UserHistory, market *domain.MarketState) uint16 {
	score := uint32(prefs.RiskAppetite)

	// History adjustment depends only on history fields.
	switch {
	case hist.RecentPnL < 0:
		score += 100
	case hist.WinRateBps < 5000:
		score += 60
	default:
		if score >= 40 {
			score -= 40
		} else {
			score = 0
		}
	}

	score += market.VolatilityBps / 10

	return clampScore(score)
}

// sliceCount picks the slice count from order size and available liquidity.
// Thin liquidity relative to the order adds slices to spread market impact.
func sliceCount(desiredSize, liquidityDepth uint64) uint8 {
	var n uint8
	switch {
	case desiredSize > largeOrderAbove:
		n = 8
	case desiredSize > mediumOrderAbove:
		n = 5
	default:
		n = 3
	}

	// Liquidity pressure: compare depth against multiples of the order
	// size. Dividing instead of multiplying keeps the comparison exact
	// for notionals near the uint64 ceiling, where the products wrap.
	switch {
	case liquidityDepth/desiredSize < 2:
		n += 4
	case liquidityDepth/desiredSize < 5:
		n += 2
	}

	// Slice size must stay positive for tiny orders.
	if uint64(n) > desiredSize {
		n = uint8(desiredSize)
	}
	return n
}

// timingWindow sizes the execution window from volatility, shortened when
// the history shows enough confidence, capped by the preferred hold time.
func timingWindow(prefs *domain.UserPreferences, hist *domain.UserHistory, market *domain.MarketState) uint32 {
	var window uint32
	switch {
	case market.VolatilityBps > 5000:
		window = 60
	case market.VolatilityBps > 2000:
		window = 120
	default:
		window = 300
	}

	// Confident traders execute tighter windows.
	if hist.WinRateBps >= 6000 && hist.TotalTrades >= 30 {
		window = window * 3 / 4
	}

	if prefs.PreferredHoldTimeSec > 0 && window > prefs.PreferredHoldTimeSec {
		window = prefs.PreferredHoldTimeSec
	}
	return window
}
