// Package codec converts computation inputs and plans to and from the
// fixed-width byte layout the compute cluster consumes. Layouts are
// little-endian, field-order-stable, and versioned: every frame starts with
// a magic, a layout version byte, and a circuit tag byte, so bytes produced
// under a different layout fail decoding instead of being misread.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"evalys-gmpc/internal/domain"
)

// ErrSchemaMismatch is returned when bytes do not match the expected
// circuit, layout version, or frame length.
var ErrSchemaMismatch = errors.New("schema mismatch")

// Frame header: magic | layout version | circuit tag.
var magic = [4]byte{'E', 'V', 'L', 'X'}

const (
	// LayoutVersion is the current wire layout version.
	LayoutVersion = 1

	headerLen = 6 // magic(4) + version(1) + circuit tag(1)
)

// circuitTag is the one-byte wire tag per circuit.
func circuitTag(c domain.CircuitID) (byte, bool) {
	switch c {
	case domain.CircuitStrategyPlan:
		return 1, true
	case domain.CircuitRoutePlan:
		return 2, true
	case domain.CircuitRiskScore:
		return 3, true
	default:
		return 0, false
	}
}

// Frame byte lengths per circuit (header included).
const (
	strategyInputLen = headerLen + 62
	routeInputLen    = headerLen + 50
	riskInputLen     = headerLen + 42

	strategyPlanLen = headerLen + 24
	routePlanLen    = headerLen + 16
	riskPlanLen     = headerLen + 7
)

// writer appends little-endian fixed-width fields.
type writer struct{ buf []byte }

func (w *writer) header(tag byte) {
	w.buf = append(w.buf, magic[:]...)
	w.buf = append(w.buf, LayoutVersion, tag)
}
func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *writer) i16(v int16)  { w.u16(uint16(v)) }
func (w *writer) i64(v int64)  { w.u64(uint64(v)) }

// reader consumes little-endian fixed-width fields. Length is pre-checked,
// so reads never run past the frame.
type reader struct {
	buf []byte
	off int
}

func (r *reader) u8() uint8 {
	v := r.buf[r.off]
	r.off++
	return v
}
func (r *reader) u16() uint16 {
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}
func (r *reader) u32() uint32 {
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}
func (r *reader) u64() uint64 {
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}
func (r *reader) i16() int16 { return int16(r.u16()) }
func (r *reader) i64() int64 { return int64(r.u64()) }

// checkHeader validates magic, layout version, and circuit tag, plus the
// exact frame length for the circuit.
func checkHeader(circuit domain.CircuitID, data []byte, wantLen int) (*reader, error) {
	tag, ok := circuitTag(circuit)
	if !ok {
		return nil, fmt.Errorf("%w: unknown circuit %q", ErrSchemaMismatch, circuit)
	}
	if len(data) != wantLen {
		return nil, fmt.Errorf("%w: frame length %d, want %d", ErrSchemaMismatch, len(data), wantLen)
	}
	if data[0] != magic[0] || data[1] != magic[1] || data[2] != magic[2] || data[3] != magic[3] {
		return nil, fmt.Errorf("%w: bad magic", ErrSchemaMismatch)
	}
	if data[4] != LayoutVersion {
		return nil, fmt.Errorf("%w: layout version %d, want %d", ErrSchemaMismatch, data[4], LayoutVersion)
	}
	if data[5] != tag {
		return nil, fmt.Errorf("%w: circuit tag %d, want %d (%s)", ErrSchemaMismatch, data[5], tag, circuit)
	}
	return &reader{buf: data, off: headerLen}, nil
}

// EncodeInput validates the input and encodes it into the circuit's fixed
// layout. Invalid input fails fast with domain.ErrInvalidInput; encoding a
// validated input is total and side-effect-free.
func EncodeInput(in *domain.ComputationInput) ([]byte, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	tag, _ := circuitTag(in.Circuit)
	w := &writer{}
	w.header(tag)

	switch in.Circuit {
	case domain.CircuitStrategyPlan:
		s := in.Strategy
		w.u64(s.Preferences.DesiredSize)
		w.u16(s.Preferences.SlippageToleranceBps)
		w.u16(s.Preferences.RiskAppetite)
		w.u32(s.Preferences.PreferredHoldTimeSec)
		w.i64(s.History.RecentPnL)
		w.u16(s.History.WinRateBps)
		w.u32(s.History.AvgHoldTimeSec)
		w.u32(s.History.TotalTrades)
		encodeMarket(w, &s.Market)
	case domain.CircuitRoutePlan:
		r := in.Route
		w.u64(r.Intent.DesiredSize)
		w.u16(r.Intent.RiskAppetite)
		w.u16(r.Intent.PrivacyPriority)
		w.u16(r.Intent.SlippageToleranceBps)
		w.u16(r.Intent.WinRateBps)
		w.u16(r.Intent.MaxDrawdownBps)
		w.u32(r.Intent.AvgHoldTimeSec)
		encodeMarket(w, &r.Market)
	case domain.CircuitRiskScore:
		r := in.Risk
		w.u64(r.Portfolio.TotalCapital)
		w.u64(r.Portfolio.CurrentExposure)
		w.u16(r.Portfolio.DiversificationScore)
		w.u16(r.Portfolio.LeverageBps)
		w.i64(r.Performance.TotalPnL)
		w.i16(r.Performance.SharpeRatioCenti)
		w.u16(r.Performance.MaxDrawdownBps)
		w.u16(r.Performance.ConsistencyScore)
		w.u32(r.Market.VolatilityBps)
		w.u16(r.Market.LiquidityRisk)
		w.i16(r.Market.Sentiment)
	}
	return w.buf, nil
}

func encodeMarket(w *writer, m *domain.MarketState) {
	w.u64(m.CurrentPrice)
	w.u64(m.LiquidityDepth)
	w.u32(m.VolatilityBps)
	w.u64(m.RecentVolume)
}

func decodeMarket(r *reader, m *domain.MarketState) {
	m.CurrentPrice = r.u64()
	m.LiquidityDepth = r.u64()
	m.VolatilityBps = r.u32()
	m.RecentVolume = r.u64()
}

// DecodeInput decodes an input frame for the given circuit. The cluster side
// of the protocol uses this after decrypting submitted ciphertext.
func DecodeInput(circuit domain.CircuitID, data []byte) (*domain.ComputationInput, error) {
	var wantLen int
	switch circuit {
	case domain.CircuitStrategyPlan:
		wantLen = strategyInputLen
	case domain.CircuitRoutePlan:
		wantLen = routeInputLen
	case domain.CircuitRiskScore:
		wantLen = riskInputLen
	default:
		return nil, fmt.Errorf("%w: unknown circuit %q", ErrSchemaMismatch, circuit)
	}
	r, err := checkHeader(circuit, data, wantLen)
	if err != nil {
		return nil, err
	}

	in := &domain.ComputationInput{Circuit: circuit}
	switch circuit {
	case domain.CircuitStrategyPlan:
		s := &domain.StrategyInput{}
		s.Preferences.DesiredSize = r.u64()
		s.Preferences.SlippageToleranceBps = r.u16()
		s.Preferences.RiskAppetite = r.u16()
		s.Preferences.PreferredHoldTimeSec = r.u32()
		s.History.RecentPnL = r.i64()
		s.History.WinRateBps = r.u16()
		s.History.AvgHoldTimeSec = r.u32()
		s.History.TotalTrades = r.u32()
		decodeMarket(r, &s.Market)
		in.Strategy = s
	case domain.CircuitRoutePlan:
		rt := &domain.RouteInput{}
		rt.Intent.DesiredSize = r.u64()
		rt.Intent.RiskAppetite = r.u16()
		rt.Intent.PrivacyPriority = r.u16()
		rt.Intent.SlippageToleranceBps = r.u16()
		rt.Intent.WinRateBps = r.u16()
		rt.Intent.MaxDrawdownBps = r.u16()
		rt.Intent.AvgHoldTimeSec = r.u32()
		decodeMarket(r, &rt.Market)
		in.Route = rt
	case domain.CircuitRiskScore:
		rk := &domain.RiskInput{}
		rk.Portfolio.TotalCapital = r.u64()
		rk.Portfolio.CurrentExposure = r.u64()
		rk.Portfolio.DiversificationScore = r.u16()
		rk.Portfolio.LeverageBps = r.u16()
		rk.Performance.TotalPnL = r.i64()
		rk.Performance.SharpeRatioCenti = r.i16()
		rk.Performance.MaxDrawdownBps = r.u16()
		rk.Performance.ConsistencyScore = r.u16()
		rk.Market.VolatilityBps = r.u32()
		rk.Market.LiquidityRisk = r.u16()
		rk.Market.Sentiment = r.i16()
		in.Risk = rk
	}

	if err := in.Validate(); err != nil {
		return nil, err
	}
	return in, nil
}

// EncodePlan encodes a plan into its canonical fixed layout. These bytes are
// the hashing domain for receipt result hashes, so the layout must stay
// byte-stable within a version.
func EncodePlan(p *domain.Plan) ([]byte, error) {
	tag, ok := circuitTag(p.Circuit)
	if !ok {
		return nil, fmt.Errorf("%w: unknown circuit %q", ErrSchemaMismatch, p.Circuit)
	}
	w := &writer{}
	w.header(tag)

	switch p.Circuit {
	case domain.CircuitStrategyPlan:
		if p.Strategy == nil {
			return nil, fmt.Errorf("%w: missing strategy plan for circuit %s", ErrSchemaMismatch, p.Circuit)
		}
		s := p.Strategy
		w.u8(uint8(s.RecommendedMode))
		w.u8(s.NumSlices)
		w.u64(s.SliceSizeBase)
		w.u32(s.TimingWindowSec)
		w.u16(s.RiskLevel)
		w.u64(s.MaxNotional)
	case domain.CircuitRoutePlan:
		if p.Route == nil {
			return nil, fmt.Errorf("%w: missing route plan for circuit %s", ErrSchemaMismatch, p.Circuit)
		}
		r := p.Route
		w.u64(r.RecommendedSize)
		w.u8(r.NumSlices)
		w.u32(r.TimingWindowSec)
		w.u8(uint8(r.MevRoute))
		w.u8(uint8(r.PrivacyMode))
		w.u8(uint8(r.RiskClass))
	case domain.CircuitRiskScore:
		if p.Risk == nil {
			return nil, fmt.Errorf("%w: missing risk assessment for circuit %s", ErrSchemaMismatch, p.Circuit)
		}
		r := p.Risk
		w.u16(r.OverallRisk)
		w.u16(r.PortfolioRisk)
		w.u16(r.TradeRisk)
		w.u8(uint8(r.Recommendation))
	}
	return w.buf, nil
}

// DecodePlan decodes a plan frame for the given circuit. Enum fields outside
// their declared sets fail with ErrSchemaMismatch: valid frames never carry
// out-of-range values.
func DecodePlan(circuit domain.CircuitID, data []byte) (*domain.Plan, error) {
	var wantLen int
	switch circuit {
	case domain.CircuitStrategyPlan:
		wantLen = strategyPlanLen
	case domain.CircuitRoutePlan:
		wantLen = routePlanLen
	case domain.CircuitRiskScore:
		wantLen = riskPlanLen
	default:
		return nil, fmt.Errorf("%w: unknown circuit %q", ErrSchemaMismatch, circuit)
	}
	r, err := checkHeader(circuit, data, wantLen)
	if err != nil {
		return nil, err
	}

	p := &domain.Plan{Circuit: circuit}
	switch circuit {
	case domain.CircuitStrategyPlan:
		s := &domain.StrategyPlan{}
		s.RecommendedMode = domain.ExecutionMode(r.u8())
		s.NumSlices = r.u8()
		s.SliceSizeBase = r.u64()
		s.TimingWindowSec = r.u32()
		s.RiskLevel = r.u16()
		s.MaxNotional = r.u64()
		if !s.RecommendedMode.Valid() {
			return nil, fmt.Errorf("%w: recommended_mode %d outside enum", ErrSchemaMismatch, s.RecommendedMode)
		}
		if s.NumSlices == 0 {
			return nil, fmt.Errorf("%w: num_slices must be positive", ErrSchemaMismatch)
		}
		if s.RiskLevel > domain.MaxScore {
			return nil, fmt.Errorf("%w: risk_level %d exceeds %d", ErrSchemaMismatch, s.RiskLevel, domain.MaxScore)
		}
		p.Strategy = s
	case domain.CircuitRoutePlan:
		rt := &domain.RoutePlan{}
		rt.RecommendedSize = r.u64()
		rt.NumSlices = r.u8()
		rt.TimingWindowSec = r.u32()
		rt.MevRoute = domain.MevRoute(r.u8())
		rt.PrivacyMode = domain.ExecutionMode(r.u8())
		rt.RiskClass = domain.RiskClass(r.u8())
		if !rt.MevRoute.Valid() {
			return nil, fmt.Errorf("%w: mev_route %d outside enum", ErrSchemaMismatch, rt.MevRoute)
		}
		if !rt.PrivacyMode.Valid() {
			return nil, fmt.Errorf("%w: privacy_mode %d outside enum", ErrSchemaMismatch, rt.PrivacyMode)
		}
		if !rt.RiskClass.Valid() {
			return nil, fmt.Errorf("%w: risk_class %d outside enum", ErrSchemaMismatch, rt.RiskClass)
		}
		if rt.NumSlices == 0 {
			return nil, fmt.Errorf("%w: num_slices must be positive", ErrSchemaMismatch)
		}
		p.Route = rt
	case domain.CircuitRiskScore:
		rk := &domain.RiskAssessment{}
		rk.OverallRisk = r.u16()
		rk.PortfolioRisk = r.u16()
		rk.TradeRisk = r.u16()
		rk.Recommendation = domain.Recommendation(r.u8())
		if rk.OverallRisk > domain.MaxScore || rk.PortfolioRisk > domain.MaxScore || rk.TradeRisk > domain.MaxScore {
			return nil, fmt.Errorf("%w: risk score exceeds %d", ErrSchemaMismatch, domain.MaxScore)
		}
		if !rk.Recommendation.Valid() {
			return nil, fmt.Errorf("%w: recommendation %d outside enum", ErrSchemaMismatch, rk.Recommendation)
		}
		p.Risk = rk
	}
	return p, nil
}
