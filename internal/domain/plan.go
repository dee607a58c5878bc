package domain

// ExecutionMode is the recommended privacy posture for order execution.
type ExecutionMode uint8

const (
	ModeNormal   ExecutionMode = 0
	ModeStealth  ExecutionMode = 1
	ModeMaxGhost ExecutionMode = 2
)

// Valid reports whether the mode is a declared enum value.
func (m ExecutionMode) Valid() bool { return m <= ModeMaxGhost }

// MevRoute selects the transaction submission path.
type MevRoute uint8

const (
	RouteStandard   MevRoute = 0
	RouteJitoBundle MevRoute = 1
	RoutePrivate    MevRoute = 2
)

// Valid reports whether the route is a declared enum value.
func (r MevRoute) Valid() bool { return r <= RoutePrivate }

// RiskClass buckets the overall risk of a routed plan.
type RiskClass uint8

const (
	RiskLow      RiskClass = 0
	RiskBalanced RiskClass = 1
	RiskHigh     RiskClass = 2
)

// Valid reports whether the class is a declared enum value.
func (c RiskClass) Valid() bool { return c <= RiskHigh }

// Recommendation is the risk circuit's verdict.
type Recommendation uint8

const (
	RecommendProceed Recommendation = 0
	RecommendCaution Recommendation = 1
	RecommendAvoid   Recommendation = 2
)

// Valid reports whether the recommendation is a declared enum value.
func (r Recommendation) Valid() bool { return r <= RecommendAvoid }

// StrategyPlan is the output of the slice-planning circuit.
// Produced once per computation, immutable thereafter.
//
// Invariants the engine guarantees:
//   - MaxNotional == input desired_size
//   - NumSlices >= 1 and SliceSizeBase*NumSlices <= desired_size
//   - RiskLevel in 0-1000
type StrategyPlan struct {
	RecommendedMode ExecutionMode
	NumSlices       uint8
	SliceSizeBase   uint64
	TimingWindowSec uint32
	RiskLevel       uint16 // 0-1000
	MaxNotional     uint64
}

// RoutePlan is the output of the routing/privacy circuit.
type RoutePlan struct {
	RecommendedSize uint64 // <= input desired_size
	NumSlices       uint8
	TimingWindowSec uint32
	MevRoute        MevRoute
	PrivacyMode     ExecutionMode
	RiskClass       RiskClass
}

// RiskAssessment is the output of the risk scoring circuit.
type RiskAssessment struct {
	OverallRisk    uint16 // 0-1000
	PortfolioRisk  uint16 // 0-1000
	TradeRisk      uint16 // 0-1000
	Recommendation Recommendation
}

// Plan is the tagged computation output. Exactly one variant pointer is set,
// matching Circuit; mirrors ComputationInput.
type Plan struct {
	Circuit  CircuitID
	Strategy *StrategyPlan
	Route    *RoutePlan
	Risk     *RiskAssessment
}
