package domain

// CircuitID selects which confidential ruleset and wire schema a computation
// runs. The set is closed: the cluster rejects unknown circuits at submission.
type CircuitID string

const (
	// CircuitStrategyPlan is the slice-planning circuit.
	CircuitStrategyPlan CircuitID = "strategy_plan_v1"

	// CircuitRoutePlan is the routing/privacy circuit.
	CircuitRoutePlan CircuitID = "route_plan_v1"

	// CircuitRiskScore is the portfolio risk scoring circuit.
	CircuitRiskScore CircuitID = "risk_score_v1"
)

// Circuits lists all supported circuits.
var Circuits = []CircuitID{CircuitStrategyPlan, CircuitRoutePlan, CircuitRiskScore}

// Valid reports whether the circuit is one of the supported set.
func (c CircuitID) Valid() bool {
	switch c {
	case CircuitStrategyPlan, CircuitRoutePlan, CircuitRiskScore:
		return true
	default:
		return false
	}
}
