// Package engine implements the deterministic derivation rulesets, one per
// circuit. This is the reference implementation of what the compute cluster
// executes over encrypted inputs: pure functions, no I/O, no randomness.
// Identical input always yields identical output, since receipt result
// hashes are derived from the output bytes.
package engine

import (
	"fmt"

	"evalys-gmpc/internal/domain"
)

// Derive runs the ruleset selected by the input's circuit over a validated
// input. Malformed input is the only failure mode; it is rejected before any
// rule runs.
func Derive(in *domain.ComputationInput) (*domain.Plan, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	plan := &domain.Plan{Circuit: in.Circuit}
	switch in.Circuit {
	case domain.CircuitStrategyPlan:
		plan.Strategy = DeriveStrategyPlan(in.Strategy)
	case domain.CircuitRoutePlan:
		plan.Route = DeriveRoutePlan(in.Route)
	case domain.CircuitRiskScore:
		plan.Risk = DeriveRiskAssessment(in.Risk)
	default:
		return nil, fmt.Errorf("%w: circuit_id: unknown circuit %q", domain.ErrInvalidInput, in.Circuit)
	}
	return plan, nil
}

// clampScore caps a score at the 0-1000 ceiling.
func clampScore(v uint32) uint16 {
	if v > domain.MaxScore {
		return domain.MaxScore
	}
	return uint16(v)
}
