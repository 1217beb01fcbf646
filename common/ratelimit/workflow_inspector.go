package ratelimit

import "github.com/flowforge/engine/common/blueprint"

// WorkflowTier represents the rate limit tier based on blueprint
// complexity: a Function node invokes an external handler (HTTP call or
// other side-effecting operation) and is the unit of cost this tiering
// counts, the same way the teacher's inspector counted agent nodes.
type WorkflowTier string

const (
	TierSimple   WorkflowTier = "simple"   // no Function nodes
	TierStandard WorkflowTier = "standard" // 1-2 Function nodes, no fan-out
	TierHeavy    WorkflowTier = "heavy"    // 3+ Function nodes, or any Fork
)

// BlueprintProfile contains analysis of a compiled Blueprint's complexity.
type BlueprintProfile struct {
	Tier          WorkflowTier
	FunctionCount int
	ForkCount     int
	TotalNodes    int
}

// InspectBlueprint analyzes a compiled Blueprint and determines the tier
// its Instances should be rate limited under.
func InspectBlueprint(bp *blueprint.Blueprint) BlueprintProfile {
	profile := BlueprintProfile{Tier: TierSimple, TotalNodes: len(bp.Nodes)}

	for _, n := range bp.Nodes {
		switch n.Kind {
		case blueprint.KindFunction:
			profile.FunctionCount++
		case blueprint.KindFork:
			profile.ForkCount++
		}
	}

	profile.Tier = determineTier(profile.FunctionCount, profile.ForkCount)
	return profile
}

func determineTier(functionCount, forkCount int) WorkflowTier {
	switch {
	case forkCount > 0 || functionCount >= 3:
		return TierHeavy
	case functionCount >= 1:
		return TierStandard
	default:
		return TierSimple
	}
}

// String returns a human-readable description of the tier.
func (t WorkflowTier) String() string {
	switch t {
	case TierSimple:
		return "simple"
	case TierStandard:
		return "standard"
	case TierHeavy:
		return "heavy"
	default:
		return "unknown"
	}
}
