// Package tier maps subscription plans to the analytics features they unlock.
package tier

// Plan names as they arrive in access-token claims and Whop payloads.
const (
	PlanBasic      = "basic"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// Feature names gate individual analytics surfaces.
const (
	FeatureConsistency   = "consistency"
	FeatureCommitment    = "commitment"
	FeatureBreakthroughs = "breakthroughs"
	FeaturePathways      = "pathways"
	FeatureInsight       = "insight"
	FeatureExport        = "export"
)

// planFeatures lists what each plan unlocks. Plans are cumulative:
// pro includes basic, enterprise includes pro.
var planFeatures = map[string]map[string]bool{
	PlanBasic: {
		FeatureConsistency: true,
		FeatureCommitment:  true,
	},
	PlanPro: {
		FeatureConsistency:   true,
		FeatureCommitment:    true,
		FeatureBreakthroughs: true,
		FeaturePathways:      true,
		FeatureInsight:       true,
	},
	PlanEnterprise: {
		FeatureConsistency:   true,
		FeatureCommitment:    true,
		FeatureBreakthroughs: true,
		FeaturePathways:      true,
		FeatureInsight:       true,
		FeatureExport:        true,
	},
}

// Allows reports whether the given plan unlocks a feature.
// Unknown plans are treated as basic so a malformed claim degrades
// rather than locking a paying creator out entirely.
func Allows(plan, feature string) bool {
	features, ok := planFeatures[plan]
	if !ok {
		features = planFeatures[PlanBasic]
	}
	return features[feature]
}

// Features returns the features a plan unlocks, for capability discovery
// responses. The returned slice is a copy in stable order.
func Features(plan string) []string {
	features, ok := planFeatures[plan]
	if !ok {
		features = planFeatures[PlanBasic]
	}
	// Stable order so responses are deterministic.
	ordered := []string{
		FeatureConsistency,
		FeatureCommitment,
		FeatureBreakthroughs,
		FeaturePathways,
		FeatureInsight,
		FeatureExport,
	}
	var out []string
	for _, f := range ordered {
		if features[f] {
			out = append(out, f)
		}
	}
	return out
}
