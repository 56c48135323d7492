package rules

import "github.com/opensource-finance/harrier/internal/domain"

func limit(v float64) *float64 { return &v }

// DefaultRules returns the starter escalation rule set, loaded at
// startup when the repository holds no operator-configured rules.
// Operators replace them through the rules API. Expressions score into
// [0, 1] so the weighted aggregate stays comparable across rules.
func DefaultRules() []*domain.EscalationRule {
	return []*domain.EscalationRule{
		{
			ID:          "hawala-filing",
			Name:        "Hawala filing threshold",
			Description: "Grades the hawala score into pass, review, and filing bands",
			Version:     "1.0",
			Expression:  "hawala_score >= 80 ? 1.0 : (hawala_score >= 50 ? 0.6 : 0.0)",
			Bands: []domain.RuleBand{
				{UpperLimit: limit(0.5), SubRuleRef: domain.RuleOutcomePass, Reason: "hawala score in routine range"},
				{LowerLimit: limit(0.5), UpperLimit: limit(1), SubRuleRef: domain.RuleOutcomeReview, Reason: "hawala score warrants compliance review"},
				{LowerLimit: limit(1), SubRuleRef: domain.RuleOutcomeFail, Reason: "hawala score at filing threshold"},
			},
			Weight:  2.0,
			Enabled: true,
		},
		{
			ID:          "critical-risk-level",
			Name:        "Critical risk level",
			Description: "Fails any screening the analyzer grades CRITICAL",
			Version:     "1.0",
			Expression:  `risk_level == "CRITICAL"`,
			Bands: []domain.RuleBand{
				{UpperLimit: limit(1), SubRuleRef: domain.RuleOutcomePass, Reason: "risk level below critical"},
				{LowerLimit: limit(1), SubRuleRef: domain.RuleOutcomeFail, Reason: "critical velocity risk"},
			},
			Weight:  2.0,
			Enabled: true,
		},
		{
			ID:          "velocity-adjustment",
			Name:        "Velocity adjustment bands",
			Description: "Escalates on elevated velocity risk adjustment",
			Version:     "1.0",
			Expression:  "risk_adjustment >= 40.0 ? 1.0 : (risk_adjustment >= 20.0 ? 0.6 : 0.0)",
			Bands: []domain.RuleBand{
				{UpperLimit: limit(0.5), SubRuleRef: domain.RuleOutcomePass, Reason: "velocity within normal bounds"},
				{LowerLimit: limit(0.5), UpperLimit: limit(1), SubRuleRef: domain.RuleOutcomeReview, Reason: "elevated transaction velocity"},
				{LowerLimit: limit(1), SubRuleRef: domain.RuleOutcomeFail, Reason: "extreme transaction velocity"},
			},
			Weight:  1.0,
			Enabled: true,
		},
		{
			ID:          "structuring-pattern",
			Name:        "Structuring pattern",
			Description: "Flags histories showing sub-threshold structuring",
			Version:     "1.0",
			Expression:  `"STRUCTURING" in pattern_types`,
			Bands: []domain.RuleBand{
				{UpperLimit: limit(1), SubRuleRef: domain.RuleOutcomePass, Reason: "no structuring detected"},
				{LowerLimit: limit(1), SubRuleRef: domain.RuleOutcomeReview, Reason: "structuring pattern detected"},
			},
			Weight:  1.5,
			Enabled: true,
		},
	}
}
