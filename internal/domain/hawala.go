package domain

// HawalaPatternType identifies a layering pattern family.
type HawalaPatternType string

const (
	HawalaStructuring   HawalaPatternType = "STRUCTURING"
	HawalaRoundTrip     HawalaPatternType = "ROUND_TRIP"
	HawalaFanOut        HawalaPatternType = "FAN_OUT"
	HawalaFanIn         HawalaPatternType = "FAN_IN"
	HawalaMirrorTrading HawalaPatternType = "MIRROR_TRADING"
)

// HawalaPattern is one detected layering pattern.
type HawalaPattern struct {
	Type        HawalaPatternType `json:"type"`
	Confidence  float64           `json:"confidence"`
	Description string            `json:"description"`

	// Transactions lists the ids of the transactions in the match.
	Transactions []string `json:"transactions"`
}

// HawalaDetectionResult aggregates detected patterns into a 0-100 score
// and a tiered compliance recommendation.
type HawalaDetectionResult struct {
	Flagged        bool            `json:"flagged"`
	HawalaScore    int             `json:"hawalaScore"`
	Patterns       []HawalaPattern `json:"patterns"`
	Recommendation string          `json:"recommendation"`
}
