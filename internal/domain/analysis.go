package domain

// RiskLevel grades the overall behavioral risk of a transaction history.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Severity grades a single anomaly flag.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// VelocityProfile summarizes transaction velocity in trailing windows
// ending at the reference instant, plus amount and peak-activity stats.
// Derived on every call; nothing is persisted between calls.
type VelocityProfile struct {
	TransactionsPerHour int `json:"transactionsPerHour"`
	TransactionsPerDay  int `json:"transactionsPerDay"`
	TransactionsPerWeek int `json:"transactionsPerWeek"`

	AverageAmount float64 `json:"averageAmount"`
	TotalVolume   float64 `json:"totalVolume"`

	// PeakHour is the busiest hour of day (0-23), PeakDay the busiest
	// calendar day ("2006-01-02"). Both are nil for an empty history.
	PeakHour *int    `json:"peakHour"`
	PeakDay  *string `json:"peakDay"`
}

// TemporalPatternType classifies the timing texture of a history.
type TemporalPatternType string

const (
	PatternClustering TemporalPatternType = "CLUSTERING"
	PatternSpikes     TemporalPatternType = "SPIKES"
	PatternRhythmic   TemporalPatternType = "RHYTHMIC"
	PatternIrregular  TemporalPatternType = "IRREGULAR"
)

// TemporalPattern is one classified timing pattern with its confidence.
type TemporalPattern struct {
	Type        TemporalPatternType `json:"type"`
	Confidence  float64             `json:"confidence"`
	Description string              `json:"description"`
}

// AnomalyType identifies a velocity or distribution anomaly rule.
type AnomalyType string

const (
	AnomalyCriticalVelocity AnomalyType = "CRITICAL_VELOCITY"           // >10x hourly baseline
	AnomalyVelocitySpike    AnomalyType = "VELOCITY_SPIKE"              // >3x hourly baseline
	AnomalyLargeTransfers   AnomalyType = "LARGE_TRANSFERS"             // outsized vs batch average
	AnomalyRapidTransfers   AnomalyType = "RAPID_CONSECUTIVE_TRANSFERS" // sub-5-minute gaps
	AnomalyConcentration    AnomalyType = "COUNTERPARTY_CONCENTRATION"  // single dominant recipient
)

// AnomalyFlag is one triggered anomaly rule.
type AnomalyFlag struct {
	Type        AnomalyType `json:"type"`
	Severity    Severity    `json:"severity"`
	Description string      `json:"description"`
	Confidence  float64     `json:"confidence"`
}

// PatternAnalysisResult is the full behavioral profile of a history.
type PatternAnalysisResult struct {
	Velocity         VelocityProfile   `json:"velocity"`
	TemporalPatterns []TemporalPattern `json:"temporalPatterns"`
	Anomalies        []AnomalyFlag     `json:"anomalies"`

	// VelocityRiskAdjustment is a bounded delta in [-20, 50] that the
	// orchestration layer folds into an entity's overall risk score.
	VelocityRiskAdjustment float64 `json:"velocityRiskAdjustment"`

	HasAnomalies   bool      `json:"hasAnomalies"`
	NormalBehavior bool      `json:"normalBehavior"`
	RiskLevel      RiskLevel `json:"riskLevel"`
	Confidence     float64   `json:"confidence"`
}
