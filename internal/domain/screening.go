package domain

import (
	"time"
)

// Screening is the persisted outcome of running the pattern engine over
// an entity's transaction history.
type Screening struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	EntityID  string    `json:"entityId"`
	Status    string    `json:"status"` // "ALRT" or "NALT"
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`

	// Engine output
	Analysis PatternAnalysisResult `json:"analysis"`
	Hawala   HawalaDetectionResult `json:"hawala"`

	// Escalation rule results
	RuleResults []RuleResult `json:"ruleResults,omitempty"`

	// Reasons explain an ALRT status in human-readable form.
	Reasons []string `json:"reasons,omitempty"`

	// Processing metadata
	Metadata ScreeningMetadata `json:"metadata"`
}

// ScreeningMetadata contains processing information.
type ScreeningMetadata struct {
	TraceID          string `json:"traceId"`
	TransactionCount int    `json:"transactionCount"`
	HistoryMs        int64  `json:"historyMs"`
	AnalysisMs       int64  `json:"analysisMs"`
	RulesMs          int64  `json:"rulesMs"`
	TotalMs          int64  `json:"totalMs"`
	EngineVersion    string `json:"engineVersion"`
}

// Decision status constants
const (
	StatusAlert   = "ALRT" // Alert - suspicious history
	StatusNoAlert = "NALT" // No alert - history passed
)

// API-friendly status
const (
	StatusPass = "PASS"
	StatusFail = "ALERT"
)

// ScreeningResponse is the API response for a screening run.
type ScreeningResponse struct {
	ScreeningID string    `json:"screeningId"`
	EntityID    string    `json:"entityId"`
	TenantID    string    `json:"tenantId"`
	Status      string    `json:"status"` // "PASS" or "ALERT"
	Score       float64   `json:"score"`
	RiskLevel   RiskLevel `json:"riskLevel"`
	HawalaScore int       `json:"hawalaScore"`
	Reasons     []string  `json:"reasons,omitempty"`

	// Cached reports that a previous run inside the result TTL was
	// returned instead of a fresh evaluation.
	Cached bool `json:"cached,omitempty"`

	Analysis PatternAnalysisResult `json:"analysis"`
	Hawala   HawalaDetectionResult `json:"hawala"`

	Metadata ScreeningMetadata `json:"metadata"`
}

// ToResponse converts a Screening to an API response.
func (s *Screening) ToResponse() *ScreeningResponse {
	status := StatusPass
	if s.Status == StatusAlert {
		status = StatusFail
	}

	return &ScreeningResponse{
		ScreeningID: s.ID,
		EntityID:    s.EntityID,
		TenantID:    s.TenantID,
		Status:      status,
		Score:       s.Score,
		RiskLevel:   s.Analysis.RiskLevel,
		HawalaScore: s.Hawala.HawalaScore,
		Reasons:     s.Reasons,
		Analysis:    s.Analysis,
		Hawala:      s.Hawala,
		Metadata:    s.Metadata,
	}
}
