package domain

import "time"

// Metadata is free-form caller context stored as JSON next to each row.
type Metadata map[string]string

// Example is a validated input/output pair used as generation context.
// An empty Specialty is stored as NULL and matches every specialty filter.
type Example struct {
	ID              int64     `json:"id"`
	Module          string    `json:"module"`
	Category        string    `json:"category"`
	ScenarioType    string    `json:"scenario_type"`
	Specialty       string    `json:"specialty"`
	ContentHash     string    `json:"content_hash"`
	AnonymizedInput string    `json:"anonymized_input"`
	ValidatedOutput string    `json:"validated_output"`
	Metadata        Metadata  `json:"metadata,omitempty"`
	QualityScore    float64   `json:"quality_score"`
	UsageCount      int64     `json:"usage_count"`
	CreatedAt       time.Time `json:"created_at"`
	CreatedBy       string    `json:"created_by"`
	IsActive        bool      `json:"is_active"`
}

// FeedbackRecord is one append-only validation event. IsCorrect is nil when
// the verdict is unknown.
type FeedbackRecord struct {
	ID               int64     `json:"id"`
	Module           string    `json:"module"`
	SessionID        string    `json:"session_id"`
	AISuggestion     string    `json:"ai_suggestion"`
	UserCorrection   string    `json:"user_correction"`
	FeedbackType     string    `json:"feedback_type"`
	IsCorrect        *bool     `json:"is_correct"`
	ImprovementNotes string    `json:"improvement_notes"`
	Metadata         Metadata  `json:"metadata,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UserRole         string    `json:"user_role"`
}

type Pattern struct {
	ID              int64     `json:"id"`
	Module          string    `json:"module"`
	PatternType     string    `json:"pattern_type"`
	Description     string    `json:"description"`
	Frequency       int       `json:"frequency"`
	ConfidenceScore float64   `json:"confidence_score"`
	Metadata        Metadata  `json:"metadata,omitempty"`
	DetectedAt      time.Time `json:"detected_at"`
}

type MetricSample struct {
	ID          int64     `json:"id"`
	Module      string    `json:"module"`
	MetricName  string    `json:"metric_name"`
	MetricValue float64   `json:"metric_value"`
	Metadata    Metadata  `json:"metadata,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

type MetricStat struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
	Sum     float64 `json:"sum"`
}

// Summary maps module -> metric name -> rollup.
type Summary map[string]map[string]MetricStat

// Stat returns the rollup for one metric, zero when absent.
func (s Summary) Stat(module, metric string) MetricStat {
	return s[module][metric]
}

type Insight struct {
	ID          int64     `json:"id"`
	Module      string    `json:"module"`
	InsightType string    `json:"insight_type"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Metadata    Metadata  `json:"metadata,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// ExampleQuery selects retrieval candidates. Empty Category and Specialty
// disable those filters.
type ExampleQuery struct {
	Module    string
	Category  string
	Specialty string
	Limit     int
}

// CorrectionCount is one group of identical user corrections.
type CorrectionCount struct {
	Correction string    `json:"correction"`
	Frequency  int       `json:"frequency"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
}

const (
	PatternTypeRecurringCorrection = "recurring_correction"

	FeedbackTypeValidation = "validation"

	DefaultQualityScore = 1.0
)

// Metric names emitted by the engine and its adapters.
const (
	MetricExamplesAdded        = "examples_added"
	MetricExamplesRetrieved    = "examples_retrieved"
	MetricCorrectionsNeeded    = "ai_corrections_needed"
	MetricValidationsCorrect   = "ai_validations_correct"
	MetricSuggestionsGenerated = "suggestions_generated"
	MetricExamsGenerated       = "exams_generated"
	MetricQuestionShortfall    = "question_shortfall"
)

func BoolPtr(v bool) *bool {
	return &v
}
