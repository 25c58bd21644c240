// Package storage is the Pattern Aggregate Store: the
// single-writer, transactional metadata store every other component reads
// and writes through. It owns every persisted entity and never
// lets another component touch persistence directly.
package storage

import "time"

// PatternKind enumerates the three detector families.
type PatternKind string

const (
	PatternKindTimeOfDay    PatternKind = "time_of_day"
	PatternKindCoOccurrence PatternKind = "co_occurrence"
	PatternKindAnomaly      PatternKind = "anomaly"
)

// Trend is the cached trend classification recomputed on every re-detection
//.
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendStable  Trend = "stable"
	TrendFalling Trend = "falling"
)

// PatternMetadata is a tagged variant in place
// of a dynamic dict: exactly one of the three pointers is set, matching
// Kind. Canonicalize() produces the stable string used for the (kind,
// anchor, metadata) uniqueness invariant.
type PatternMetadata struct {
	TimeOfDay    *TimeOfDayMetadata    `json:"time_of_day,omitempty"`
	CoOccurrence *CoOccurrenceMetadata `json:"co_occurrence,omitempty"`
	Anomaly      *AnomalyMetadata      `json:"anomaly,omitempty"`

	// CrossValidation is attached only when a detector has enough
	// per-entity history to split into folds, and is used to further
	// shrink the stored confidence
	// alongside the empirical-Bayes smoothing the detectors apply.
	CrossValidation *CrossValidationMetrics `json:"cross_validation,omitempty"`
}

// CrossValidationMetrics reports fold-to-fold stability of a pattern's
// activation rate.
type CrossValidationMetrics struct {
	Folds        int     `json:"folds"`
	MeanAccuracy float64 `json:"mean_accuracy"`
	StdAccuracy  float64 `json:"std_accuracy"`
	MeanF1       float64 `json:"mean_f1"`
	StdF1        float64 `json:"std_f1"`
}

// TimeOfDayMetadata captures a fused (hour x weekday) activation window.
type TimeOfDayMetadata struct {
	Hour        int    `json:"hour"`
	WeekdayMask uint8  `json:"weekday_mask"` // bit i set => day i (0=Sun) is in the window
	WindowWidth int    `json:"window_width"` // number of fused adjacent hour bins
}

// CoOccurrenceMetadata captures a directed A->B relationship.
type CoOccurrenceMetadata struct {
	Partner   string `json:"partner_entity_id"`
	WindowSec int    `json:"window_s"`
	Direction string `json:"direction"` // "A->B" from the anchor's perspective
}

// AnomalyMetadata captures a repeated-override signature.
type AnomalyMetadata struct {
	Signature     string `json:"signature"` // e.g. "on->off"
	RoughHour     int    `json:"rough_hour"`
	OverrideWinSec int   `json:"override_window_s"`
}

// Canonicalize returns a stable, comparable string for the (kind, anchor,
// metadata) uniqueness invariant.
func (m PatternMetadata) Canonicalize() string {
	switch {
	case m.TimeOfDay != nil:
		return jsonCanon(m.TimeOfDay.Hour, m.TimeOfDay.WeekdayMask)
	case m.CoOccurrence != nil:
		return jsonCanon(m.CoOccurrence.Partner, m.CoOccurrence.Direction)
	case m.Anomaly != nil:
		return jsonCanon(m.Anomaly.Signature, m.Anomaly.RoughHour)
	default:
		return ""
	}
}

// Pattern is the Pattern entity.
type Pattern struct {
	ID                     string          `db:"id" json:"id"`
	Kind                   PatternKind     `db:"kind" json:"kind"`
	AnchorEntityID         string          `db:"anchor_entity_id" json:"anchor_entity_id"`
	Metadata               PatternMetadata `db:"-" json:"metadata"`
	MetadataJSON           string          `db:"metadata_json" json:"-"`
	Confidence             float64         `db:"confidence" json:"confidence"`
	Occurrences            int             `db:"occurrences" json:"occurrences"`
	FirstSeen              time.Time       `db:"first_seen" json:"first_seen"`
	LastSeen               time.Time       `db:"last_seen" json:"last_seen"`
	ConfidenceHistoryCount int             `db:"confidence_history_count" json:"confidence_history_count"`
	Trend                  Trend           `db:"trend" json:"trend"`
	TrendStrength          float64         `db:"trend_strength" json:"trend_strength"`
}

// PatternSnapshot is the PatternSnapshot entity.
type PatternSnapshot struct {
	ID           int64     `db:"id" json:"id"`
	PatternID    string    `db:"pattern_id" json:"pattern_id"`
	Confidence   float64   `db:"confidence" json:"confidence"`
	Occurrences  int       `db:"occurrences" json:"occurrences"`
	RecordedAt   time.Time `db:"recorded_at" json:"recorded_at"`
}

// SynergyType enumerates the synergy families.
type SynergyType string

const (
	SynergyTypeDevicePair     SynergyType = "device_pair"
	SynergyTypeDeviceChain    SynergyType = "device_chain"
	SynergyTypeWeatherContext SynergyType = "weather_context"
	SynergyTypeEnergyContext  SynergyType = "energy_context"
	SynergyTypeEventContext   SynergyType = "event_context"
)

// Complexity classifies a synergy's priority adjustment.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Synergy is the Synergy entity.
type Synergy struct {
	ID                  string      `db:"id" json:"id"`
	Type                SynergyType `db:"type" json:"type"`
	Depth               int         `db:"depth" json:"depth"`
	Chain               []string    `db:"-" json:"chain"`
	ChainJSON           string      `db:"chain_json" json:"-"`
	Impact              float64     `db:"impact" json:"impact"`
	Confidence          float64     `db:"confidence" json:"confidence"`
	Complexity          Complexity  `db:"complexity" json:"complexity"`
	PatternSupport      float64     `db:"pattern_support" json:"pattern_support"`
	ValidatedByPatterns bool        `db:"validated_by_patterns" json:"validated_by_patterns"`
	SupportingPatterns  []string    `db:"-" json:"supporting_pattern_ids"`
	SupportingJSON      string      `db:"supporting_patterns_json" json:"-"`
	CreatedAt           time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time   `db:"updated_at" json:"updated_at"`
}

// PriorityWeights holds the configurable weights behind the priority
// formula, kept configurable rather than hard-coded.
type PriorityWeights struct {
	Impact              float64
	Confidence          float64
	PatternSupport      float64
	ValidatedBonus      float64
	ComplexityLowBonus  float64
	ComplexityHighPenalty float64
}

// DefaultPriorityWeights returns the documented default weights.
func DefaultPriorityWeights() PriorityWeights {
	return PriorityWeights{
		Impact:                0.40,
		Confidence:            0.25,
		PatternSupport:        0.25,
		ValidatedBonus:        0.10,
		ComplexityLowBonus:    0.10,
		ComplexityHighPenalty: 0.10,
	}
}

// Priority computes and clamps the synergy priority score.
func (s Synergy) Priority(w PriorityWeights) float64 {
	p := w.Impact*s.Impact + w.Confidence*s.Confidence + w.PatternSupport*s.PatternSupport
	if s.ValidatedByPatterns {
		p += w.ValidatedBonus
	}
	switch s.Complexity {
	case ComplexityLow:
		p += w.ComplexityLowBonus
	case ComplexityHigh:
		p -= w.ComplexityHighPenalty
	}
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// SuggestionStatus enumerates the Suggestion lifecycle.
type SuggestionStatus string

const (
	SuggestionDraft     SuggestionStatus = "draft"
	SuggestionRefining  SuggestionStatus = "refining"
	SuggestionApproved  SuggestionStatus = "approved"
	SuggestionRejected  SuggestionStatus = "rejected"
	SuggestionDeployed  SuggestionStatus = "deployed"
	SuggestionSuperseded SuggestionStatus = "superseded"
)

// SuggestionSource enumerates where a suggestion candidate originated
//.
type SuggestionSource string

const (
	SourcePattern SuggestionSource = "pattern"
	SourceFeature SuggestionSource = "feature"
	SourceSynergy SuggestionSource = "synergy"
	SourceAskAI   SuggestionSource = "ask_ai"
)

// StructuredPlan is the language-neutral plan object returned by the LLM
// adapter's `plan` role: triggers/conditions/actions, not a
// platform artefact.
type StructuredPlan struct {
	Triggers   []PlanTrigger   `json:"triggers" yaml:"triggers"`
	Conditions []PlanCondition `json:"conditions" yaml:"conditions"`
	Actions    []PlanAction    `json:"actions" yaml:"actions"`
}

type PlanTrigger struct {
	EntityID  string                 `json:"entity_id" yaml:"entity_id"`
	ToState   string                 `json:"to_state" yaml:"to_state"`
	Attrs     map[string]interface{} `json:"attrs,omitempty" yaml:"attrs,omitempty"`
}

type PlanCondition struct {
	EntityID string `json:"entity_id" yaml:"entity_id"`
	State    string `json:"state" yaml:"state"`
}

type PlanAction struct {
	EntityID string                 `json:"entity_id" yaml:"entity_id"`
	Service  string                 `json:"service" yaml:"service"`
	Data     map[string]interface{} `json:"data,omitempty" yaml:"data,omitempty"`
}

// ConversationTurn is one entry in a Suggestion's append-only conversation
// history.
type ConversationTurn struct {
	At   time.Time `json:"at"`
	Role string    `json:"role"` // "user" | "system"
	Text string    `json:"text"`
}

// Suggestion is the Suggestion entity.
type Suggestion struct {
	ID                 string            `db:"id" json:"id"`
	Status             SuggestionStatus  `db:"status" json:"status"`
	Source             SuggestionSource  `db:"source" json:"source"`
	Description        string            `db:"description" json:"description"`
	DescriptionSource  string            `db:"description_source" json:"description_source"` // "llm" | "template"
	Plan               *StructuredPlan   `db:"-" json:"plan,omitempty"`
	PlanJSON           *string           `db:"plan_json" json:"-"`
	DevicesInvolved    []string          `db:"-" json:"devices_involved"`
	DevicesJSON        string            `db:"devices_json" json:"-"`
	Confidence         float64           `db:"confidence" json:"confidence"`
	Score              float64           `db:"score" json:"score"`
	ArtefactID         *string           `db:"artefact_id" json:"artefact_id,omitempty"`
	RefinementCount    int               `db:"refinement_count" json:"refinement_count"`
	Conversation       []ConversationTurn `db:"-" json:"conversation_history"`
	ConversationJSON   string            `db:"conversation_json" json:"-"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
	YAMLGeneratedAt    *time.Time        `db:"yaml_generated_at" json:"yaml_generated_at,omitempty"`
	Supersedes         *string           `db:"supersedes" json:"supersedes,omitempty"`
	UserID             string            `db:"user_id" json:"user_id"`
}

// HasArtefact reports the artefact-coupling invariant: an artefact
// exists iff status is approved/deployed/superseded.
func (s Suggestion) HasArtefact() bool {
	return s.ArtefactID != nil
}

// Capability describes one feature of a device.
type Capability struct {
	Name        string `json:"name"`
	ValueDomain string `json:"value_domain"`
	Commandable bool   `json:"commandable"`
}

// DeviceCapability is the DeviceCapability entity.
type DeviceCapability struct {
	DeviceID     string       `db:"device_id" json:"device_id"`
	Model        string       `db:"model" json:"model"`
	Manufacturer string       `db:"manufacturer" json:"manufacturer"`
	Capabilities []Capability `db:"-" json:"capabilities"`
	CapabilitiesJSON string   `db:"capabilities_json" json:"-"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// FeatureUsage is the FeatureUsage entity.
type FeatureUsage struct {
	ID             int64     `db:"id" json:"id"`
	DeviceID       string    `db:"device_id" json:"device_id"`
	CapabilityName string    `db:"capability_name" json:"capability_name"`
	ObservedUsed   bool      `db:"observed_used" json:"observed_used"`
	Utilization    float64   `db:"utilization" json:"utilization"`
	WindowStart    time.Time `db:"window_start" json:"window_start"`
	WindowEnd      time.Time `db:"window_end" json:"window_end"`
}

// AliasMap is the AliasMap entity.
type AliasMap struct {
	UserID    string    `db:"user_id" json:"user_id"`
	Alias     string    `db:"alias" json:"alias"`
	Target    string    `db:"target_entity_id" json:"target_entity_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// QueryMemory is one retrieval-cache row
// shape; the vector itself lives in the chromem-go collection keyed by ID).
type QueryMemory struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	NormalizedText string   `db:"normalized_text" json:"normalized_text"`
	VectorDim     int       `db:"vector_dim" json:"vector_dim"`
	ResolvedEntities []string `db:"-" json:"resolved_entities"`
	ResolvedJSON  string    `db:"resolved_entities_json" json:"-"`
	Outcome       bool      `db:"outcome" json:"outcome"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// RunStatus enumerates AnalysisRun.status.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// PhaseTiming records one phase's wall-clock duration for an AnalysisRun.
type PhaseTiming struct {
	Phase    string        `json:"phase"`
	Duration time.Duration `json:"duration_ms"`
	Status   string        `json:"status"` // "ok" | "partial" | "failed" | "skipped"
}

// RunCounts records per-phase output counts for an AnalysisRun.
type RunCounts struct {
	Patterns    int `json:"patterns"`
	Synergies   int `json:"synergies"`
	Suggestions int `json:"suggestions"`
}

// AnalysisRun records one execution of the daily pipeline.
type AnalysisRun struct {
	ID           string        `db:"id" json:"id"`
	StartedAt    time.Time     `db:"started_at" json:"started_at"`
	FinishedAt   *time.Time    `db:"finished_at" json:"finished_at,omitempty"`
	PhaseTimings []PhaseTiming `db:"-" json:"phase_timings"`
	PhaseTimingsJSON string    `db:"phase_timings_json" json:"-"`
	Counts       RunCounts     `db:"-" json:"counts"`
	CountsJSON   string        `db:"counts_json" json:"-"`
	Status       RunStatus     `db:"status" json:"status"`
	ErrorDetail  string        `db:"error_detail" json:"error_detail,omitempty"`
	FailingPhase string        `db:"failing_phase" json:"failing_phase,omitempty"`
}

// CreativityLevel is the per-user creativity filter setting.
type CreativityLevel string

const (
	CreativityConservative CreativityLevel = "conservative"
	CreativityBalanced     CreativityLevel = "balanced"
	CreativityCreative     CreativityLevel = "creative"
)

// ConfidenceFloor returns the minimum-confidence gate for this creativity
// level.
func (c CreativityLevel) ConfidenceFloor() float64 {
	switch c {
	case CreativityConservative:
		return 0.85
	case CreativityCreative:
		return 0.60
	default:
		return 0.70
	}
}

// BlueprintPreference is the per-user template re-rank multiplier setting
//.
type BlueprintPreference string

const (
	BlueprintLow    BlueprintPreference = "low"
	BlueprintMedium BlueprintPreference = "medium"
	BlueprintHigh   BlueprintPreference = "high"
)

// Multiplier returns the synergy-template re-rank multiplier.
func (b BlueprintPreference) Multiplier() float64 {
	switch b {
	case BlueprintLow:
		return 0.5
	case BlueprintHigh:
		return 1.5
	default:
		return 1.0
	}
}

// Preferences is the per-user preference row backing
// `preferences.get/set`.
type Preferences struct {
	UserID              string              `db:"user_id" json:"user_id" validate:"required"`
	MaxSuggestions      int                 `db:"max_suggestions" json:"max_suggestions" validate:"min=5,max=50"`
	CreativityLevel     CreativityLevel     `db:"creativity_level" json:"creativity_level" validate:"oneof=conservative balanced creative"`
	BlueprintPreference BlueprintPreference `db:"blueprint_preference" json:"blueprint_preference" validate:"oneof=low medium high"`
	ClarificationSkipThreshold float64      `db:"clarification_skip_threshold" json:"clarification_skip_threshold"`
}

// DefaultPreferences matches the default max_suggestions=10 and
// the default skip-clarification threshold of 0.85.
func DefaultPreferences(userID string) Preferences {
	return Preferences{
		UserID:                     userID,
		MaxSuggestions:             10,
		CreativityLevel:            CreativityBalanced,
		BlueprintPreference:        BlueprintMedium,
		ClarificationSkipThreshold: 0.85,
	}
}

// AskAIState enumerates the Ask-AI query pipeline's per-session state
// machine.
type AskAIState string

const (
	AskAIReceived          AskAIState = "RECEIVED"
	AskAINormalized        AskAIState = "NORMALIZED"
	AskAIEntitiesExtracted AskAIState = "ENTITIES_EXTRACTED"
	AskAICacheChecked      AskAIState = "CACHE_CHECKED"
	AskAIClarifying        AskAIState = "CLARIFYING"
	AskAISuggestionDrafted AskAIState = "SUGGESTION_DRAFTED"
	AskAIResponded         AskAIState = "RESPONDED"
	AskAIAborted           AskAIState = "ABORTED"
)

// ResolvedEntity is one accepted resolver match attached to an Ask-AI
// session.
type ResolvedEntity struct {
	Span     string  `json:"span"`
	EntityID string  `json:"entity_id"`
	Score    float64 `json:"score"`
}

// Ambiguity is an unresolved span surfaced for clarification, carrying
// the candidate options a clarifying question should enumerate.
type Ambiguity struct {
	Span    string   `json:"span"`
	Options []string `json:"options"`
}

// AskAISession persists one query's state-machine progress across the
// RECEIVED..RESPONDED/ABORTED transitions, so a session survives a
// process restart.
type AskAISession struct {
	ID                 string           `db:"id" json:"id"`
	UserID             string           `db:"user_id" json:"user_id"`
	State              AskAIState       `db:"state" json:"state"`
	RawQuery           string           `db:"raw_query" json:"raw_query"`
	NormalizedQuery    string           `db:"normalized_query" json:"normalized_query"`
	Entities           []ResolvedEntity `db:"-" json:"entities"`
	EntitiesJSON       string           `db:"entities_json" json:"-"`
	Ambiguities        []Ambiguity      `db:"-" json:"ambiguities"`
	AmbiguitiesJSON    string           `db:"ambiguities_json" json:"-"`
	ClarificationCount int              `db:"clarification_count" json:"clarification_count"`
	AbortReason        string           `db:"abort_reason" json:"abort_reason,omitempty"`
	SuggestionID       *string          `db:"suggestion_id" json:"suggestion_id,omitempty"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
}

// MaxClarifications is the "bounded to 3 per session" limit.
const MaxClarifications = 3
