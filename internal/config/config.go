// Package config loads and validates the engine's single YAML
// configuration file, hot-reloadable
// via pkg/shared/hotreload so an edited file takes effect on the *next*
// run without a process restart.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration is a YAML-friendly wrapper around time.Duration, accepting Go
// duration strings ("30s", "5m") the way the rest of the engine's config
// knobs are already documented.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses either a Go duration string or a bare integer
// interpreted as seconds, so "300s", "5m", and 300 all work.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err == nil {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			if secs, serr := strconv.Atoi(raw); serr == nil {
				d.Duration = time.Duration(secs) * time.Second
				return nil
			}
			return err
		}
		d.Duration = parsed
		return nil
	}
	var secs int
	if err := unmarshal(&secs); err != nil {
		return err
	}
	d.Duration = time.Duration(secs) * time.Second
	return nil
}

// ServerConfig controls the ambient health/metrics HTTP surface.
type ServerConfig struct {
	MetricsPort string `yaml:"metrics_port" validate:"required"`
	HealthPort  string `yaml:"health_port" validate:"required"`
}

// StorageConfig points at the single-writer SQLite store.
type StorageConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// EventsConfig wires the event source adapter's primary and fallback read paths.
type EventsConfig struct {
	PrimaryURL   string   `yaml:"primary_url" validate:"required,url"`
	FallbackURL  string   `yaml:"fallback_url" validate:"required,url"`
	TotalTimeout Duration `yaml:"total_timeout"`
	MaxRetries   int      `yaml:"max_retries" validate:"min=1,max=10"`
	RateLimitRPS float64  `yaml:"rate_limit_rps" validate:"gt=0"`
}

// CapabilityConfig wires the feature analyzer's device registry pull.
type CapabilityConfig struct {
	RegistryURL       string `yaml:"registry_url" validate:"required,url"`
	DeviceMinActivity int    `yaml:"device_min_activity" validate:"min=1"`
}

// LLMConfig controls the LLM adapter: provider selection plus the
// shared retry/breaker posture every provider sits behind.
type LLMConfig struct {
	Provider    string   `yaml:"provider" validate:"required,oneof=anthropic bedrock local"`
	Model       string   `yaml:"model" validate:"required"`
	Endpoint    string   `yaml:"endpoint"`
	Timeout     Duration `yaml:"timeout"`
	RetryCount  int      `yaml:"retry_count" validate:"min=0,max=10"`
	Temperature float32  `yaml:"temperature" validate:"gte=0,lte=1"`
	MaxTokens   int      `yaml:"max_tokens" validate:"min=1"`
}

// NLPConfig controls the NER and embedding adapters.
type NLPConfig struct {
	NEREndpoint       string `yaml:"ner_endpoint" validate:"required,url"`
	EmbeddingEndpoint string `yaml:"embedding_endpoint" validate:"required,url"`
	EmbeddingDim      int    `yaml:"embedding_dim" validate:"required,min=1"`
}

// PatternsConfig mirrors pkg/patterns.Config's tunables.
type PatternsConfig struct {
	MinSupport           int      `yaml:"min_support" validate:"min=1"`
	ConfidenceFloor      float64  `yaml:"confidence_floor" validate:"gte=0,lte=1"`
	CoOccurrenceWindow   Duration `yaml:"co_occurrence_window"`
	OverrideWindow       Duration `yaml:"override_window"`
	Contamination        float64  `yaml:"contamination" validate:"gte=0,lte=1"`
	EmpiricalBayesWeight float64  `yaml:"empirical_bayes_weight" validate:"gte=0"`
}

// SynergyConfig mirrors pkg/synergy.Config's tunables.
type SynergyConfig struct {
	SynergyFloor      float64 `yaml:"synergy_floor" validate:"gte=0,lte=1"`
	EdgeFloor         float64 `yaml:"edge_floor" validate:"gte=0,lte=1"`
	MinSupportChain   int     `yaml:"min_support_chain" validate:"min=1"`
	PValueChiCritical float64 `yaml:"p_value_chi_critical" validate:"gt=0"`
	EffectSizeFloor   float64 `yaml:"effect_size_floor" validate:"gte=0"`
	SimilarityFloor   float64 `yaml:"similarity_floor" validate:"gte=0,lte=1"`
}

// DeployConfig wires the deployment adapter client used by
// suggestions.Approve on suggestion approval.
type DeployConfig struct {
	EndpointURL string `yaml:"endpoint_url" validate:"required,url"`
}

// NotifyConfig controls the notification publisher. Channel may be
// empty, in which case the process wires a NoopPublisher instead of a
// SlackPublisher.
type NotifyConfig struct {
	SlackToken   string `yaml:"slack_token"`
	SlackChannel string `yaml:"slack_channel"`
}

// RunGuardConfig backs the distributed run-guard lock.
type RunGuardConfig struct {
	RedisAddr string   `yaml:"redis_addr" validate:"required"`
	LockTTL   Duration `yaml:"lock_ttl"`
}

// LoggingConfig controls the shared logrus-backed logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"required,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"required,oneof=json text"`
}

// TracingConfig toggles the OpenTelemetry stdout trace exporter the
// orchestrator's phase spans flow through. Disabled leaves the default
// no-op tracer provider installed.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name" validate:"required"`
}

// OrchestratorConfig mirrors pkg/orchestrator.Config's per-phase
// ceilings.
type OrchestratorConfig struct {
	EventWindow       Duration `yaml:"event_window"`
	FetchCeiling      Duration `yaml:"fetch_ceiling"`
	DetectorsCeiling  Duration `yaml:"detectors_ceiling"`
	SynergiesCeiling  Duration `yaml:"synergies_ceiling"`
	FeaturesCeiling   Duration `yaml:"features_ceiling"`
	ComposeCeiling    Duration `yaml:"compose_ceiling"`
	HardAbortMultiple float64  `yaml:"hard_abort_multiple" validate:"gt=0"`
	HouseholdUserID   string   `yaml:"household_user_id" validate:"required"`
	Schedule          string   `yaml:"schedule" validate:"required"` // cron expression for the daily job
}

// Config is the engine's single top-level configuration document.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Storage      StorageConfig      `yaml:"storage"`
	Events       EventsConfig       `yaml:"events"`
	Capability   CapabilityConfig   `yaml:"capability"`
	LLM          LLMConfig          `yaml:"llm"`
	NLP          NLPConfig          `yaml:"nlp"`
	Patterns     PatternsConfig     `yaml:"patterns"`
	Synergy      SynergyConfig      `yaml:"synergy"`
	Deploy       DeployConfig       `yaml:"deploy"`
	Notify       NotifyConfig       `yaml:"notify"`
	RunGuard     RunGuardConfig     `yaml:"run_guard"`
	Logging      LoggingConfig      `yaml:"logging"`
	Tracing      TracingConfig      `yaml:"tracing"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
}

var validate = validator.New()

// Load reads, parses, and validates the YAML document at path, filling
// any zero-valued tunable section with its package default before
// validation runs.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	loadFromEnv(cfg)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config pre-populated with every tunable's
// default, so a minimal YAML file only needs to set the fields it wants
// to override.
func defaultConfig() *Config {
	return &Config{
		Server:  ServerConfig{MetricsPort: "9090", HealthPort: "8080"},
		Storage: StorageConfig{Path: "insight.db"},
		Events: EventsConfig{
			TotalTimeout: Duration{20 * time.Second},
			MaxRetries:   3,
			RateLimitRPS: 20,
		},
		Capability: CapabilityConfig{DeviceMinActivity: 10},
		Deploy:     DeployConfig{EndpointURL: "http://localhost:8086"},
		LLM: LLMConfig{
			Timeout:    Duration{30 * time.Second},
			RetryCount: 3,
		},
		Patterns: PatternsConfig{
			MinSupport:           5,
			ConfidenceFloor:      0.20,
			CoOccurrenceWindow:   Duration{300 * time.Second},
			OverrideWindow:       Duration{120 * time.Second},
			Contamination:        0.10,
			EmpiricalBayesWeight: 10,
		},
		Synergy: SynergyConfig{
			SynergyFloor:      0.70,
			EdgeFloor:         0.70,
			MinSupportChain:   3,
			PValueChiCritical: 6.635,
			EffectSizeFloor:   0.10,
			SimilarityFloor:   0.30,
		},
		RunGuard: RunGuardConfig{LockTTL: Duration{10 * time.Minute}},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		Tracing:  TracingConfig{ServiceName: "insightd"},
		Orchestrator: OrchestratorConfig{
			EventWindow:       Duration{7 * 24 * time.Hour},
			FetchCeiling:      Duration{120 * time.Second},
			DetectorsCeiling:  Duration{180 * time.Second},
			SynergiesCeiling:  Duration{120 * time.Second},
			FeaturesCeiling:   Duration{60 * time.Second},
			ComposeCeiling:    Duration{90 * time.Second},
			HardAbortMultiple: 3,
			HouseholdUserID:   "household",
			Schedule:          "0 3 * * *",
		},
	}
}

// loadFromEnv overrides a handful of deployment-sensitive fields from
// environment variables, an escape hatch for secrets that should never
// live in the YAML file checked into a repo (the Slack token, primarily).
func loadFromEnv(cfg *Config) {
	if v := os.Getenv("HOMEIQ_SLACK_TOKEN"); v != "" {
		cfg.Notify.SlackToken = v
	}
	if v := os.Getenv("HOMEIQ_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("HOMEIQ_REDIS_ADDR"); v != "" {
		cfg.RunGuard.RedisAddr = v
	}
}
