package orchestrator

import "time"

// Config holds the per-phase soft ceilings and the window/abort knobs.
type Config struct {
	EventWindow time.Duration // lookback window fed to the event source adapter each run

	FetchCeiling     time.Duration // default 120s
	DetectorsCeiling time.Duration // default 180s
	SynergiesCeiling time.Duration // default 120s
	FeaturesCeiling  time.Duration // default 60s
	ComposeCeiling   time.Duration // default 90s

	// HardAbortMultiple is how many times a phase's soft ceiling it may
	// run before the orchestrator aborts it outright.
	HardAbortMultiple float64

	// HouseholdUserID is the account suggestions are composed and
	// published for. The engine has no multi-tenant device partitioning,
	// so the compose phase runs against a single configured household
	// owner rather than iterating over users.
	HouseholdUserID string
}

// DefaultConfig matches the stated per-phase soft ceilings.
func DefaultConfig() Config {
	return Config{
		EventWindow:       7 * 24 * time.Hour,
		FetchCeiling:      120 * time.Second,
		DetectorsCeiling:  180 * time.Second,
		SynergiesCeiling:  120 * time.Second,
		FeaturesCeiling:   60 * time.Second,
		ComposeCeiling:    90 * time.Second,
		HardAbortMultiple: 3,
		HouseholdUserID:   "household",
	}
}
