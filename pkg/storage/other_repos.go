package storage

import (
	"encoding/json"
	"time"
)

// UpsertDeviceCapability implements the capability registry mirror
//. It is idempotent: the capability registry
// contract guarantees list_devices() is idempotent, and this
// upsert just replaces the row wholesale on change.
func (s *Store) UpsertDeviceCapability(dc DeviceCapability, now time.Time) error {
	capsJSON, err := json.Marshal(dc.Capabilities)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(`INSERT INTO device_capabilities (device_id, model, manufacturer, capabilities_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET model=excluded.model, manufacturer=excluded.manufacturer, capabilities_json=excluded.capabilities_json, updated_at=excluded.updated_at`,
		dc.DeviceID, dc.Model, dc.Manufacturer, string(capsJSON), now)
	return err
}

// ListDeviceCapabilities returns every known device's capability set.
func (s *Store) ListDeviceCapabilities() ([]DeviceCapability, error) {
	var rows []deviceCapabilityRow
	if err := s.DB.Select(&rows, `SELECT * FROM device_capabilities`); err != nil {
		return nil, err
	}
	out := make([]DeviceCapability, 0, len(rows))
	for _, r := range rows {
		var caps []Capability
		if err := json.Unmarshal([]byte(r.CapabilitiesJSON), &caps); err != nil {
			return nil, err
		}
		out = append(out, DeviceCapability{DeviceID: r.DeviceID, Model: r.Model, Manufacturer: r.Manufacturer, Capabilities: caps, UpdatedAt: r.UpdatedAt})
	}
	return out, nil
}

type deviceCapabilityRow struct {
	DeviceID         string    `db:"device_id"`
	Model            string    `db:"model"`
	Manufacturer     string    `db:"manufacturer"`
	CapabilitiesJSON string    `db:"capabilities_json"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// InsertFeatureUsage records one (device, capability) utilization
// observation window.
func (s *Store) InsertFeatureUsage(fu FeatureUsage) error {
	_, err := s.DB.Exec(`INSERT INTO feature_usage (device_id, capability_name, observed_used, utilization, window_start, window_end)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id, capability_name, window_start, window_end) DO UPDATE SET observed_used=excluded.observed_used, utilization=excluded.utilization`,
		fu.DeviceID, fu.CapabilityName, fu.ObservedUsed, fu.Utilization, fu.WindowStart, fu.WindowEnd)
	return err
}

// ListFeatureUsage returns every recorded FeatureUsage row for a device.
func (s *Store) ListFeatureUsage(deviceID string) ([]FeatureUsage, error) {
	var out []FeatureUsage
	err := s.DB.Select(&out, `SELECT id, device_id, capability_name, observed_used, utilization, window_start, window_end FROM feature_usage WHERE device_id=? ORDER BY window_end DESC`, deviceID)
	return out, err
}

// UpsertAlias implements the AliasMap entity (, (user_id, alias)
// unique) backing `aliases.create`.
func (s *Store) UpsertAlias(a AliasMap) error {
	_, err := s.DB.Exec(`INSERT INTO alias_map (user_id, alias, target_entity_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, alias) DO UPDATE SET target_entity_id=excluded.target_entity_id`,
		a.UserID, a.Alias, a.Target, a.CreatedAt)
	return err
}

// DeleteAlias implements `aliases.delete`.
func (s *Store) DeleteAlias(userID, alias string) error {
	_, err := s.DB.Exec(`DELETE FROM alias_map WHERE user_id=? AND alias=?`, userID, alias)
	return err
}

// ListAliases implements `aliases.list`.
func (s *Store) ListAliases(userID string) ([]AliasMap, error) {
	var out []AliasMap
	err := s.DB.Select(&out, `SELECT user_id, alias, target_entity_id, created_at FROM alias_map WHERE user_id=?`, userID)
	return out, err
}

// ResolveAlias looks up a single alias, used by the entity resolver to pre-empt the fusion
// pipeline.
func (s *Store) ResolveAlias(userID, alias string) (string, bool, error) {
	var target string
	err := s.DB.Get(&target, `SELECT target_entity_id FROM alias_map WHERE user_id=? AND alias=?`, userID, alias)
	if err != nil {
		return "", false, nil //nolint:nilerr // "not found" is not an error here
	}
	return target, true, nil
}

// InsertQueryMemory implements the retrieval cache's `remember` row persistence (the vector
// itself lives in the chromem-go collection, keyed by this row's ID).
func (s *Store) InsertQueryMemory(qm QueryMemory) error {
	resolvedJSON, err := json.Marshal(qm.ResolvedEntities)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(`INSERT INTO query_memory (id, user_id, normalized_text, vector_dim, resolved_entities_json, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		qm.ID, qm.UserID, qm.NormalizedText, qm.VectorDim, string(resolvedJSON), qm.Outcome, qm.CreatedAt)
	return err
}

// ListKeptQueryMemories returns every memory with outcome=kept, the only
// ones the retrieval index is built from.
func (s *Store) ListKeptQueryMemories(userID string) ([]QueryMemory, error) {
	var rows []queryMemoryRow
	if err := s.DB.Select(&rows, `SELECT * FROM query_memory WHERE user_id=? AND outcome=1`, userID); err != nil {
		return nil, err
	}
	out := make([]QueryMemory, 0, len(rows))
	for _, r := range rows {
		var resolved []string
		if err := json.Unmarshal([]byte(r.ResolvedEntitiesJSON), &resolved); err != nil {
			return nil, err
		}
		out = append(out, QueryMemory{
			ID: r.ID, UserID: r.UserID, NormalizedText: r.NormalizedText, VectorDim: r.VectorDim,
			ResolvedEntities: resolved, Outcome: r.Outcome != 0, CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

type queryMemoryRow struct {
	ID                   string    `db:"id"`
	UserID               string    `db:"user_id"`
	NormalizedText       string    `db:"normalized_text"`
	VectorDim            int       `db:"vector_dim"`
	ResolvedEntitiesJSON string    `db:"resolved_entities_json"`
	Outcome              int       `db:"outcome"`
	CreatedAt            time.Time `db:"created_at"`
}

// GetPreferences implements `preferences.get`, returning the
// default preference row if none was ever set.
func (s *Store) GetPreferences(userID string) (Preferences, error) {
	var p Preferences
	err := s.DB.Get(&p, `SELECT * FROM preferences WHERE user_id=?`, userID)
	if err != nil {
		return DefaultPreferences(userID), nil //nolint:nilerr // fall back to defaults on first use
	}
	return p, nil
}

// SetPreferences implements `preferences.set`. Callers validate
// MaxSuggestions in [5,50] and the enum fields before calling this; this layer only persists.
func (s *Store) SetPreferences(p Preferences) error {
	_, err := s.DB.Exec(`INSERT INTO preferences (user_id, max_suggestions, creativity_level, blueprint_preference, clarification_skip_threshold)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET max_suggestions=excluded.max_suggestions, creativity_level=excluded.creativity_level, blueprint_preference=excluded.blueprint_preference, clarification_skip_threshold=excluded.clarification_skip_threshold`,
		p.UserID, p.MaxSuggestions, p.CreativityLevel, p.BlueprintPreference, p.ClarificationSkipThreshold)
	return err
}
