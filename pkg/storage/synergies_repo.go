package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// chainCanon joins a chain into a stable key for the (type, ordered chain)
// uniqueness requirement ("Synergy inserts are keyed by (type,
// ordered chain); duplicates update the existing record").
func chainCanon(chain []string) string {
	return strings.Join(chain, ">")
}

// InsertSynergy implements the insert_synergy: duplicates (same
// type + ordered chain) update the existing record with a weighted-mean
// confidence, max impact, and the union of supporting pattern ids.
func (s *Store) InsertSynergy(syn Synergy, now time.Time) (string, bool, error) {
	if len(syn.Chain) != syn.Depth {
		return "", false, errors.New("chain length must equal depth")
	}
	canon := chainCanon(syn.Chain)
	chainJSON, err := json.Marshal(syn.Chain)
	if err != nil {
		return "", false, err
	}

	tx, err := s.DB.Beginx()
	if err != nil {
		return "", false, err
	}
	defer tx.Rollback()

	var existing synergyRow
	err = tx.Get(&existing, `SELECT * FROM synergies WHERE type=? AND chain_canon=?`, syn.Type, canon)

	var (
		id     string
		wasNew bool
	)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		wasNew = true
		id = uuid.NewString()
		supportingJSON, _ := json.Marshal(syn.SupportingPatterns)
		_, err = tx.Exec(`INSERT INTO synergies
			(id, type, depth, chain_canon, chain_json, impact, confidence, complexity, pattern_support, validated_by_patterns, supporting_patterns_json, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, syn.Type, syn.Depth, canon, string(chainJSON), syn.Impact, syn.Confidence, syn.Complexity, syn.PatternSupport,
			boolToInt(syn.ValidatedByPatterns), string(supportingJSON), now, now)
		if err != nil {
			return "", false, err
		}
	case err != nil:
		return "", false, err
	default:
		id = existing.ID
		mergedConfidence := (existing.Confidence + syn.Confidence) / 2
		mergedImpact := maxFloat(existing.Impact, syn.Impact)
		var existingSupport []string
		_ = json.Unmarshal([]byte(existing.SupportingPatternsJSON), &existingSupport)
		union := unionStrings(existingSupport, syn.SupportingPatterns)
		unionJSON, _ := json.Marshal(union)
		validated := existing.ValidatedByPatterns != 0 || syn.ValidatedByPatterns

		_, err = tx.Exec(`UPDATE synergies SET confidence=?, impact=?, validated_by_patterns=?, supporting_patterns_json=?, updated_at=? WHERE id=?`,
			mergedConfidence, mergedImpact, boolToInt(validated), string(unionJSON), now, id)
		if err != nil {
			return "", false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", false, err
	}
	return id, wasNew, nil
}

type synergyRow struct {
	ID                      string      `db:"id"`
	Type                    SynergyType `db:"type"`
	Depth                   int         `db:"depth"`
	ChainCanon              string      `db:"chain_canon"`
	ChainJSON               string      `db:"chain_json"`
	Impact                  float64     `db:"impact"`
	Confidence              float64     `db:"confidence"`
	Complexity              Complexity  `db:"complexity"`
	PatternSupport          float64     `db:"pattern_support"`
	ValidatedByPatterns     int         `db:"validated_by_patterns"`
	SupportingPatternsJSON  string      `db:"supporting_patterns_json"`
	CreatedAt               time.Time   `db:"created_at"`
	UpdatedAt               time.Time   `db:"updated_at"`
}

func (r synergyRow) toSynergy() (Synergy, error) {
	var chain, support []string
	if err := json.Unmarshal([]byte(r.ChainJSON), &chain); err != nil {
		return Synergy{}, err
	}
	_ = json.Unmarshal([]byte(r.SupportingPatternsJSON), &support)
	return Synergy{
		ID: r.ID, Type: r.Type, Depth: r.Depth, Chain: chain, Impact: r.Impact, Confidence: r.Confidence,
		Complexity: r.Complexity, PatternSupport: r.PatternSupport, ValidatedByPatterns: r.ValidatedByPatterns != 0,
		SupportingPatterns: support, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}, nil
}

// ListSynergies implements the list_synergies(filters with depth).
func (s *Store) ListSynergies(filterExpr string) ([]Synergy, error) {
	var rows []synergyRow
	if err := s.DB.Select(&rows, `SELECT * FROM synergies ORDER BY updated_at DESC`); err != nil {
		return nil, err
	}
	filter, err := NewJQFilter(filterExpr)
	if err != nil {
		return nil, err
	}
	out := make([]Synergy, 0, len(rows))
	for _, r := range rows {
		syn, err := r.toSynergy()
		if err != nil {
			return nil, err
		}
		ok, err := filter.Match(syn)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, syn)
		}
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
