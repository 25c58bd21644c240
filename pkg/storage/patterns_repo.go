package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wtthornton/homeiq-insight/pkg/shared/mathutil"
)

// TrendWindow is the default number of trailing snapshots used to recompute
// a pattern's cached trend.
const TrendWindow = 8

// RetentionDays is how long a Pattern is soft-retained.
const RetentionDays = 365

// TrendSlopeEpsilon below which a trend is considered "stable" rather than
// rising/falling.
const TrendSlopeEpsilon = 0.005

// UpsertPattern implements the upsert_pattern: merge confidence as
// a weighted mean of old and new, increment occurrences, append a
// PatternSnapshot, and recompute the cached trend over the last
// TrendWindow snapshots. It runs under its own transaction so a partial
// failure leaves no rows behind.
//
// A re-observation on the same UTC day as the pattern's last_seen is a
// no-op: the daily pipeline re-run over the same event window must not
// double occurrences or append a duplicate snapshot. Counts only move
// when a later day re-detects the pattern.
func (s *Store) UpsertPattern(kind PatternKind, anchor string, metadata PatternMetadata, observedConfidence float64, observedOccurrences int, now time.Time) (string, bool, error) {
	if observedConfidence < 0 || observedConfidence > 1 {
		return "", false, fmt.Errorf("observed confidence %v out of [0,1]", observedConfidence)
	}
	canon := metadata.Canonicalize()
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", false, err
	}

	tx, err := s.DB.Beginx()
	if err != nil {
		return "", false, err
	}
	defer tx.Rollback()

	var existing Pattern
	err = tx.Get(&existing, `SELECT id, confidence, occurrences, confidence_history_count, first_seen, last_seen FROM patterns WHERE kind=? AND anchor_entity_id=? AND metadata_canon=?`, kind, anchor, canon)

	var (
		id     string
		wasNew bool
	)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		wasNew = true
		id = uuid.NewString()
		_, err = tx.Exec(`INSERT INTO patterns
			(id, kind, anchor_entity_id, metadata_canon, metadata_json, confidence, occurrences, first_seen, last_seen, confidence_history_count, trend, trend_strength)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 'stable', 0)`,
			id, kind, anchor, canon, string(metaJSON), observedConfidence, observedOccurrences, now, now)
		if err != nil {
			return "", false, err
		}
	case err != nil:
		return "", false, err
	default:
		id = existing.ID
		if sameUTCDay(existing.LastSeen, now) {
			return id, false, nil
		}
		mergedConfidence := (existing.Confidence + observedConfidence) / 2
		mergedOccurrences := existing.Occurrences + observedOccurrences
		historyCount := existing.ConfidenceHistoryCount + 1

		_, err = tx.Exec(`UPDATE patterns SET confidence=?, occurrences=?, last_seen=?, confidence_history_count=?, metadata_json=? WHERE id=?`,
			mergedConfidence, mergedOccurrences, now, historyCount, string(metaJSON), id)
		if err != nil {
			return "", false, err
		}
	}

	if _, err := tx.Exec(`INSERT INTO pattern_snapshots (pattern_id, confidence, occurrences, recorded_at) VALUES (?, ?, ?, ?)`,
		id, observedConfidence, observedOccurrences, now); err != nil {
		return "", false, err
	}

	trend, strength, err := s.recomputeTrend(tx, id)
	if err != nil {
		return "", false, err
	}
	if _, err := tx.Exec(`UPDATE patterns SET trend=?, trend_strength=? WHERE id=?`, trend, strength, id); err != nil {
		return "", false, err
	}

	if err := tx.Commit(); err != nil {
		return "", false, err
	}
	return id, wasNew, nil
}

type txLike interface {
	Select(dest interface{}, query string, args ...interface{}) error
}

func (s *Store) recomputeTrend(tx txLike, patternID string) (Trend, float64, error) {
	var confidences []float64
	err := tx.Select(&confidences, `SELECT confidence FROM pattern_snapshots WHERE pattern_id=? ORDER BY recorded_at DESC LIMIT ?`, patternID, TrendWindow)
	if err != nil {
		return TrendStable, 0, err
	}
	// Snapshots come back newest-first; the regression wants chronological order.
	for i, j := 0, len(confidences)-1; i < j; i, j = i+1, j-1 {
		confidences[i], confidences[j] = confidences[j], confidences[i]
	}
	slope := mathutil.LinearRegressionSlope(confidences)
	switch {
	case slope > TrendSlopeEpsilon:
		return TrendRising, clamp01(slope), nil
	case slope < -TrendSlopeEpsilon:
		return TrendFalling, clamp01(-slope), nil
	default:
		return TrendStable, 0, nil
	}
}

// sameUTCDay reports whether a and b fall on the same UTC calendar day.
func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ListPatterns implements the list_patterns(filters): filters is a
// jq boolean expression (see JQFilter) evaluated against each row's JSON
// projection.
func (s *Store) ListPatterns(filterExpr string) ([]Pattern, error) {
	var rows []patternRow
	if err := s.DB.Select(&rows, `SELECT * FROM patterns ORDER BY last_seen DESC`); err != nil {
		return nil, err
	}
	filter, err := NewJQFilter(filterExpr)
	if err != nil {
		return nil, err
	}
	out := make([]Pattern, 0, len(rows))
	for _, r := range rows {
		p, err := r.toPattern()
		if err != nil {
			return nil, err
		}
		ok, err := filter.Match(p)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// patternRow mirrors the patterns table's physical columns (metadata
// stored as JSON, decoded lazily) so sqlx can scan it directly.
type patternRow struct {
	ID                     string      `db:"id"`
	Kind                   PatternKind `db:"kind"`
	AnchorEntityID         string      `db:"anchor_entity_id"`
	MetadataCanon          string      `db:"metadata_canon"`
	MetadataJSON           string      `db:"metadata_json"`
	Confidence             float64     `db:"confidence"`
	Occurrences            int         `db:"occurrences"`
	FirstSeen              time.Time   `db:"first_seen"`
	LastSeen               time.Time   `db:"last_seen"`
	ConfidenceHistoryCount int         `db:"confidence_history_count"`
	Trend                  Trend       `db:"trend"`
	TrendStrength          float64     `db:"trend_strength"`
}

func (r patternRow) toPattern() (Pattern, error) {
	var meta PatternMetadata
	if err := json.Unmarshal([]byte(r.MetadataJSON), &meta); err != nil {
		return Pattern{}, err
	}
	return Pattern{
		ID: r.ID, Kind: r.Kind, AnchorEntityID: r.AnchorEntityID, Metadata: meta,
		Confidence: r.Confidence, Occurrences: r.Occurrences, FirstSeen: r.FirstSeen, LastSeen: r.LastSeen,
		ConfidenceHistoryCount: r.ConfidenceHistoryCount, Trend: r.Trend, TrendStrength: r.TrendStrength,
	}, nil
}

// GetPattern fetches a single pattern by id.
func (s *Store) GetPattern(id string) (Pattern, error) {
	var r patternRow
	if err := s.DB.Get(&r, `SELECT * FROM patterns WHERE id=?`, id); err != nil {
		return Pattern{}, err
	}
	return r.toPattern()
}

// PruneOldPatterns deletes patterns whose last_seen is older than
// RetentionDays relative to now.
func (s *Store) PruneOldPatterns(now time.Time) (int64, error) {
	cutoff := now.AddDate(0, 0, -RetentionDays)
	res, err := s.DB.Exec(`DELETE FROM patterns WHERE last_seen < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PruneOldSnapshots deletes pattern snapshots older than RetentionDays
//.
func (s *Store) PruneOldSnapshots(now time.Time) (int64, error) {
	cutoff := now.AddDate(0, 0, -RetentionDays)
	res, err := s.DB.Exec(`DELETE FROM pattern_snapshots WHERE recorded_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
