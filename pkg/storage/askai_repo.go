package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CreateAskAISession persists a brand-new session at its RECEIVED state
//, so the pipeline survives a process restart mid-query.
func (s *Store) CreateAskAISession(userID, rawQuery string, now time.Time) (string, error) {
	id := uuid.NewString()
	_, err := s.DB.Exec(`INSERT INTO askai_sessions
		(id, user_id, state, raw_query, normalized_query, entities_json, ambiguities_json, clarification_count, abort_reason, suggestion_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, '', '[]', '[]', 0, '', NULL, ?, ?)`,
		id, userID, AskAIReceived, rawQuery, now, now)
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetAskAISession fetches a session by id.
func (s *Store) GetAskAISession(id string) (AskAISession, error) {
	var r askaiSessionRow
	if err := s.DB.Get(&r, `SELECT * FROM askai_sessions WHERE id=?`, id); err != nil {
		return AskAISession{}, err
	}
	return r.toSession()
}

// UpdateAskAISession persists the full mutable state of a session after a
// transition. Every transition goes through
// this single write path so the state machine's invariants only need to
// be enforced in one place.
func (s *Store) UpdateAskAISession(sess AskAISession, now time.Time) error {
	entitiesJSON, err := json.Marshal(sess.Entities)
	if err != nil {
		return err
	}
	ambiguitiesJSON, err := json.Marshal(sess.Ambiguities)
	if err != nil {
		return err
	}
	sess.UpdatedAt = now
	_, err = s.DB.Exec(`UPDATE askai_sessions SET
			state=?, normalized_query=?, entities_json=?, ambiguities_json=?,
			clarification_count=?, abort_reason=?, suggestion_id=?, updated_at=?
		WHERE id=?`,
		sess.State, sess.NormalizedQuery, string(entitiesJSON), string(ambiguitiesJSON),
		sess.ClarificationCount, sess.AbortReason, sess.SuggestionID, now, sess.ID)
	return err
}

type askaiSessionRow struct {
	ID                 string         `db:"id"`
	UserID             string         `db:"user_id"`
	State              AskAIState     `db:"state"`
	RawQuery           string         `db:"raw_query"`
	NormalizedQuery    string         `db:"normalized_query"`
	EntitiesJSON       string         `db:"entities_json"`
	AmbiguitiesJSON    string         `db:"ambiguities_json"`
	ClarificationCount int            `db:"clarification_count"`
	AbortReason        string         `db:"abort_reason"`
	SuggestionID       *string        `db:"suggestion_id"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

func (r askaiSessionRow) toSession() (AskAISession, error) {
	var entities []ResolvedEntity
	if err := json.Unmarshal([]byte(r.EntitiesJSON), &entities); err != nil {
		return AskAISession{}, err
	}
	var ambiguities []Ambiguity
	if err := json.Unmarshal([]byte(r.AmbiguitiesJSON), &ambiguities); err != nil {
		return AskAISession{}, err
	}
	return AskAISession{
		ID: r.ID, UserID: r.UserID, State: r.State, RawQuery: r.RawQuery, NormalizedQuery: r.NormalizedQuery,
		Entities: entities, Ambiguities: ambiguities, ClarificationCount: r.ClarificationCount,
		AbortReason: r.AbortReason, SuggestionID: r.SuggestionID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}, nil
}
