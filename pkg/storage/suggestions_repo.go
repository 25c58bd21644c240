package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// InsertSuggestion implements the draft-suggestion persistence. The
// artefact-coupling invariant is enforced here:
// a non-draft/refining/rejected status requires an artefact id.
func (s *Store) InsertSuggestion(sug Suggestion, now time.Time) (string, error) {
	if err := validateArtefactCoupling(sug); err != nil {
		return "", err
	}
	if sug.ID == "" {
		sug.ID = uuid.NewString()
	}
	devicesJSON, _ := json.Marshal(sug.DevicesInvolved)
	conversationJSON, _ := json.Marshal(sug.Conversation)
	var planJSON *string
	if sug.Plan != nil {
		b, err := json.Marshal(sug.Plan)
		if err != nil {
			return "", err
		}
		v := string(b)
		planJSON = &v
	}
	sug.CreatedAt = now

	_, err := s.DB.Exec(`INSERT INTO suggestions
		(id, status, source, description, description_source, plan_json, devices_json, confidence, score, artefact_id, refinement_count, conversation_json, created_at, yaml_generated_at, supersedes, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sug.ID, sug.Status, sug.Source, sug.Description, sug.DescriptionSource, planJSON, string(devicesJSON),
		sug.Confidence, sug.Score, sug.ArtefactID, sug.RefinementCount, string(conversationJSON), sug.CreatedAt,
		sug.YAMLGeneratedAt, sug.Supersedes, sug.UserID)
	if err != nil {
		return "", err
	}
	return sug.ID, nil
}

func validateArtefactCoupling(sug Suggestion) error {
	hasArtefact := sug.ArtefactID != nil
	deployedLike := sug.Status == SuggestionApproved || sug.Status == SuggestionDeployed || sug.Status == SuggestionSuperseded
	if hasArtefact != deployedLike {
		return errors.New("artefact presence must match status: approved/deployed/superseded iff artefact_id is set")
	}
	return nil
}

// GetSuggestion fetches a single suggestion by id.
func (s *Store) GetSuggestion(id string) (Suggestion, error) {
	var r suggestionRow
	if err := s.DB.Get(&r, `SELECT * FROM suggestions WHERE id=?`, id); err != nil {
		return Suggestion{}, err
	}
	return r.toSuggestion()
}

// ListSuggestions implements `suggestions.list(status)`, a thin
// wrapper over the general jq filter for the common case of status lookup.
func (s *Store) ListSuggestions(status SuggestionStatus) ([]Suggestion, error) {
	expr := ""
	if status != "" {
		expr = `.status == "` + string(status) + `"`
	}
	var rows []suggestionRow
	if err := s.DB.Select(&rows, `SELECT * FROM suggestions ORDER BY created_at DESC`); err != nil {
		return nil, err
	}
	filter, err := NewJQFilter(expr)
	if err != nil {
		return nil, err
	}
	out := make([]Suggestion, 0, len(rows))
	for _, r := range rows {
		sug, err := r.toSuggestion()
		if err != nil {
			return nil, err
		}
		ok, err := filter.Match(sug)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, sug)
		}
	}
	return out, nil
}

// UpdateSuggestionStatus implements `update_suggestion_status`,
// enforcing the artefact-coupling invariant on every transition.
func (s *Store) UpdateSuggestionStatus(id string, status SuggestionStatus, artefactID *string, yamlGeneratedAt *time.Time) error {
	next := Suggestion{Status: status, ArtefactID: artefactID}
	if err := validateArtefactCoupling(next); err != nil {
		return err
	}
	_, err := s.DB.Exec(`UPDATE suggestions SET status=?, artefact_id=?, yaml_generated_at=? WHERE id=?`, status, artefactID, yamlGeneratedAt, id)
	return err
}

// RefineSuggestion appends a conversation turn, bumps refinement_count,
// and replaces the description.
func (s *Store) RefineSuggestion(id string, newDescription string, turn ConversationTurn) error {
	tx, err := s.DB.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var r suggestionRow
	if err := tx.Get(&r, `SELECT * FROM suggestions WHERE id=?`, id); err != nil {
		return err
	}
	sug, err := r.toSuggestion()
	if err != nil {
		return err
	}
	sug.Conversation = append(sug.Conversation, turn)
	conversationJSON, _ := json.Marshal(sug.Conversation)

	_, err = tx.Exec(`UPDATE suggestions SET description=?, status=?, refinement_count=refinement_count+1, conversation_json=? WHERE id=?`,
		newDescription, SuggestionRefining, string(conversationJSON), id)
	if err != nil {
		return err
	}
	return tx.Commit()
}

type suggestionRow struct {
	ID                string         `db:"id"`
	Status            SuggestionStatus `db:"status"`
	Source            SuggestionSource `db:"source"`
	Description       string         `db:"description"`
	DescriptionSource string         `db:"description_source"`
	PlanJSON          sql.NullString `db:"plan_json"`
	DevicesJSON       string         `db:"devices_json"`
	Confidence        float64        `db:"confidence"`
	Score             float64        `db:"score"`
	ArtefactID        sql.NullString `db:"artefact_id"`
	RefinementCount   int            `db:"refinement_count"`
	ConversationJSON  string         `db:"conversation_json"`
	CreatedAt         time.Time      `db:"created_at"`
	YAMLGeneratedAt   sql.NullTime   `db:"yaml_generated_at"`
	Supersedes        sql.NullString `db:"supersedes"`
	UserID            string         `db:"user_id"`
}

func (r suggestionRow) toSuggestion() (Suggestion, error) {
	var devices []string
	if err := json.Unmarshal([]byte(r.DevicesJSON), &devices); err != nil {
		return Suggestion{}, err
	}
	var conversation []ConversationTurn
	if err := json.Unmarshal([]byte(r.ConversationJSON), &conversation); err != nil {
		return Suggestion{}, err
	}
	sug := Suggestion{
		ID: r.ID, Status: r.Status, Source: r.Source, Description: r.Description, DescriptionSource: r.DescriptionSource,
		DevicesInvolved: devices, Confidence: r.Confidence, Score: r.Score, RefinementCount: r.RefinementCount,
		Conversation: conversation, CreatedAt: r.CreatedAt, UserID: r.UserID,
	}
	if r.PlanJSON.Valid {
		var plan StructuredPlan
		if err := json.Unmarshal([]byte(r.PlanJSON.String), &plan); err != nil {
			return Suggestion{}, err
		}
		sug.Plan = &plan
	}
	if r.ArtefactID.Valid {
		v := r.ArtefactID.String
		sug.ArtefactID = &v
	}
	if r.YAMLGeneratedAt.Valid {
		v := r.YAMLGeneratedAt.Time
		sug.YAMLGeneratedAt = &v
	}
	if r.Supersedes.Valid {
		v := r.Supersedes.String
		sug.Supersedes = &v
	}
	return sug, nil
}
