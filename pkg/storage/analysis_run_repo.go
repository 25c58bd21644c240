package storage

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrRunAlreadyInProgress is returned by StartAnalysisRun when another run
// is still `running`.
var ErrRunAlreadyInProgress = errors.New("another analysis run is already in progress")

// StartAnalysisRun implements the record_analysis_run for the
// start of a run: it atomically checks the single-running invariant and
// inserts the new `running` row in one transaction, so two concurrent
// callers can never both succeed.
func (s *Store) StartAnalysisRun(now time.Time) (string, error) {
	tx, err := s.DB.Beginx()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var runningCount int
	if err := tx.Get(&runningCount, `SELECT COUNT(*) FROM analysis_runs WHERE status=?`, RunRunning); err != nil {
		return "", err
	}
	if runningCount > 0 {
		return "", ErrRunAlreadyInProgress
	}

	id := uuid.NewString()
	_, err = tx.Exec(`INSERT INTO analysis_runs (id, started_at, status, phase_timings_json, counts_json)
		VALUES (?, ?, ?, '[]', '{}')`, id, now, RunRunning)
	if err != nil {
		return "", err
	}
	return id, tx.Commit()
}

// FinishAnalysisRun records the terminal state of a run.
func (s *Store) FinishAnalysisRun(id string, status RunStatus, timings []PhaseTiming, counts RunCounts, errorDetail, failingPhase string, finishedAt time.Time) error {
	timingsJSON, err := json.Marshal(timings)
	if err != nil {
		return err
	}
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(`UPDATE analysis_runs SET status=?, phase_timings_json=?, counts_json=?, error_detail=?, failing_phase=?, finished_at=? WHERE id=?`,
		status, string(timingsJSON), string(countsJSON), errorDetail, failingPhase, finishedAt, id)
	return err
}

// GetAnalysisRun implements `analysis.status()`.
func (s *Store) GetAnalysisRun(id string) (AnalysisRun, error) {
	var r analysisRunRow
	if err := s.DB.Get(&r, `SELECT * FROM analysis_runs WHERE id=?`, id); err != nil {
		return AnalysisRun{}, err
	}
	return r.toRun()
}

// LatestAnalysisRun returns the most recently started run, used by
// `analysis.status()` when no id is given.
func (s *Store) LatestAnalysisRun() (AnalysisRun, error) {
	var r analysisRunRow
	if err := s.DB.Get(&r, `SELECT * FROM analysis_runs ORDER BY started_at DESC LIMIT 1`); err != nil {
		return AnalysisRun{}, err
	}
	return r.toRun()
}

type analysisRunRow struct {
	ID               string     `db:"id"`
	StartedAt        time.Time  `db:"started_at"`
	FinishedAt       *time.Time `db:"finished_at"`
	PhaseTimingsJSON string     `db:"phase_timings_json"`
	CountsJSON       string     `db:"counts_json"`
	Status           RunStatus  `db:"status"`
	ErrorDetail      string     `db:"error_detail"`
	FailingPhase     string     `db:"failing_phase"`
}

func (r analysisRunRow) toRun() (AnalysisRun, error) {
	var timings []PhaseTiming
	if err := json.Unmarshal([]byte(r.PhaseTimingsJSON), &timings); err != nil {
		return AnalysisRun{}, err
	}
	var counts RunCounts
	if err := json.Unmarshal([]byte(r.CountsJSON), &counts); err != nil {
		return AnalysisRun{}, err
	}
	return AnalysisRun{
		ID: r.ID, StartedAt: r.StartedAt, FinishedAt: r.FinishedAt, PhaseTimings: timings, Counts: counts,
		Status: r.Status, ErrorDetail: r.ErrorDetail, FailingPhase: r.FailingPhase,
	}, nil
}
