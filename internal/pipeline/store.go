package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store owns all SQL against the pipeline_candidates table. The status
// history lives in a jsonb column appended with `history_log || entry`,
// in the same UPDATE that sets current_stage — append-and-update-current
// is one atomic statement, never two.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const candidateColumns = `id, job_id, full_name, current_stage, last_score, history_log, created_at, updated_at`

// scanCandidate reads one row into a Candidate, decoding the jsonb
// history. EffectiveStage is left equal to CurrentStage; the service
// layer folds in any speculative overlay.
func scanCandidate(row pgx.Row) (*Candidate, error) {
	var (
		c       Candidate
		stage   string
		history []byte
	)
	if err := row.Scan(
		&c.ID, &c.JobID, &c.FullName, &stage, &c.LastScore,
		&history, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.CurrentStage = Stage(stage)
	c.EffectiveStage = c.CurrentStage
	c.History = StatusHistory{}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &c.History); err != nil {
			return nil, fmt.Errorf("decode history_log for %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

// Insert creates a new candidate at SOURCED with an empty history.
func (s *Store) Insert(ctx context.Context, jobID, fullName string) (*Candidate, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO pipeline_candidates (id, job_id, full_name, current_stage, history_log)
		 VALUES ($1, $2, $3, $4, '[]'::jsonb)
		 RETURNING `+candidateColumns,
		uuid.NewString(), jobID, fullName, string(StageSourced),
	)
	c, err := scanCandidate(row)
	if err != nil {
		return nil, &PersistenceError{Op: "insert candidate", Err: err}
	}
	return c, nil
}

// Get returns a single candidate by id.
func (s *Store) Get(ctx context.Context, candidateID string) (*Candidate, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+candidateColumns+` FROM pipeline_candidates WHERE id = $1`,
		candidateID,
	)
	c, err := scanCandidate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, &PersistenceError{Op: "get candidate", Err: err}
	}
	return c, nil
}

// List returns a job's candidates, newest activity first. If stageFilter
// is non-empty only candidates currently at that stage are returned.
func (s *Store) List(ctx context.Context, jobID string, stageFilter Stage) ([]Candidate, error) {
	const base = `SELECT ` + candidateColumns + ` FROM pipeline_candidates WHERE job_id = $1`

	var (
		rows pgx.Rows
		err  error
	)
	if stageFilter != "" {
		rows, err = s.pool.Query(ctx, base+` AND current_stage = $2 ORDER BY updated_at DESC`, jobID, string(stageFilter))
	} else {
		rows, err = s.pool.Query(ctx, base+` ORDER BY updated_at DESC`, jobID)
	}
	if err != nil {
		return nil, &PersistenceError{Op: "list candidates", Err: err}
	}
	defer rows.Close()

	return collectCandidates(rows)
}

// Snapshot fetches a job's candidates in a stable order for the funnel
// engine. Creation order keeps repeated computations over an unchanged
// log byte-identical.
func (s *Store) Snapshot(ctx context.Context, jobID string) ([]Candidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+candidateColumns+` FROM pipeline_candidates
		 WHERE job_id = $1
		 ORDER BY created_at, id`,
		jobID,
	)
	if err != nil {
		return nil, &PersistenceError{Op: "snapshot candidates", Err: err}
	}
	defer rows.Close()

	return collectCandidates(rows)
}

func collectCandidates(rows pgx.Rows) ([]Candidate, error) {
	candidates := make([]Candidate, 0)
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, &PersistenceError{Op: "scan candidate", Err: err}
		}
		candidates = append(candidates, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "iterate candidates", Err: err}
	}
	return candidates, nil
}

// CurrentStage reads just the confirmed stage for one candidate.
func (s *Store) CurrentStage(ctx context.Context, candidateID string) (Stage, error) {
	var stage string
	err := s.pool.QueryRow(ctx,
		`SELECT current_stage FROM pipeline_candidates WHERE id = $1`,
		candidateID,
	).Scan(&stage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", &PersistenceError{Op: "read current stage", Err: err}
	}
	return Stage(stage), nil
}

// ApplyTransition appends one status event and sets current_stage in a
// single UPDATE, returning the new row. This is the sole mutation path
// for the event log.
func (s *Store) ApplyTransition(ctx context.Context, candidateID string, target Stage, event StatusEvent) (*Candidate, error) {
	entry, err := json.Marshal(event)
	if err != nil {
		return nil, &PersistenceError{Op: "encode status event", Err: err}
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE pipeline_candidates
		 SET current_stage = $1,
		     history_log   = history_log || $2::jsonb,
		     updated_at    = NOW()
		 WHERE id = $3
		 RETURNING `+candidateColumns,
		string(target),
		fmt.Sprintf("[%s]", entry),
		candidateID,
	)
	c, err := scanCandidate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, &PersistenceError{Op: "apply transition", Err: err}
	}
	return c, nil
}

// SetScore records the latest evaluation score for a candidate.
func (s *Store) SetScore(ctx context.Context, candidateID string, score float64) (*Candidate, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE pipeline_candidates
		 SET last_score = $1,
		     updated_at = NOW()
		 WHERE id = $2
		 RETURNING `+candidateColumns,
		score, candidateID,
	)
	c, err := scanCandidate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, &PersistenceError{Op: "set score", Err: err}
	}
	return c, nil
}

// JobIDs lists every job that has at least one candidate. Used by the
// funnel cache refresher.
func (s *Store) JobIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT job_id FROM pipeline_candidates ORDER BY job_id`,
	)
	if err != nil {
		return nil, &PersistenceError{Op: "list job ids", Err: err}
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &PersistenceError{Op: "scan job id", Err: err}
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
