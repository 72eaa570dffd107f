package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/solatis/scorekeeper/internal/types"
)

// ErrRunNotFound is returned by GetRun for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// DefaultListLimit bounds ListRuns when the caller passes no limit.
const DefaultListLimit = 50

// Run is one recorded evaluation. Exactly one of Output and Error is set.
type Run struct {
	RunID          types.RunID    `db:"run_id" json:"run_id"`
	ClientID       string         `db:"client_id" json:"client_id,omitempty"`
	ConfigChecksum string         `db:"config_checksum" json:"config_checksum"`
	Inputs         string         `db:"inputs" json:"-"`
	Output         sql.NullString `db:"output" json:"-"`
	Error          sql.NullString `db:"error" json:"-"`
	DurationMs     int64          `db:"duration_ms" json:"duration_ms"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// MarshalJSON embeds the stored inputs and output documents verbatim.
func (r Run) MarshalJSON() ([]byte, error) {
	type plain Run
	view := struct {
		plain
		Inputs types.Output `json:"inputs"`
		Output types.Output `json:"output,omitempty"`
		Error  string       `json:"error,omitempty"`
	}{plain: plain(r), Inputs: types.Output(r.Inputs), Error: r.Error.String}
	if r.Output.Valid {
		view.Output = types.Output(r.Output.String)
	}
	return json.Marshal(view)
}

// NewRun builds a run record from an evaluation result. output is ignored when
// evalErr is set.
func NewRun(clientID, checksum string, inputs types.Inputs, output *types.Context, evalErr error, elapsed time.Duration) (*Run, error) {
	in, err := json.Marshal(inputs)
	if err != nil {
		return nil, fmt.Errorf("encode inputs: %w", err)
	}

	run := &Run{
		RunID:          types.NewRunID(),
		ClientID:       clientID,
		ConfigChecksum: checksum,
		Inputs:         string(in),
		DurationMs:     elapsed.Milliseconds(),
		CreatedAt:      time.Now().UTC(),
	}
	if evalErr != nil {
		run.Error = sql.NullString{String: evalErr.Error(), Valid: true}
		return run, nil
	}

	out, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("encode output: %w", err)
	}
	run.Output = sql.NullString{String: string(out), Valid: true}
	return run, nil
}

// RunStore persists evaluation runs.
type RunStore struct {
	q *Queries
}

// NewRunStore creates a run store over loaded queries.
func NewRunStore(q *Queries) *RunStore {
	return &RunStore{q: q}
}

// RecordRun inserts run.
func (s *RunStore) RecordRun(ctx context.Context, run *Run) error {
	_, err := s.q.Exec(ctx, "insert-run",
		string(run.RunID), run.ClientID, run.ConfigChecksum, run.Inputs,
		run.Output, run.Error, run.DurationMs, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.RunID, err)
	}
	return nil
}

// GetRun loads one run by id.
func (s *RunStore) GetRun(ctx context.Context, id types.RunID) (*Run, error) {
	var run Run
	err := s.q.Get(ctx, "get-run", &run, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var runs []Run
	if err := s.q.Select(ctx, "list-runs", &runs, limit); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}
