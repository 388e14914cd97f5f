// Package storagepg implements the storage-adapter collaborator (§6) over
// Postgres/CockroachDB via lib/pq, following the parameterized-query and
// transaction patterns of the teacher's session store.
package storagepg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/kestrel-run/agentcore/internal/retry"
	"github.com/kestrel-run/agentcore/pkg/models"
)

// Config holds the Postgres connection pool settings.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultConfig returns sane pool defaults.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:             dsn,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// Store implements the full storage-adapter contract: sessions, steps,
// todos, parallel tool calls, fork tasks, and checkpoints, plus a
// Transaction entry point so callers can group multiple writes atomically.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres and verifies the connection with a ping.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storagepg: dsn is required")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("storagepg: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	res := retry.Do(pingCtx, retry.Exponential(3, 200*time.Millisecond, 2*time.Second), func() error {
		return db.PingContext(pingCtx)
	})
	if res.Err != nil {
		db.Close()
		return nil, fmt.Errorf("storagepg: ping after %d attempts: %w", res.Attempts, res.Err)
	}
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Transaction runs fn inside a Postgres transaction, committing on success
// and rolling back on any error or panic.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storagepg: begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(ctx, tx)
	return err
}

// --- sessions ---

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, sess *models.Session) error {
	if sess.ID == "" {
		return fmt.Errorf("storagepg: session id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, goal, status, kind, depth, parent_session_id, parent_step_id,
			inherited_context, last_compressed_step_id, is_running, is_deleted, is_compressing,
			created_at, updated_at, last_activity_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`,
		sess.ID, sess.UserID, sess.Goal, sess.Status, sess.Kind, sess.Depth,
		nullable(sess.ParentSessionID), nullable(sess.ParentStepID), sess.InheritedContext,
		sess.LastCompressedStepID, sess.IsRunning, sess.IsDeleted, sess.IsCompressing,
		sess.CreatedAt, sess.UpdatedAt, sess.LastActivityAt,
	)
	if err != nil {
		return fmt.Errorf("storagepg: create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, goal, status, kind, depth, parent_session_id, parent_step_id,
			inherited_context, last_compressed_step_id, is_running, is_deleted, is_compressing,
			created_at, updated_at, last_activity_at
		FROM sessions WHERE id = $1
	`, id)
	return scanSession(row)
}

// UpdateSession persists the mutable fields of an existing session.
func (s *Store) UpdateSession(ctx context.Context, sess *models.Session) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status=$1, is_running=$2, is_deleted=$3, is_compressing=$4,
			last_compressed_step_id=$5, inherited_context=$6, updated_at=$7, last_activity_at=$8
		WHERE id=$9
	`, sess.Status, sess.IsRunning, sess.IsDeleted, sess.IsCompressing, sess.LastCompressedStepID,
		sess.InheritedContext, sess.UpdatedAt, sess.LastActivityAt, sess.ID)
	if err != nil {
		return fmt.Errorf("storagepg: update session: %w", err)
	}
	return requireRowsAffected(res, "session", sess.ID)
}

// DeleteSession hard-deletes a session row.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storagepg: delete session: %w", err)
	}
	return requireRowsAffected(res, "session", id)
}

// ListSessionsByUser lists non-deleted sessions for a user, most recent first.
func (s *Store) ListSessionsByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, goal, status, kind, depth, parent_session_id, parent_step_id,
			inherited_context, last_compressed_step_id, is_running, is_deleted, is_compressing,
			created_at, updated_at, last_activity_at
		FROM sessions WHERE user_id = $1 AND is_deleted = false
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("storagepg: list sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// ListAllSessions lists every non-deleted session across all users, for
// startup restoration.
func (s *Store) ListAllSessions(ctx context.Context) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, goal, status, kind, depth, parent_session_id, parent_step_id,
			inherited_context, last_compressed_step_id, is_running, is_deleted, is_compressing,
			created_at, updated_at, last_activity_at
		FROM sessions WHERE is_deleted = false
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("storagepg: list all sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	sess := &models.Session{}
	var parentSessionID, parentStepID sql.NullString
	err := row.Scan(
		&sess.ID, &sess.UserID, &sess.Goal, &sess.Status, &sess.Kind, &sess.Depth,
		&parentSessionID, &parentStepID, &sess.InheritedContext, &sess.LastCompressedStepID,
		&sess.IsRunning, &sess.IsDeleted, &sess.IsCompressing,
		&sess.CreatedAt, &sess.UpdatedAt, &sess.LastActivityAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("storagepg: session not found")
	}
	if err != nil {
		return nil, fmt.Errorf("storagepg: scan session: %w", err)
	}
	sess.ParentSessionID = parentSessionID.String
	sess.ParentStepID = parentStepID.String
	return sess, nil
}

// --- steps ---

// CreateStep inserts a new step row.
func (s *Store) CreateStep(ctx context.Context, st *models.Step) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO steps (id, session_id, step_number, action, status, discarded, parallel,
			wait_strategy, reasoning, tool_name, params, llm_prompt, llm_response,
			result_summary, error_message, started_at, completed_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`, st.ID, st.SessionID, st.StepNumber, st.Action, st.Status, st.Discarded, st.Parallel,
		st.WaitStrategy, st.Reasoning, st.ToolName, st.Params, st.LLMPrompt, st.LLMResponse,
		st.ResultSummary, st.ErrorMessage, nullTime(st.StartedAt), st.CompletedAt, st.CreatedAt)
	if err != nil {
		return fmt.Errorf("storagepg: create step: %w", err)
	}
	return nil
}

// UpdateStep persists the mutable fields of an existing step.
func (s *Store) UpdateStep(ctx context.Context, st *models.Step) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE steps SET status=$1, discarded=$2, result_summary=$3, error_message=$4,
			started_at=$5, completed_at=$6
		WHERE id=$7
	`, st.Status, st.Discarded, st.ResultSummary, st.ErrorMessage,
		nullTime(st.StartedAt), st.CompletedAt, st.ID)
	if err != nil {
		return fmt.Errorf("storagepg: update step: %w", err)
	}
	return requireRowsAffected(res, "step", st.ID)
}

// ListSteps returns a session's steps ordered by step number. When
// includeDiscarded is false, discarded steps are omitted.
func (s *Store) ListSteps(ctx context.Context, sessionID string, includeDiscarded bool) ([]*models.Step, error) {
	query := `
		SELECT id, session_id, step_number, action, status, discarded, parallel, wait_strategy,
			reasoning, tool_name, params, llm_prompt, llm_response, result_summary, error_message,
			started_at, completed_at, created_at
		FROM steps WHERE session_id = $1
	`
	if !includeDiscarded {
		query += " AND discarded = false"
	}
	query += " ORDER BY step_number ASC"

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("storagepg: list steps: %w", err)
	}
	defer rows.Close()

	var out []*models.Step
	for rows.Next() {
		st := &models.Step{}
		var startedAt sql.NullTime
		if err := rows.Scan(&st.ID, &st.SessionID, &st.StepNumber, &st.Action, &st.Status, &st.Discarded,
			&st.Parallel, &st.WaitStrategy, &st.Reasoning, &st.ToolName, &st.Params, &st.LLMPrompt,
			&st.LLMResponse, &st.ResultSummary, &st.ErrorMessage, &startedAt, &st.CompletedAt, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("storagepg: scan step: %w", err)
		}
		st.StartedAt = startedAt.Time
		out = append(out, st)
	}
	return out, rows.Err()
}

// GetLastStep returns the highest-numbered non-discarded step of a session,
// or nil if the session has none yet.
func (s *Store) GetLastStep(ctx context.Context, sessionID string) (*models.Step, error) {
	steps, err := s.ListSteps(ctx, sessionID, false)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, nil
	}
	return steps[len(steps)-1], nil
}

// MarkDiscarded flags the given step IDs as discarded in one statement.
func (s *Store) MarkDiscarded(ctx context.Context, sessionID string, stepIDs []string) error {
	if len(stepIDs) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE steps SET discarded = true WHERE session_id = $1 AND id = ANY($2)
	`, sessionID, pqStringArray(stepIDs))
	if err != nil {
		return fmt.Errorf("storagepg: mark discarded: %w", err)
	}
	return nil
}

// --- todos ---

// CreateTodos batch-inserts a plan's todo items inside a single transaction.
func (s *Store) CreateTodos(ctx context.Context, todos []*models.Todo) error {
	if len(todos) == 0 {
		return nil
	}
	return s.Transaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, td := range todos {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO todos (id, session_id, step_id, title, status, position, created_at, updated_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			`, td.ID, td.SessionID, nullable(td.StepID), td.Title, td.Status, td.Position, td.CreatedAt, td.UpdatedAt); err != nil {
				return fmt.Errorf("storagepg: create todo %s: %w", td.ID, err)
			}
		}
		return nil
	})
}

// UpdateTodos batch-updates todo statuses inside a single transaction.
func (s *Store) UpdateTodos(ctx context.Context, todos []*models.Todo) error {
	if len(todos) == 0 {
		return nil
	}
	return s.Transaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, td := range todos {
			if _, err := tx.ExecContext(ctx, `
				UPDATE todos SET status=$1, updated_at=$2 WHERE id=$3
			`, td.Status, td.UpdatedAt, td.ID); err != nil {
				return fmt.Errorf("storagepg: update todo %s: %w", td.ID, err)
			}
		}
		return nil
	})
}

// ListTodos returns a session's todo list ordered by position.
func (s *Store) ListTodos(ctx context.Context, sessionID string) ([]*models.Todo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, step_id, title, status, position, created_at, updated_at
		FROM todos WHERE session_id = $1 ORDER BY position ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("storagepg: list todos: %w", err)
	}
	defer rows.Close()

	var out []*models.Todo
	for rows.Next() {
		td := &models.Todo{}
		var stepID sql.NullString
		if err := rows.Scan(&td.ID, &td.SessionID, &stepID, &td.Title, &td.Status, &td.Position, &td.CreatedAt, &td.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storagepg: scan todo: %w", err)
		}
		td.StepID = stepID.String
		out = append(out, td)
	}
	return out, rows.Err()
}

// --- parallel tool calls ---

// CreateParallelToolCall inserts one fan-out member row.
func (s *Store) CreateParallelToolCall(ctx context.Context, ptc *models.ParallelToolCall) error {
	paramsJSON, err := json.Marshal(ptc.Params)
	if err != nil {
		return fmt.Errorf("storagepg: marshal params: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO parallel_tool_calls (id, step_id, tool_id, tool_name, params, status, result,
			error, progress, retry_count, retry_cap, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, ptc.ID, ptc.StepID, ptc.ToolID, ptc.ToolName, paramsJSON, ptc.Status, ptc.Result,
		ptc.Error, ptc.Progress, ptc.RetryCount, ptc.RetryCap, ptc.CreatedAt, ptc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("storagepg: create parallel tool call: %w", err)
	}
	return nil
}

// UpdateParallelToolCall persists the mutable progress/result fields.
func (s *Store) UpdateParallelToolCall(ctx context.Context, ptc *models.ParallelToolCall) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE parallel_tool_calls SET status=$1, result=$2, error=$3, progress=$4,
			retry_count=$5, updated_at=$6
		WHERE id=$7
	`, ptc.Status, ptc.Result, ptc.Error, ptc.Progress, ptc.RetryCount, ptc.UpdatedAt, ptc.ID)
	if err != nil {
		return fmt.Errorf("storagepg: update parallel tool call: %w", err)
	}
	return requireRowsAffected(res, "parallel_tool_call", ptc.ID)
}

// ListParallelToolCallsByStep returns a step's fan-out members.
func (s *Store) ListParallelToolCallsByStep(ctx context.Context, stepID string) ([]*models.ParallelToolCall, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, step_id, tool_id, tool_name, params, status, result, error, progress,
			retry_count, retry_cap, created_at, updated_at
		FROM parallel_tool_calls WHERE step_id = $1
	`, stepID)
	if err != nil {
		return nil, fmt.Errorf("storagepg: list parallel tool calls: %w", err)
	}
	defer rows.Close()

	var out []*models.ParallelToolCall
	for rows.Next() {
		ptc := &models.ParallelToolCall{}
		var paramsJSON []byte
		if err := rows.Scan(&ptc.ID, &ptc.StepID, &ptc.ToolID, &ptc.ToolName, &paramsJSON, &ptc.Status,
			&ptc.Result, &ptc.Error, &ptc.Progress, &ptc.RetryCount, &ptc.RetryCap, &ptc.CreatedAt, &ptc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storagepg: scan parallel tool call: %w", err)
		}
		ptc.Params = paramsJSON
		out = append(out, ptc)
	}
	return out, rows.Err()
}

// --- fork-agent tasks ---

// CreateForkTask inserts a new fork-agent task row.
func (s *Store) CreateForkTask(ctx context.Context, task *models.ForkAgentTask) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fork_agent_tasks (id, parent_session_id, parent_step_id, sub_session_id, goal,
			context_summary, depth, step_cap, timeout_seconds, status, result_summary, error_message,
			steps_executed, tokens_used, tool_calls, retry_count, created_at, updated_at, ended_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`, task.ID, task.ParentSessionID, task.ParentStepID, nullable(task.SubSessionID), task.Goal,
		task.ContextSummary, task.Depth, task.StepCap, task.TimeoutSeconds, task.Status,
		task.ResultSummary, task.ErrorMessage, task.StepsExecuted, task.TokensUsed, task.ToolCalls,
		task.RetryCount, task.CreatedAt, task.UpdatedAt, task.EndedAt)
	if err != nil {
		return fmt.Errorf("storagepg: create fork task: %w", err)
	}
	return nil
}

// UpdateForkTask persists the mutable progress/result fields.
func (s *Store) UpdateForkTask(ctx context.Context, task *models.ForkAgentTask) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE fork_agent_tasks SET sub_session_id=$1, status=$2, result_summary=$3, error_message=$4,
			steps_executed=$5, tokens_used=$6, tool_calls=$7, retry_count=$8, updated_at=$9, ended_at=$10
		WHERE id=$11
	`, nullable(task.SubSessionID), task.Status, task.ResultSummary, task.ErrorMessage,
		task.StepsExecuted, task.TokensUsed, task.ToolCalls, task.RetryCount, task.UpdatedAt, task.EndedAt, task.ID)
	if err != nil {
		return fmt.Errorf("storagepg: update fork task: %w", err)
	}
	return requireRowsAffected(res, "fork_agent_task", task.ID)
}

// ListForkTasksBySession returns a parent session's fork-agent tasks.
func (s *Store) ListForkTasksBySession(ctx context.Context, parentSessionID string) ([]*models.ForkAgentTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_session_id, parent_step_id, sub_session_id, goal, context_summary, depth,
			step_cap, timeout_seconds, status, result_summary, error_message, steps_executed,
			tokens_used, tool_calls, retry_count, created_at, updated_at, ended_at
		FROM fork_agent_tasks WHERE parent_session_id = $1 ORDER BY created_at ASC
	`, parentSessionID)
	if err != nil {
		return nil, fmt.Errorf("storagepg: list fork tasks: %w", err)
	}
	defer rows.Close()

	var out []*models.ForkAgentTask
	for rows.Next() {
		task, err := scanForkTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

// GetForkTask looks up a single fork-agent task by id.
func (s *Store) GetForkTask(ctx context.Context, id string) (*models.ForkAgentTask, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, parent_session_id, parent_step_id, sub_session_id, goal, context_summary, depth,
			step_cap, timeout_seconds, status, result_summary, error_message, steps_executed,
			tokens_used, tool_calls, retry_count, created_at, updated_at, ended_at
		FROM fork_agent_tasks WHERE id = $1
	`, id)
	return scanForkTask(row)
}

func scanForkTask(row rowScanner) (*models.ForkAgentTask, error) {
	task := &models.ForkAgentTask{}
	var subSessionID sql.NullString
	err := row.Scan(&task.ID, &task.ParentSessionID, &task.ParentStepID, &subSessionID, &task.Goal,
		&task.ContextSummary, &task.Depth, &task.StepCap, &task.TimeoutSeconds, &task.Status,
		&task.ResultSummary, &task.ErrorMessage, &task.StepsExecuted, &task.TokensUsed, &task.ToolCalls,
		&task.RetryCount, &task.CreatedAt, &task.UpdatedAt, &task.EndedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("storagepg: fork task not found")
	}
	if err != nil {
		return nil, fmt.Errorf("storagepg: scan fork task: %w", err)
	}
	task.SubSessionID = subSessionID.String
	return task, nil
}

// --- checkpoints ---

// CreateCheckpoint inserts a new compression checkpoint.
func (s *Store) CreateCheckpoint(ctx context.Context, cp *models.Checkpoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (id, session_id, step_number, summary, tokens_at_check, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, cp.ID, cp.SessionID, cp.StepNumber, cp.Summary, cp.TokensAtCheck, cp.CreatedAt)
	if err != nil {
		return fmt.Errorf("storagepg: create checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves a checkpoint by ID.
func (s *Store) GetCheckpoint(ctx context.Context, id string) (*models.Checkpoint, error) {
	cp := &models.Checkpoint{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, step_number, summary, tokens_at_check, created_at
		FROM checkpoints WHERE id = $1
	`, id).Scan(&cp.ID, &cp.SessionID, &cp.StepNumber, &cp.Summary, &cp.TokensAtCheck, &cp.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("storagepg: checkpoint not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("storagepg: get checkpoint: %w", err)
	}
	return cp, nil
}

// DeleteCheckpoint removes a checkpoint by ID.
func (s *Store) DeleteCheckpoint(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storagepg: delete checkpoint: %w", err)
	}
	return requireRowsAffected(res, "checkpoint", id)
}

// LatestCheckpoint returns the most recent checkpoint for a session, or nil
// if none exists yet.
func (s *Store) LatestCheckpoint(ctx context.Context, sessionID string) (*models.Checkpoint, error) {
	cp := &models.Checkpoint{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, step_number, summary, tokens_at_check, created_at
		FROM checkpoints WHERE session_id = $1 ORDER BY step_number DESC LIMIT 1
	`, sessionID).Scan(&cp.ID, &cp.SessionID, &cp.StepNumber, &cp.Summary, &cp.TokensAtCheck, &cp.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storagepg: latest checkpoint: %w", err)
	}
	return cp, nil
}

func requireRowsAffected(res sql.Result, kind, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storagepg: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("storagepg: %s not found: %s", kind, id)
	}
	return nil
}

func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// pqStringArray renders a Go string slice as a Postgres text[] literal,
// since the driver has no native []string binding outside pq.Array.
func pqStringArray(ss []string) string {
	out := "{"
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += `"` + s + `"`
	}
	return out + "}"
}
