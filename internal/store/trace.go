package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/praxislabs/tenet/internal/domain"
)

const traceColumns = `id, task_summary, problem_description, tool_calls, intermediate_thoughts, final_answer, outcome, duration_ms, model_used, session_id, agent_id, tags, triples, context, distilled_at, created_at`

type TraceStore struct {
	db *pgxpool.Pool
}

func NewTraceStore(db *pgxpool.Pool) *TraceStore {
	return &TraceStore{db: db}
}

func (s *TraceStore) Create(ctx context.Context, t *domain.Trace) error {
	toolCallsJSON, err := json.Marshal(emptyIfNilToolCalls(t.ToolCalls))
	if err != nil {
		return fmt.Errorf("marshal tool calls: %w", err)
	}
	thoughtsJSON, err := json.Marshal(emptyIfNilStrings(t.IntermediateThoughts))
	if err != nil {
		return fmt.Errorf("marshal thoughts: %w", err)
	}
	outcomeJSON, err := json.Marshal(t.Outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	tagsJSON, err := json.Marshal(emptyIfNilStrings(t.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	if t.Triples == nil {
		t.Triples = []domain.Triple{}
	}
	triplesJSON, err := json.Marshal(t.Triples)
	if err != nil {
		return fmt.Errorf("marshal triples: %w", err)
	}
	var contextJSON []byte
	if t.Context != nil {
		if contextJSON, err = json.Marshal(t.Context); err != nil {
			return fmt.Errorf("marshal context: %w", err)
		}
	}

	return s.db.QueryRow(ctx,
		`INSERT INTO traces (task_summary, problem_description, tool_calls, intermediate_thoughts, final_answer, outcome, duration_ms, model_used, session_id, agent_id, tags, triples, context)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id, created_at`,
		t.TaskSummary, t.ProblemDescription, toolCallsJSON, thoughtsJSON, t.FinalAnswer, outcomeJSON,
		t.DurationMs, t.ModelUsed, t.SessionID, t.AgentID, tagsJSON, triplesJSON, contextJSON,
	).Scan(&t.ID, &t.CreatedAt)
}

func (s *TraceStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Trace, error) {
	row := s.db.QueryRow(ctx, `SELECT `+traceColumns+` FROM traces WHERE id = $1`, id)
	t, err := scanTrace(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

func (s *TraceStore) List(ctx context.Context) ([]domain.Trace, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+traceColumns+` FROM traces ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list traces: %w", err)
	}
	defer rows.Close()

	return scanTraces(rows)
}

func (s *TraceStore) Search(ctx context.Context, q domain.TraceQuery) ([]domain.Trace, error) {
	var conditions []string
	var args []any

	if len(q.Tags) > 0 {
		conditions = append(conditions, fmt.Sprintf("tags ?| $%d", len(args)+1))
		args = append(args, q.Tags)
	}

	if q.Outcome != nil {
		conditions = append(conditions, fmt.Sprintf("outcome->>'status' = $%d", len(args)+1))
		args = append(args, string(*q.Outcome))
	}

	if q.Model != "" {
		conditions = append(conditions, fmt.Sprintf("model_used = $%d", len(args)+1))
		args = append(args, q.Model)
	}

	if q.TimeRange != nil {
		if !q.TimeRange.From.IsZero() {
			conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)+1))
			args = append(args, q.TimeRange.From)
		}
		if !q.TimeRange.To.IsZero() {
			conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)+1))
			args = append(args, q.TimeRange.To)
		}
	}

	query := `SELECT ` + traceColumns + ` FROM traces`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, q.Limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search traces: %w", err)
	}
	defer rows.Close()

	return scanTraces(rows)
}

func (s *TraceStore) CountUndistilled(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM traces WHERE distilled_at IS NULL`).Scan(&count)
	return count, err
}

func (s *TraceStore) ListUndistilled(ctx context.Context, limit int) ([]domain.Trace, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+traceColumns+` FROM traces WHERE distilled_at IS NULL ORDER BY created_at ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list undistilled traces: %w", err)
	}
	defer rows.Close()

	return scanTraces(rows)
}

func (s *TraceStore) MarkDistilled(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE traces SET distilled_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func emptyIfNilToolCalls(calls []domain.ToolCall) []domain.ToolCall {
	if calls == nil {
		return []domain.ToolCall{}
	}
	return calls
}

func scanTrace(row pgx.Row) (*domain.Trace, error) {
	t := &domain.Trace{}
	var toolCallsJSON, thoughtsJSON, outcomeJSON, tagsJSON, triplesJSON, contextJSON []byte

	err := row.Scan(
		&t.ID, &t.TaskSummary, &t.ProblemDescription, &toolCallsJSON, &thoughtsJSON,
		&t.FinalAnswer, &outcomeJSON, &t.DurationMs, &t.ModelUsed, &t.SessionID,
		&t.AgentID, &tagsJSON, &triplesJSON, &contextJSON, &t.DistilledAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(toolCallsJSON) > 0 {
		if err := json.Unmarshal(toolCallsJSON, &t.ToolCalls); err != nil {
			return nil, fmt.Errorf("unmarshal tool calls: %w", err)
		}
	}
	if len(thoughtsJSON) > 0 {
		if err := json.Unmarshal(thoughtsJSON, &t.IntermediateThoughts); err != nil {
			return nil, fmt.Errorf("unmarshal thoughts: %w", err)
		}
	}
	if len(outcomeJSON) > 0 {
		if err := json.Unmarshal(outcomeJSON, &t.Outcome); err != nil {
			return nil, fmt.Errorf("unmarshal outcome: %w", err)
		}
	}
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &t.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	if len(triplesJSON) > 0 {
		if err := json.Unmarshal(triplesJSON, &t.Triples); err != nil {
			return nil, fmt.Errorf("unmarshal triples: %w", err)
		}
	}
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &t.Context); err != nil {
			return nil, fmt.Errorf("unmarshal context: %w", err)
		}
	}
	return t, nil
}

func scanTraces(rows pgx.Rows) ([]domain.Trace, error) {
	var traces []domain.Trace
	for rows.Next() {
		t, err := scanTrace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		traces = append(traces, *t)
	}
	return traces, rows.Err()
}
