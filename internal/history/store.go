package history

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fleetcost/rightsize/internal/evaluation"
	"github.com/fleetcost/rightsize/internal/pipeline"
)

// Store provides database operations for the run archive.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ArchiveRuns persists a batch of completed runs: the run row, its
// recommendations, and its trace entries, all in one transaction per
// batch. It is a no-op when runs is empty.
func (s *Store) ArchiveRuns(ctx context.Context, runs []*pipeline.Result) error {
	if len(runs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning archive transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, run := range runs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO runs
				(id, query, state, response, vm_count, total_current_cost_usd,
				 total_recommended_cost_usd, total_savings_usd, average_savings_percent,
				 started_at, finished_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO NOTHING`,
			run.RunID, run.Query, string(run.State), run.Response,
			run.Summary.VMCount, run.Summary.TotalCurrentCost,
			run.Summary.TotalRecommendedCost, run.Summary.TotalSavings,
			run.Summary.AverageSavingsPercent,
			run.StartedAt, run.FinishedAt,
		); err != nil {
			return fmt.Errorf("inserting run %s: %w", run.RunID, err)
		}

		for _, rec := range run.Recommendations {
			if _, err := tx.Exec(ctx,
				`INSERT INTO recommendations
					(run_id, vm_id, current_sku, current_cost_usd,
					 recommended_sku, recommended_cost_usd, savings_usd, note)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (run_id, vm_id) DO NOTHING`,
				run.RunID, rec.VMID, rec.CurrentSKU, rec.CurrentCost,
				rec.RecommendedSKU, rec.RecommendedCost, rec.Savings, rec.Note,
			); err != nil {
				return fmt.Errorf("inserting recommendation for %s: %w", rec.VMID, err)
			}
		}

		if run.Trace == nil {
			continue
		}
		for _, call := range run.Trace.Calls() {
			args, err := json.Marshal(call.Args)
			if err != nil {
				args = []byte("{}")
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO tool_calls
					(run_id, seq, tool, args, output, failed, timestamp)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (run_id, seq) DO NOTHING`,
				run.RunID, call.Seq, call.Tool, args, call.Output, call.Failed, call.Timestamp,
			); err != nil {
				return fmt.Errorf("inserting tool call %d of run %s: %w", call.Seq, run.RunID, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing archive transaction: %w", err)
	}
	return nil
}

// GetRun returns one archived run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	var run RunRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, query, state, response, vm_count, total_current_cost_usd,
			total_recommended_cost_usd, total_savings_usd, average_savings_percent,
			started_at, finished_at
		FROM runs WHERE id = $1`, id,
	).Scan(
		&run.ID, &run.Query, &run.State, &run.Response, &run.VMCount,
		&run.TotalCurrentCost, &run.TotalRecommendedCost, &run.TotalSavings,
		&run.AverageSavingsPercent, &run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("querying run %s: %w", id, err)
	}
	return &run, nil
}

// ListRuns returns a page of archived runs, newest first. The cursor
// encodes "started_at|id"; an empty next cursor means no more pages.
func (s *Store) ListRuns(ctx context.Context, q ListQuery) ([]*RunRecord, string, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	where, args := buildWhereClause(q)

	if q.Cursor != "" {
		ts, id, err := decodeCursor(q.Cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", err)
		}
		n := len(args)
		if where == "" {
			where = " WHERE"
		} else {
			where += " AND"
		}
		where += fmt.Sprintf(" (started_at, id) < ($%d, $%d)", n+1, n+2)
		args = append(args, ts, id)
	}

	query := `SELECT id, query, state, response, vm_count, total_current_cost_usd,
		total_recommended_cost_usd, total_savings_usd, average_savings_percent,
		started_at, finished_at
	FROM runs` + where +
		` ORDER BY started_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, limit+1)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		var run RunRecord
		if err := rows.Scan(
			&run.ID, &run.Query, &run.State, &run.Response, &run.VMCount,
			&run.TotalCurrentCost, &run.TotalRecommendedCost, &run.TotalSavings,
			&run.AverageSavingsPercent, &run.StartedAt, &run.FinishedAt,
		); err != nil {
			return nil, "", fmt.Errorf("scanning run row: %w", err)
		}
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterating run rows: %w", err)
	}

	var nextCursor string
	if len(runs) > limit {
		last := runs[limit-1]
		nextCursor = encodeCursor(last.StartedAt, last.ID)
		runs = runs[:limit]
	}

	return runs, nextCursor, nil
}

// ListRecommendations returns a run's recommendations in VM order.
func (s *Store) ListRecommendations(ctx context.Context, runID string) ([]*RecommendationRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, vm_id, current_sku, current_cost_usd,
			recommended_sku, recommended_cost_usd, savings_usd, note
		FROM recommendations WHERE run_id = $1 ORDER BY vm_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing recommendations: %w", err)
	}
	defer rows.Close()

	var recs []*RecommendationRecord
	for rows.Next() {
		var rec RecommendationRecord
		if err := rows.Scan(
			&rec.RunID, &rec.VMID, &rec.CurrentSKU, &rec.CurrentCost,
			&rec.RecommendedSKU, &rec.RecommendedCost, &rec.Savings, &rec.Note,
		); err != nil {
			return nil, fmt.Errorf("scanning recommendation row: %w", err)
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// ListToolCalls returns a run's trace entries in sequence order.
func (s *Store) ListToolCalls(ctx context.Context, runID string) ([]*ToolCallRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, seq, tool, args, output, failed, timestamp
		FROM tool_calls WHERE run_id = $1 ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing tool calls: %w", err)
	}
	defer rows.Close()

	var calls []*ToolCallRecord
	for rows.Next() {
		var call ToolCallRecord
		if err := rows.Scan(
			&call.RunID, &call.Seq, &call.Tool, &call.Args,
			&call.Output, &call.Failed, &call.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scanning tool call row: %w", err)
		}
		calls = append(calls, &call)
	}
	return calls, rows.Err()
}

// SaveEvaluation upserts a run's metric results. Re-evaluating a run
// replaces its previous scores.
func (s *Store) SaveEvaluation(ctx context.Context, runID string, results map[string]evaluation.Result) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning evaluation transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	for metric, res := range results {
		if _, err := tx.Exec(ctx,
			`INSERT INTO evaluations (run_id, metric, score, passed, reason, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (run_id, metric) DO UPDATE SET
				score = EXCLUDED.score,
				passed = EXCLUDED.passed,
				reason = EXCLUDED.reason,
				created_at = EXCLUDED.created_at`,
			runID, metric, res.Score, res.Passed, res.Reason, now,
		); err != nil {
			return fmt.Errorf("upserting evaluation %s for run %s: %w", metric, runID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing evaluation transaction: %w", err)
	}
	return nil
}

// GetEvaluation returns a run's stored metric results, keyed by metric
// name. An unevaluated run yields an empty map.
func (s *Store) GetEvaluation(ctx context.Context, runID string) (map[string]EvaluationRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, metric, score, passed, reason, created_at
		FROM evaluations WHERE run_id = $1`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying evaluations: %w", err)
	}
	defer rows.Close()

	results := make(map[string]EvaluationRecord)
	for rows.Next() {
		var rec EvaluationRecord
		if err := rows.Scan(&rec.RunID, &rec.Metric, &rec.Score, &rec.Passed, &rec.Reason, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning evaluation row: %w", err)
		}
		results[rec.Metric] = rec
	}
	return results, rows.Err()
}

// buildWhereClause constructs a WHERE clause and positional arguments
// from a ListQuery. The returned string starts with " WHERE" or is empty.
func buildWhereClause(q ListQuery) (string, []any) {
	var conditions []string
	var args []any

	if q.State != "" {
		args = append(args, q.State)
		conditions = append(conditions, fmt.Sprintf("state = $%d", len(args)))
	}
	if !q.From.IsZero() {
		args = append(args, q.From)
		conditions = append(conditions, fmt.Sprintf("started_at >= $%d", len(args)))
	}
	if !q.To.IsZero() {
		args = append(args, q.To)
		conditions = append(conditions, fmt.Sprintf("started_at <= $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", nil
	}

	return " WHERE " + strings.Join(conditions, " AND "), args
}

// encodeCursor encodes a timestamp and id into an opaque cursor string.
func encodeCursor(ts time.Time, id string) string {
	raw := ts.Format(time.RFC3339Nano) + "|" + id
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// decodeCursor decodes an opaque cursor string into a timestamp and id.
func decodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("decoding cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("malformed cursor")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("parsing cursor timestamp: %w", err)
	}
	return ts, parts[1], nil
}
