// store.go — Telemetry persistence backed by SQLite.
package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/replaydeck/replaydeck/internal/util"
)

// Store manages telemetry persistence.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore initializes or connects to the telemetry database and applies
// migrations.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) applyMigrations(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS telemetry_events (
            id TEXT PRIMARY KEY,
            run_id TEXT NOT NULL,
            step_index INTEGER NOT NULL,
            action_type TEXT NOT NULL,
            timestamp TEXT NOT NULL,
            evaluations_json TEXT,
            used_strategy TEXT,
            effective_confidence REAL NOT NULL DEFAULT 0,
            success INTEGER NOT NULL DEFAULT 0,
            duration_ms INTEGER NOT NULL DEFAULT 0,
            page_domain TEXT
        )`,
		`CREATE INDEX IF NOT EXISTS idx_events_run ON telemetry_events(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON telemetry_events(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_events_strategy ON telemetry_events(used_strategy)`,
		`CREATE TABLE IF NOT EXISTS run_summaries (
            run_id TEXT PRIMARY KEY,
            started_at TEXT NOT NULL,
            ended_at TEXT NOT NULL,
            pass_count INTEGER NOT NULL DEFAULT 0,
            fail_count INTEGER NOT NULL DEFAULT 0,
            strategy_usage_json TEXT,
            avg_step_duration_ms REAL NOT NULL DEFAULT 0,
            domains_json TEXT
        )`,
	}
	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

// InsertEvents writes a batch of events in one transaction.
func (s *Store) InsertEvents(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO telemetry_events (
        id, run_id, step_index, action_type, timestamp, evaluations_json,
        used_strategy, effective_confidence, success, duration_ms, page_domain
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, event := range events {
		evaluations, err := json.Marshal(event.Evaluations)
		if err != nil {
			return fmt.Errorf("marshal evaluations for %s: %w", event.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			event.ID,
			event.RunID,
			event.StepIndex,
			event.ActionType,
			util.FormatTimestamp(event.Timestamp),
			string(evaluations),
			event.UsedStrategy,
			event.EffectiveConfidence,
			boolToInt(event.Success),
			event.DurationMs,
			event.PageDomain,
		); err != nil {
			return fmt.Errorf("insert event %s: %w", event.ID, err)
		}
	}
	return tx.Commit()
}

// QueryEvents lists events matching the filter, newest first.
func (s *Store) QueryEvents(ctx context.Context, q Query) ([]Event, error) {
	var (
		clauses []string
		args    []any
	)
	if q.RunID != "" {
		clauses = append(clauses, "run_id = ?")
		args = append(args, q.RunID)
	}
	if q.StrategyType != "" {
		clauses = append(clauses, "used_strategy = ?")
		args = append(args, q.StrategyType)
	}
	if q.Success != nil {
		clauses = append(clauses, "success = ?")
		args = append(args, boolToInt(*q.Success))
	}
	if !q.From.IsZero() {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, util.FormatTimestamp(q.From))
	}
	if !q.To.IsZero() {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, util.FormatTimestamp(q.To))
	}

	query := `SELECT id, run_id, step_index, action_type, timestamp, evaluations_json,
        used_strategy, effective_confidence, success, duration_ms, page_domain
        FROM telemetry_events`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", q.Limit, q.Offset)
	} else if q.Offset > 0 {
		query += fmt.Sprintf(" LIMIT -1 OFFSET %d", q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var (
		event       Event
		timestamp   string
		evaluations sql.NullString
		success     int
	)
	if err := rows.Scan(
		&event.ID, &event.RunID, &event.StepIndex, &event.ActionType,
		&timestamp, &evaluations, &event.UsedStrategy,
		&event.EffectiveConfidence, &success, &event.DurationMs, &event.PageDomain,
	); err != nil {
		return Event{}, fmt.Errorf("scan event: %w", err)
	}
	event.Timestamp = util.ParseTimestamp(timestamp)
	event.Success = success != 0
	if evaluations.Valid && evaluations.String != "" {
		if err := json.Unmarshal([]byte(evaluations.String), &event.Evaluations); err != nil {
			return Event{}, fmt.Errorf("parse evaluations for %s: %w", event.ID, err)
		}
	}
	return event, nil
}

// SaveRun upserts a run summary.
func (s *Store) SaveRun(ctx context.Context, run RunSummary) error {
	usage, err := json.Marshal(run.StrategyUsage)
	if err != nil {
		return fmt.Errorf("marshal strategy usage: %w", err)
	}
	domains, err := json.Marshal(run.Domains)
	if err != nil {
		return fmt.Errorf("marshal domains: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO run_summaries (
        run_id, started_at, ended_at, pass_count, fail_count,
        strategy_usage_json, avg_step_duration_ms, domains_json
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID,
		util.FormatTimestamp(run.StartedAt),
		util.FormatTimestamp(run.EndedAt),
		run.PassCount,
		run.FailCount,
		string(usage),
		run.AvgStepDurationMs,
		string(domains),
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.RunID, err)
	}
	return nil
}

// ListRuns returns run summaries, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	query := `SELECT run_id, started_at, ended_at, pass_count, fail_count,
        strategy_usage_json, avg_step_duration_ms, domains_json
        FROM run_summaries ORDER BY started_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var (
			run       RunSummary
			startedAt string
			endedAt   string
			usage     sql.NullString
			domains   sql.NullString
		)
		if err := rows.Scan(&run.RunID, &startedAt, &endedAt, &run.PassCount,
			&run.FailCount, &usage, &run.AvgStepDurationMs, &domains); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt = util.ParseTimestamp(startedAt)
		run.EndedAt = util.ParseTimestamp(endedAt)
		if usage.Valid && usage.String != "" {
			_ = json.Unmarshal([]byte(usage.String), &run.StrategyUsage)
		}
		if domains.Valid && domains.String != "" {
			_ = json.Unmarshal([]byte(domains.String), &run.Domains)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Metrics aggregates per-strategy performance over a time range.
func (s *Store) Metrics(ctx context.Context, from, to time.Time) (map[string]*StrategyMetrics, error) {
	events, err := s.QueryEvents(ctx, Query{From: from, To: to})
	if err != nil {
		return nil, err
	}

	metrics := map[string]*StrategyMetrics{}
	get := func(strategyType string) *StrategyMetrics {
		m, ok := metrics[strategyType]
		if !ok {
			m = &StrategyMetrics{Type: strategyType}
			metrics[strategyType] = m
		}
		return m
	}

	confidenceSums := map[string]float64{}
	durationSums := map[string]int64{}
	for _, event := range events {
		for _, eval := range event.Evaluations {
			m := get(eval.Type)
			m.TotalEvaluations++
			if eval.Found {
				m.TimesFound++
			}
			confidenceSums[eval.Type] += eval.Confidence
			durationSums[eval.Type] += eval.DurationMs
		}
		if event.UsedStrategy != "" {
			m := get(event.UsedStrategy)
			m.TimesUsed++
			if event.Success {
				m.TimesSucceeded++
			}
		}
	}

	for strategyType, m := range metrics {
		if m.TotalEvaluations > 0 {
			m.AvgConfidence = confidenceSums[strategyType] / float64(m.TotalEvaluations)
			m.AvgEvalTimeMs = float64(durationSums[strategyType]) / float64(m.TotalEvaluations)
			m.FindRate = float64(m.TimesFound) / float64(m.TotalEvaluations)
		}
		if m.TimesUsed > 0 {
			m.SuccessRate = float64(m.TimesSucceeded) / float64(m.TimesUsed)
		}
	}
	return metrics, nil
}

// Health scores each strategy as 0.6 × successRate + 0.4 × findRate over
// the last 7 days.
func (s *Store) Health(ctx context.Context, now time.Time) (map[string]float64, error) {
	metrics, err := s.Metrics(ctx, now.AddDate(0, 0, -7), now)
	if err != nil {
		return nil, err
	}
	health := make(map[string]float64, len(metrics))
	for strategyType, m := range metrics {
		health[strategyType] = 0.6*m.SuccessRate + 0.4*m.FindRate
	}
	return health, nil
}

// Purge deletes events older than the cutoff. Returns how many were removed.
func (s *Store) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM telemetry_events WHERE timestamp < ?`,
		util.FormatTimestamp(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge events: %w", err)
	}
	return result.RowsAffected()
}

// Export returns the full JSON export document.
func (s *Store) Export(ctx context.Context, now time.Time) (*ExportDocument, error) {
	events, err := s.QueryEvents(ctx, Query{})
	if err != nil {
		return nil, err
	}
	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		return nil, err
	}

	// Stable output: oldest first.
	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.Before(runs[j].StartedAt) })

	if events == nil {
		events = []Event{}
	}
	if runs == nil {
		runs = []RunSummary{}
	}
	return &ExportDocument{
		ExportedAt: now,
		EventCount: len(events),
		Events:     events,
		Runs:       runs,
	}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
