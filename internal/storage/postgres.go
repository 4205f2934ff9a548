// Package storage persists rubrics and grading outcomes in PostgreSQL.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"classroom-grader/internal/grading"
)

// DB wraps a PostgreSQL connection pool. It is the concrete rubric source
// and submission store behind the grading pipeline.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, dsn string) (*DB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database DSN: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.Info().Msg("connected to PostgreSQL")
	return &DB{pool: pool}, nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Healthy checks database connectivity.
func (db *DB) Healthy(ctx context.Context) bool {
	return db.pool.Ping(ctx) == nil
}

// RubricItems loads the scored criteria of one assignment, in the order the
// instructor defined them.
func (db *DB) RubricItems(ctx context.Context, assignmentID string) ([]grading.RubricGradeItem, error) {
	query := `
		SELECT id, display_name, method_name, points, grade_type
		FROM rubric_items
		WHERE assignment_id = $1
		ORDER BY position, id`

	rows, err := db.pool.Query(ctx, query, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("querying rubric for assignment %s: %w", assignmentID, err)
	}
	defer rows.Close()

	var items []grading.RubricGradeItem
	for rows.Next() {
		var item grading.RubricGradeItem
		if err := rows.Scan(
			&item.ID, &item.DisplayName, &item.MethodName,
			&item.Points, &item.GradeType,
		); err != nil {
			return nil, fmt.Errorf("scanning rubric item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SaveSubmission writes a submission, its grade execution records, and its
// code snapshot in one transaction. Either all of it lands or none does.
func (db *DB) SaveSubmission(ctx context.Context, sub *grading.Submission) error {
	snapshots, err := json.Marshal(sub.Snapshots)
	if err != nil {
		return fmt.Errorf("encoding snapshots for submission %s: %w", sub.ID, err)
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO submissions (id, assignment_id, student_id, status,
			started_at, completed_at, execution_time_ms, feedback, snapshots)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sub.ID, sub.AssignmentID, sub.StudentID, sub.Status,
		sub.StartedAt, sub.CompletedAt, sub.ExecutionTime.Milliseconds(),
		truncateForDB(sub.Feedback, 65535), snapshots,
	)
	if err != nil {
		return fmt.Errorf("inserting submission %s: %w", sub.ID, err)
	}

	for _, rec := range sub.Records {
		_, err = tx.Exec(ctx, `
			INSERT INTO grade_execution_records (rubric_item_id, submission_id,
				status, points_awarded, actual, expected, error_text, execution_time_ms)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			rec.RubricItemID, sub.ID, rec.Status, rec.PointsAwarded,
			truncateForDB(rec.Actual, 65535),
			truncateForDB(rec.Expected, 65535),
			truncateForDB(rec.ErrorText, 65535),
			rec.ExecutionTime.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("inserting record for rubric item %s: %w", rec.RubricItemID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing submission %s: %w", sub.ID, err)
	}
	return nil
}

// GetSubmission retrieves a submission with its grade execution records.
func (db *DB) GetSubmission(ctx context.Context, id string) (*grading.Submission, error) {
	var (
		sub       grading.Submission
		execMS    int64
		snapshots []byte
	)
	err := db.pool.QueryRow(ctx, `
		SELECT id, assignment_id, student_id, status,
			started_at, completed_at, execution_time_ms, feedback, snapshots
		FROM submissions WHERE id = $1`, id).Scan(
		&sub.ID, &sub.AssignmentID, &sub.StudentID, &sub.Status,
		&sub.StartedAt, &sub.CompletedAt, &execMS, &sub.Feedback, &snapshots,
	)
	if err != nil {
		return nil, fmt.Errorf("querying submission %s: %w", id, err)
	}
	sub.ExecutionTime = time.Duration(execMS) * time.Millisecond
	if len(snapshots) > 0 {
		if err := json.Unmarshal(snapshots, &sub.Snapshots); err != nil {
			return nil, fmt.Errorf("decoding snapshots for submission %s: %w", id, err)
		}
	}

	rows, err := db.pool.Query(ctx, `
		SELECT rubric_item_id, status, points_awarded, actual, expected,
			error_text, execution_time_ms
		FROM grade_execution_records
		WHERE submission_id = $1
		ORDER BY rubric_item_id`, id)
	if err != nil {
		return nil, fmt.Errorf("querying records for submission %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec   grading.GradeExecutionRecord
			recMS int64
		)
		if err := rows.Scan(
			&rec.RubricItemID, &rec.Status, &rec.PointsAwarded,
			&rec.Actual, &rec.Expected, &rec.ErrorText, &recMS,
		); err != nil {
			return nil, fmt.Errorf("scanning grade record: %w", err)
		}
		rec.SubmissionID = sub.ID
		rec.ExecutionTime = time.Duration(recMS) * time.Millisecond
		sub.Records = append(sub.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListSubmissions queries submissions with optional filters.
func (db *DB) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]SubmissionSummary, error) {
	query := `
		SELECT id, assignment_id, student_id, status,
			started_at, completed_at, execution_time_ms, feedback
		FROM submissions
		WHERE ($1 = '' OR assignment_id = $1)
		  AND ($2 = '' OR student_id = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY completed_at DESC
		LIMIT $4 OFFSET $5`

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := db.pool.Query(ctx, query,
		filter.AssignmentID, filter.StudentID, filter.Status, limit, filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("querying submissions: %w", err)
	}
	defer rows.Close()

	var results []SubmissionSummary
	for rows.Next() {
		var (
			s      SubmissionSummary
			execMS int64
		)
		if err := rows.Scan(
			&s.ID, &s.AssignmentID, &s.StudentID, &s.Status,
			&s.StartedAt, &s.CompletedAt, &execMS, &s.Feedback,
		); err != nil {
			return nil, fmt.Errorf("scanning submission row: %w", err)
		}
		s.ExecutionTimeMS = execMS
		results = append(results, s)
	}
	return results, rows.Err()
}

func truncateForDB(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
