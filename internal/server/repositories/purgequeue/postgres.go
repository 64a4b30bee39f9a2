// Package purgequeue provides the PostgreSQL-backed repository for the
// durable purge-task queue.
package purgequeue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/dropvault/internal/dbx"
	"github.com/dmitrijs2005/dropvault/internal/server/models"
)

// PostgresRepository implements purge-task storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, task *models.PurgeTask) error {
	refs, err := json.Marshal(task.ArtifactRefs)
	if err != nil {
		return fmt.Errorf("marshal artifact refs: %w", err)
	}

	query := `
		INSERT INTO purge_tasks (id, target_channel, artifact_refs, due_at, source_payload_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	_, err = r.db.ExecContext(ctx, query,
		task.ID, task.TargetChannel, refs, task.DueAt, task.SourcePayloadCode, task.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SelectDue(ctx context.Context, now time.Time, limit int) ([]*models.PurgeTask, error) {
	query := `
		SELECT id, target_channel, artifact_refs, due_at, source_payload_code, created_at
		FROM purge_tasks WHERE due_at <= $1 ORDER BY due_at
	`
	args := []any{now}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select due tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (r *PostgresRepository) SelectByPayload(ctx context.Context, code string) ([]*models.PurgeTask, error) {
	query := `
		SELECT id, target_channel, artifact_refs, due_at, source_payload_code, created_at
		FROM purge_tasks WHERE source_payload_code = $1 ORDER BY due_at
	`
	rows, err := r.db.QueryContext(ctx, query, code)
	if err != nil {
		return nil, fmt.Errorf("failed to select tasks by payload: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (r *PostgresRepository) SelectAll(ctx context.Context) ([]*models.PurgeTask, error) {
	query := `
		SELECT id, target_channel, artifact_refs, due_at, source_payload_code, created_at
		FROM purge_tasks ORDER BY due_at
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM purge_tasks WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) ReplaceAll(ctx context.Context, records []*models.PurgeTask) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM purge_tasks`); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	for _, task := range records {
		if err := r.Create(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

func scanTasks(rows *sql.Rows) ([]*models.PurgeTask, error) {
	var result []*models.PurgeTask
	for rows.Next() {
		var item models.PurgeTask
		var refs []byte
		if err := rows.Scan(&item.ID, &item.TargetChannel, &refs,
			&item.DueAt, &item.SourcePayloadCode, &item.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(refs, &item.ArtifactRefs); err != nil {
			return nil, fmt.Errorf("unmarshal artifact refs: %w", err)
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
