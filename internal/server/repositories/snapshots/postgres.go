// Package snapshots provides the PostgreSQL-backed repository for snapshot
// pointers (table name -> last confirmed remote object key).
package snapshots

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/dropvault/internal/common"
	"github.com/dmitrijs2005/dropvault/internal/dbx"
	"github.com/dmitrijs2005/dropvault/internal/server/models"
)

// PostgresRepository implements pointer storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, tableName string) (*models.SnapshotPointer, error) {
	query := `SELECT table_name, remote_key, uploaded_at FROM snapshot_pointers WHERE table_name = $1`

	var item models.SnapshotPointer
	err := r.db.QueryRowContext(ctx, query, tableName).
		Scan(&item.TableName, &item.RemoteKey, &item.UploadedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &item, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, pointer *models.SnapshotPointer) error {
	query := `
		INSERT INTO snapshot_pointers (table_name, remote_key, uploaded_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (table_name)
		DO UPDATE SET remote_key = EXCLUDED.remote_key, uploaded_at = EXCLUDED.uploaded_at;
	`
	if _, err := r.db.ExecContext(ctx, query, pointer.TableName, pointer.RemoteKey, pointer.UploadedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
