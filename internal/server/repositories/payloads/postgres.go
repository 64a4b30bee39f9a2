// Package payloads provides the PostgreSQL-backed repository for the payload
// registry table.
package payloads

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/dropvault/internal/common"
	"github.com/dmitrijs2005/dropvault/internal/dbx"
	"github.com/dmitrijs2005/dropvault/internal/server/models"
)

// PostgresRepository implements payload storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, payload *models.Payload) error {
	refs, err := json.Marshal(payload.ContentRefs)
	if err != nil {
		return fmt.Errorf("marshal content refs: %w", err)
	}

	query := `
		INSERT INTO payloads (code, name, content_refs, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (code) DO NOTHING;
	`
	res, err := r.db.ExecContext(ctx, query, payload.Code, payload.Name, refs, payload.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrCodeCollision
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) Get(ctx context.Context, code string) (*models.Payload, error) {
	query := `SELECT code, name, content_refs, created_at FROM payloads WHERE code = $1`

	var item models.Payload
	var refs []byte
	err := r.db.QueryRowContext(ctx, query, code).
		Scan(&item.Code, &item.Name, &refs, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := json.Unmarshal(refs, &item.ContentRefs); err != nil {
		return nil, fmt.Errorf("unmarshal content refs: %w", err)
	}
	return &item, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, code string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM payloads WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) SelectAll(ctx context.Context) ([]*models.Payload, error) {
	query := `SELECT code, name, content_refs, created_at FROM payloads ORDER BY seq`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select payloads: %w", err)
	}
	defer rows.Close()

	var result []*models.Payload
	for rows.Next() {
		var item models.Payload
		var refs []byte
		if err := rows.Scan(&item.Code, &item.Name, &refs, &item.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(refs, &item.ContentRefs); err != nil {
			return nil, fmt.Errorf("unmarshal content refs: %w", err)
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM payloads`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) ReplaceAll(ctx context.Context, records []*models.Payload) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM payloads`); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	for _, p := range records {
		refs, err := json.Marshal(p.ContentRefs)
		if err != nil {
			return fmt.Errorf("marshal content refs: %w", err)
		}
		query := `INSERT INTO payloads (code, name, content_refs, created_at) VALUES ($1, $2, $3, $4)`
		if _, err := r.db.ExecContext(ctx, query, p.Code, p.Name, refs, p.CreatedAt); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}
