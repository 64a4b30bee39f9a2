// Package grants provides the PostgreSQL-backed repository for access-grant
// persistence.
package grants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/dropvault/internal/common"
	"github.com/dmitrijs2005/dropvault/internal/dbx"
	"github.com/dmitrijs2005/dropvault/internal/server/models"
)

// foreign_key_violation: the grant references a payload code that no longer
// exists, i.e. a concurrent delete-cascade won.
const fkViolationCode = "23503"

func isMissingPayload(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == fkViolationCode
}

// PostgresRepository implements grant storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, code string, requesterID string) (*models.AccessGrant, error) {
	query := `SELECT code, requester_id, first_access_at FROM access_grants WHERE code = $1 AND requester_id = $2`

	var item models.AccessGrant
	err := r.db.QueryRowContext(ctx, query, code, requesterID).
		Scan(&item.Code, &item.RequesterID, &item.FirstAccessAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &item, nil
}

// Create never overwrites an existing grant: firstAccessAt is set exactly
// once per cycle, so a concurrent duplicate insert loses silently. A
// concurrent payload delete wins outright: the insert fails its reference
// check and Create reports common.ErrorNotFound, so no grant can outlive
// its payload.
func (r *PostgresRepository) Create(ctx context.Context, grant *models.AccessGrant) (bool, error) {
	query := `
		INSERT INTO access_grants (code, requester_id, first_access_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (code, requester_id) DO NOTHING;
	`
	res, err := r.db.ExecContext(ctx, query, grant.Code, grant.RequesterID, grant.FirstAccessAt)
	if err != nil {
		if isMissingPayload(err) {
			return false, common.ErrorNotFound
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) Reset(ctx context.Context, grant *models.AccessGrant) error {
	query := `
		INSERT INTO access_grants (code, requester_id, first_access_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (code, requester_id)
		DO UPDATE SET first_access_at = EXCLUDED.first_access_at;
	`
	if _, err := r.db.ExecContext(ctx, query, grant.Code, grant.RequesterID, grant.FirstAccessAt); err != nil {
		if isMissingPayload(err) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByCode(ctx context.Context, code string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM access_grants WHERE code = $1`, code)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) CountByCode(ctx context.Context, code string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM access_grants WHERE code = $1`, code).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) SelectAll(ctx context.Context) ([]*models.AccessGrant, error) {
	query := `SELECT code, requester_id, first_access_at FROM access_grants`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select grants: %w", err)
	}
	defer rows.Close()

	var result []*models.AccessGrant
	for rows.Next() {
		var item models.AccessGrant
		if err := rows.Scan(&item.Code, &item.RequesterID, &item.FirstAccessAt); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) ReplaceAll(ctx context.Context, records []*models.AccessGrant) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM access_grants`); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	for _, g := range records {
		query := `INSERT INTO access_grants (code, requester_id, first_access_at) VALUES ($1, $2, $3)`
		if _, err := r.db.ExecContext(ctx, query, g.Code, g.RequesterID, g.FirstAccessAt); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}
