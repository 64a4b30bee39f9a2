package grants

import (
	"context"

	"github.com/dmitrijs2005/dropvault/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, code string, requesterID string) (*models.AccessGrant, error)
	// Create inserts a grant only if none exists for the (code, requester)
	// pair; an existing row is left untouched and reported via the bool.
	Create(ctx context.Context, grant *models.AccessGrant) (created bool, err error)
	// Reset overwrites firstAccessAt, starting a new delivery cycle.
	Reset(ctx context.Context, grant *models.AccessGrant) error
	DeleteByCode(ctx context.Context, code string) (int64, error)
	CountByCode(ctx context.Context, code string) (int64, error)
	SelectAll(ctx context.Context) ([]*models.AccessGrant, error)
	ReplaceAll(ctx context.Context, records []*models.AccessGrant) error
}
