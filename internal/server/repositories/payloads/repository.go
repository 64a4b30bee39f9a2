package payloads

import (
	"context"

	"github.com/dmitrijs2005/dropvault/internal/server/models"
)

type Repository interface {
	// Create inserts a new payload. A code collision is rejected with
	// common.ErrCodeCollision, never overwritten.
	Create(ctx context.Context, payload *models.Payload) error
	Get(ctx context.Context, code string) (*models.Payload, error)
	// Delete removes the payload row only. Cascades are the registry
	// service's responsibility.
	Delete(ctx context.Context, code string) error
	// SelectAll returns every payload in insertion order.
	SelectAll(ctx context.Context) ([]*models.Payload, error)
	Count(ctx context.Context) (int64, error)
	// ReplaceAll swaps the table contents for the given records. Used only
	// by the snapshot restore path.
	ReplaceAll(ctx context.Context, records []*models.Payload) error
}
