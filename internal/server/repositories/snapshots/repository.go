package snapshots

import (
	"context"

	"github.com/dmitrijs2005/dropvault/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, tableName string) (*models.SnapshotPointer, error)
	// Upsert records the pointer for a table. Callers must only do this
	// after the referenced upload has been confirmed complete.
	Upsert(ctx context.Context, pointer *models.SnapshotPointer) error
}
