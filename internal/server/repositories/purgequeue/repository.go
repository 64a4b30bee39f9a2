package purgequeue

import (
	"context"
	"time"

	"github.com/dmitrijs2005/dropvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, task *models.PurgeTask) error
	// SelectDue returns up to limit tasks with dueAt <= now, oldest first.
	// limit <= 0 means no cap.
	SelectDue(ctx context.Context, now time.Time, limit int) ([]*models.PurgeTask, error)
	SelectByPayload(ctx context.Context, code string) ([]*models.PurgeTask, error)
	SelectAll(ctx context.Context) ([]*models.PurgeTask, error)
	// Delete removes a task by id. Deleting an already-removed task is not
	// an error; the bool reports whether a row was actually removed.
	Delete(ctx context.Context, id string) (bool, error)
	ReplaceAll(ctx context.Context, records []*models.PurgeTask) error
}
