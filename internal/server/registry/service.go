// Package registry implements the payload registry: codes map to ordered,
// immutable bundles of content references.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/dropvault/internal/common"
	"github.com/dmitrijs2005/dropvault/internal/dbx"
	"github.com/dmitrijs2005/dropvault/internal/logging"
	"github.com/dmitrijs2005/dropvault/internal/server/models"
	"github.com/dmitrijs2005/dropvault/internal/server/purge"
	"github.com/dmitrijs2005/dropvault/internal/server/repositories/repomanager"
)

// codeSizeBytes gives 128 bits of entropy per share code.
const codeSizeBytes = 16

// PendingTaskExecutor runs a payload's queued purge tasks ahead of schedule.
// Satisfied by *purge.Service.
type PendingTaskExecutor interface {
	ExecuteForPayload(ctx context.Context, sourcePayloadCode string) ([]purge.ExecutionResult, error)
}

// PayloadStatus pairs a payload with how many requesters hold a grant on it.
type PayloadStatus struct {
	Payload     *models.Payload
	AccessCount int64
}

type Service struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	purger PendingTaskExecutor
	logger logging.Logger
}

func NewService(db *sql.DB, repos repomanager.RepositoryManager, purger PendingTaskExecutor, logger logging.Logger) *Service {
	return &Service{
		db:     db,
		repos:  repos,
		purger: purger,
		logger: logger.With("module", "registry"),
	}
}

// Create issues a fresh unguessable code and persists the payload. A bundle
// with no content refs is rejected; a code collision (vanishingly unlikely)
// is rejected rather than overwritten.
func (s *Service) Create(ctx context.Context, name string, contentRefs []string) (*models.Payload, error) {
	if len(contentRefs) == 0 {
		return nil, fmt.Errorf("%w: payload needs at least one content ref", common.ErrValidation)
	}

	code, err := common.MakeRandURLSafeString(codeSizeBytes)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}

	payload := &models.Payload{
		Code:        code,
		Name:        name,
		ContentRefs: contentRefs,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.repos.Payloads(s.db).Create(ctx, payload); err != nil {
		return nil, fmt.Errorf("persist payload: %w", err)
	}

	s.logger.Info(ctx, "payload created", "code", code, "name", name, "refs", len(contentRefs))
	return payload, nil
}

// Resolve returns the payload for a code, or common.ErrorNotFound.
func (s *Service) Resolve(ctx context.Context, code string) (*models.Payload, error) {
	return s.repos.Payloads(s.db).Get(ctx, code)
}

// List returns every payload in insertion order.
func (s *Service) List(ctx context.Context) ([]*models.Payload, error) {
	return s.repos.Payloads(s.db).SelectAll(ctx)
}

// Status returns the operator view: payloads in insertion order with their
// grant counts.
func (s *Service) Status(ctx context.Context) ([]PayloadStatus, error) {
	all, err := s.repos.Payloads(s.db).SelectAll(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]PayloadStatus, 0, len(all))
	for _, p := range all {
		n, err := s.repos.Grants(s.db).CountByCode(ctx, p.Code)
		if err != nil {
			return nil, err
		}
		result = append(result, PayloadStatus{Payload: p, AccessCount: n})
	}
	return result, nil
}

// Delete removes the payload and cascades its access grants in one
// transaction, then executes the payload's pending purge tasks immediately
// so already-delivered copies are revoked rather than orphaned.
func (s *Service) Delete(ctx context.Context, code string) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		// Grants go first so the removed count is observable; the schema
		// would cascade them with the payload row anyway.
		n, err := s.repos.Grants(tx).DeleteByCode(ctx, code)
		if err != nil {
			return err
		}
		if err := s.repos.Payloads(tx).Delete(ctx, code); err != nil {
			return err
		}
		s.logger.Info(ctx, "payload deleted", "code", code, "grants_removed", n)
		return nil
	})
	if err != nil {
		return err
	}

	results, err := s.purger.ExecuteForPayload(ctx, code)
	if err != nil {
		// The payload is gone either way; leftover tasks will surface via
		// pendingTasks and execute on their own schedule.
		s.logger.Error(ctx, "failed to execute pending purge tasks for deleted payload",
			"code", code, "error", err.Error())
		return nil
	}
	if len(results) > 0 {
		s.logger.Info(ctx, "pending purge tasks executed on deletion", "code", code, "tasks", len(results))
	}
	return nil
}
