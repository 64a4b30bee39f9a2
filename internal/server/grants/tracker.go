// Package grants implements the access-grant tracker: for each
// (code, requester) pair it records when the personal retention window
// opened and answers whether the grant is still valid.
package grants

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/dropvault/internal/logging"
	"github.com/dmitrijs2005/dropvault/internal/server/models"
	grantsrepo "github.com/dmitrijs2005/dropvault/internal/server/repositories/grants"
)

// Access describes the outcome of an access check. When Expired is set the
// stored grant's window has closed; the tracker never renews it on its own.
// The delivery orchestrator decides whether to start a new cycle.
type Access struct {
	IsNewGrant    bool
	FirstAccessAt time.Time
	ExpiresAt     time.Time
	Expired       bool
}

type Tracker struct {
	repo      grantsrepo.Repository
	retention time.Duration
	logger    logging.Logger
}

func NewTracker(repo grantsrepo.Repository, retention time.Duration, logger logging.Logger) *Tracker {
	return &Tracker{
		repo:      repo,
		retention: retention,
		logger:    logger.With("module", "grants"),
	}
}

// CheckAndRecordAccess creates a grant with firstAccessAt = now if none
// exists for the pair, and otherwise returns the stored grant unchanged:
// repeat accesses inside the window are idempotent reads and never move the
// expiry.
func (t *Tracker) CheckAndRecordAccess(ctx context.Context, code, requesterID string, now time.Time) (*Access, error) {
	grant := &models.AccessGrant{Code: code, RequesterID: requesterID, FirstAccessAt: now}

	created, err := t.repo.Create(ctx, grant)
	if err != nil {
		return nil, fmt.Errorf("record access: %w", err)
	}
	if created {
		t.logger.Info(ctx, "first access recorded", "code", code, "requester", requesterID)
		return &Access{IsNewGrant: true, FirstAccessAt: now, ExpiresAt: grant.ExpiresAt(t.retention)}, nil
	}

	existing, err := t.repo.Get(ctx, code, requesterID)
	if err != nil {
		return nil, fmt.Errorf("read existing grant: %w", err)
	}
	expiresAt := existing.ExpiresAt(t.retention)
	return &Access{
		FirstAccessAt: existing.FirstAccessAt,
		ExpiresAt:     expiresAt,
		Expired:       !now.Before(expiresAt),
	}, nil
}

// RestartCycle overwrites firstAccessAt with now, opening a fresh,
// independently timed retention window for the pair.
func (t *Tracker) RestartCycle(ctx context.Context, code, requesterID string, now time.Time) (*Access, error) {
	grant := &models.AccessGrant{Code: code, RequesterID: requesterID, FirstAccessAt: now}
	if err := t.repo.Reset(ctx, grant); err != nil {
		return nil, fmt.Errorf("restart cycle: %w", err)
	}
	t.logger.Info(ctx, "delivery cycle restarted", "code", code, "requester", requesterID)
	return &Access{IsNewGrant: true, FirstAccessAt: now, ExpiresAt: grant.ExpiresAt(t.retention)}, nil
}

// TimeRemaining reports how long the pair's window stays open at the given
// instant. Zero means the grant has expired; common.ErrorNotFound means no
// grant was ever recorded for the pair.
func (t *Tracker) TimeRemaining(ctx context.Context, code, requesterID string, now time.Time) (time.Duration, error) {
	grant, err := t.repo.Get(ctx, code, requesterID)
	if err != nil {
		return 0, err
	}
	remaining := grant.ExpiresAt(t.retention).Sub(now)
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}
