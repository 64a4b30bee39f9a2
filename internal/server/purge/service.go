// Package purge implements the lazy purge scheduler. There is no background
// timer: every inbound interaction calls DrainDue first, which converts
// wall-clock scheduling into an event-driven poll. A missed tick is never
// lost, only delayed until the next interaction, including one arriving after
// a process restart.
package purge

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/dropvault/internal/common"
	"github.com/dmitrijs2005/dropvault/internal/logging"
	"github.com/dmitrijs2005/dropvault/internal/server/models"
	"github.com/dmitrijs2005/dropvault/internal/server/repositories/purgequeue"
	"github.com/dmitrijs2005/dropvault/internal/server/transport"
	"github.com/oklog/ulid/v2"
)

const purgeNotice = "Your download window has closed; the delivered files were removed."

// ExecutionResult reports one executed task. A task counts as executed once
// removal of every artifact has been attempted, whatever the outcomes.
type ExecutionResult struct {
	TaskID            string
	SourcePayloadCode string
	ArtifactsRemoved  int
	ArtifactsFailed   int
	TaskRemoved       bool
}

// PendingTask is the read-only introspection view of a queued task.
type PendingTask struct {
	Task             *models.PurgeTask
	MinutesRemaining int
	Overdue          bool
}

// Service owns the durable purge queue. All queue mutations run under a
// single mutex: two interactions draining concurrently must not observe, and
// therefore must not execute, the same task.
type Service struct {
	mu            sync.Mutex
	tasks         purgequeue.Repository
	transport     transport.Transport
	logger        logging.Logger
	batchLimit    int
	removeTimeout time.Duration
}

// NewService constructs the scheduler. batchLimit caps how many due tasks a
// single drain may execute (<= 0 means unbounded); removeTimeout bounds each
// artifact removal call.
func NewService(tasks purgequeue.Repository, tr transport.Transport, logger logging.Logger,
	batchLimit int, removeTimeout time.Duration) *Service {
	return &Service{
		tasks:         tasks,
		transport:     tr,
		logger:        logger.With("module", "purge"),
		batchLimit:    batchLimit,
		removeTimeout: removeTimeout,
	}
}

// Enqueue persists a purge task for the delivered artifacts, due at dueAt.
// A persistence failure is a durability gap: the delivered copies exist but
// no durable instruction to remove them does, so the error is both logged
// and surfaced.
func (s *Service) Enqueue(ctx context.Context, targetChannel string, artifactRefs []string,
	deliveredAt, dueAt time.Time, sourcePayloadCode string) (string, error) {

	if len(artifactRefs) == 0 {
		return "", fmt.Errorf("%w: no artifact refs to purge", common.ErrValidation)
	}

	task := &models.PurgeTask{
		ID:                taskID(targetChannel, deliveredAt),
		TargetChannel:     targetChannel,
		ArtifactRefs:      artifactRefs,
		DueAt:             dueAt,
		SourcePayloadCode: sourcePayloadCode,
		CreatedAt:         deliveredAt,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.tasks.Create(ctx, task); err != nil {
		s.logger.Error(ctx, "failed to persist purge task; delivered artifacts need manual removal",
			"channel", targetChannel, "artifacts", artifactRefs, "error", err.Error())
		return "", fmt.Errorf("%w: %v", common.ErrDurabilityGap, err)
	}
	return task.ID, nil
}

// taskID combines the requester channel with a ULID seeded from the delivery
// time, so ids sort by delivery order and cannot collide across deliveries.
func taskID(targetChannel string, deliveredAt time.Time) string {
	id := ulid.MustNew(ulid.Timestamp(deliveredAt), rand.Reader)
	return targetChannel + ":" + id.String()
}

// DrainDue executes every task with dueAt <= now, up to the batch limit, and
// removes each from the durable queue. Removal of the task record is
// unconditional once execution has been attempted: artifact removal is best
// effort, task execution is at most once.
func (s *Service) DrainDue(ctx context.Context, now time.Time) ([]ExecutionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	due, err := s.tasks.SelectDue(ctx, now, s.batchLimit)
	if err != nil {
		return nil, fmt.Errorf("select due tasks: %w", err)
	}

	var results []ExecutionResult
	for _, task := range due {
		results = append(results, s.execute(ctx, task))
	}
	return results, nil
}

// ExecuteForPayload runs every pending task belonging to a payload
// immediately, regardless of dueAt. Used when the owning payload is deleted,
// so delivered copies are revoked rather than orphaned.
func (s *Service) ExecuteForPayload(ctx context.Context, sourcePayloadCode string) ([]ExecutionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.tasks.SelectByPayload(ctx, sourcePayloadCode)
	if err != nil {
		return nil, fmt.Errorf("select tasks by payload: %w", err)
	}

	var results []ExecutionResult
	for _, task := range pending {
		results = append(results, s.execute(ctx, task))
	}
	return results, nil
}

// execute attempts artifact removal and the best-effort notice, then removes
// the task. Callers must hold s.mu.
func (s *Service) execute(ctx context.Context, task *models.PurgeTask) ExecutionResult {
	result := ExecutionResult{TaskID: task.ID, SourcePayloadCode: task.SourcePayloadCode}

	for _, ref := range task.ArtifactRefs {
		rctx, cancel := context.WithTimeout(ctx, s.removeTimeout)
		err := s.transport.RemoveArtifact(rctx, task.TargetChannel, ref)
		cancel()
		if err != nil {
			// An already-removed artifact or a vanished channel is an
			// acceptable terminal state, not a scheduler error.
			result.ArtifactsFailed++
			s.logger.Warn(ctx, "artifact removal failed",
				"task", task.ID, "artifact", ref, "error", err.Error())
			continue
		}
		result.ArtifactsRemoved++
	}

	if err := s.transport.Notify(ctx, task.TargetChannel, purgeNotice); err != nil {
		s.logger.Warn(ctx, "purge notice failed", "task", task.ID, "error", err.Error())
	}

	removed, err := s.tasks.Delete(ctx, task.ID)
	if err != nil {
		s.logger.Error(ctx, "failed to remove executed task from queue",
			"task", task.ID, "error", err.Error())
	}
	result.TaskRemoved = removed

	s.logger.Info(ctx, "purge task executed",
		"task", task.ID, "payload", task.SourcePayloadCode,
		"removed", result.ArtifactsRemoved, "failed", result.ArtifactsFailed)
	return result
}

// PendingTasks returns a read-only view of the whole queue at the given
// instant. Overdue tasks are ones a drain has not yet picked up.
func (s *Service) PendingTasks(ctx context.Context, now time.Time) ([]PendingTask, error) {
	all, err := s.tasks.SelectAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("select tasks: %w", err)
	}

	result := make([]PendingTask, 0, len(all))
	for _, task := range all {
		remaining := task.DueAt.Sub(now)
		item := PendingTask{Task: task, Overdue: task.Due(now)}
		if remaining > 0 {
			item.MinutesRemaining = int(remaining.Minutes())
		}
		result = append(result, item)
	}
	return result, nil
}
