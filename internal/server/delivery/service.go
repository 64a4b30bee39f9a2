// Package delivery orchestrates the access path: resolve the code, time the
// requester's window, copy the content, and schedule revocation of the
// delivered copies.
package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/dropvault/internal/logging"
	"github.com/dmitrijs2005/dropvault/internal/server/grants"
	"github.com/dmitrijs2005/dropvault/internal/server/models"
	"github.com/dmitrijs2005/dropvault/internal/server/purge"
	"github.com/dmitrijs2005/dropvault/internal/server/registry"
	"github.com/dmitrijs2005/dropvault/internal/server/transport"
)

// Result reports one handled access.
type Result struct {
	Payload    *models.Payload
	IsNewCycle bool
	ExpiresAt  time.Time
	Delivered  int
	Failed     int
	TaskID     string
}

type Service struct {
	registry      *registry.Service
	tracker       *grants.Tracker
	purge         *purge.Service
	transport     transport.Transport
	sourceChannel string
	retention     time.Duration
	logger        logging.Logger
}

func NewService(reg *registry.Service, tracker *grants.Tracker, pg *purge.Service,
	tr transport.Transport, sourceChannel string, retention time.Duration, logger logging.Logger) *Service {
	return &Service{
		registry:      reg,
		tracker:       tracker,
		purge:         pg,
		transport:     tr,
		sourceChannel: sourceChannel,
		retention:     retention,
		logger:        logger.With("module", "delivery"),
	}
}

// HandleAccess runs one requester access at the given instant.
//
// A valid existing grant keeps its expiry (the window never moves); an
// expired grant starts a brand-new, independently timed cycle, so payloads
// are perpetually re-deliverable. Every access that copies content enqueues a
// purge task for exactly the copies it created, due retention after the
// delivery, not after the grant opened.
func (s *Service) HandleAccess(ctx context.Context, code, requesterID, channelID string, now time.Time) (*Result, error) {
	payload, err := s.registry.Resolve(ctx, code)
	if err != nil {
		return nil, err
	}

	access, err := s.tracker.CheckAndRecordAccess(ctx, code, requesterID, now)
	if err != nil {
		return nil, err
	}
	if access.Expired {
		access, err = s.tracker.RestartCycle(ctx, code, requesterID, now)
		if err != nil {
			return nil, err
		}
	}

	result := &Result{
		Payload:    payload,
		IsNewCycle: access.IsNewGrant,
		ExpiresAt:  access.ExpiresAt,
	}

	minutes := int(access.ExpiresAt.Sub(now).Minutes())
	notice := fmt.Sprintf("You have %d minutes to download these files. Sending %d files...",
		minutes, len(payload.ContentRefs))
	if err := s.transport.Notify(ctx, channelID, notice); err != nil {
		s.logger.Warn(ctx, "pre-delivery notice failed", "channel", channelID, "error", err.Error())
	}

	var artifacts []string
	for _, ref := range payload.ContentRefs {
		artifact, err := s.transport.Deliver(ctx, s.sourceChannel, channelID, ref)
		if err != nil {
			// Partial delivery is reported, not fatal.
			result.Failed++
			s.logger.Warn(ctx, "content delivery failed",
				"code", code, "ref", ref, "channel", channelID, "error", err.Error())
			continue
		}
		artifacts = append(artifacts, artifact)
		result.Delivered++
	}

	done := fmt.Sprintf("Delivered %d of %d files.", result.Delivered, len(payload.ContentRefs))
	if err := s.transport.Notify(ctx, channelID, done); err != nil {
		s.logger.Warn(ctx, "post-delivery notice failed", "channel", channelID, "error", err.Error())
	}

	if len(artifacts) > 0 {
		taskID, err := s.purge.Enqueue(ctx, channelID, artifacts, now, now.Add(s.retention), code)
		if err != nil {
			// The copies exist with no durable removal instruction: surfaced,
			// never swallowed.
			return result, err
		}
		result.TaskID = taskID
	}

	s.logger.Info(ctx, "access handled",
		"code", code, "requester", requesterID, "delivered", result.Delivered,
		"failed", result.Failed, "new_cycle", result.IsNewCycle)
	return result, nil
}
