package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/lab-reservation-api/internal/models"
	appErrors "github.com/noah-isme/lab-reservation-api/pkg/errors"
	"github.com/noah-isme/lab-reservation-api/pkg/jobs"
)

const auditJobType = "audit_event"

// AuditPublisher delivers one audit event to its sink.
type AuditPublisher interface {
	Publish(ctx context.Context, event models.AuditEvent) error
}

type auditQueue interface {
	Enqueue(job jobs.Job) error
}

// LogAuditPublisher writes events to the structured log. It is the sink when
// no broker is configured.
type LogAuditPublisher struct {
	logger *zap.Logger
}

// NewLogAuditPublisher constructs a LogAuditPublisher.
func NewLogAuditPublisher(logger *zap.Logger) *LogAuditPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogAuditPublisher{logger: logger}
}

// Publish logs the event.
func (p *LogAuditPublisher) Publish(_ context.Context, event models.AuditEvent) error {
	p.logger.Info("audit event",
		zap.String("event_id", event.ID),
		zap.String("action", event.Action),
		zap.String("outcome", string(event.Outcome)),
		zap.String("actor_id", event.ActorID),
		zap.String("resource_id", event.ResourceID),
		zap.Strings("reservation_ids", event.ReservationIDs),
		zap.String("error_code", event.ErrorCode),
	)
	return nil
}

// AuditService records booking attempts without blocking the caller. Events
// are handed to a worker queue; storage failures are flagged for escalation.
type AuditService struct {
	queue     auditQueue
	publisher AuditPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewAuditService constructs an AuditService. queue may be nil, in which case
// events are published inline.
func NewAuditService(publisher AuditPublisher, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = NewLogAuditPublisher(logger)
	}
	return &AuditService{publisher: publisher, logger: logger, now: time.Now}
}

// AttachQueue routes subsequent events through queue.
func (s *AuditService) AttachQueue(queue auditQueue) {
	s.queue = queue
}

// Record stamps and dispatches the event. It never fails the caller.
func (s *AuditService) Record(ctx context.Context, event models.AuditEvent) {
	if s == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now().UTC()
	}
	if event.Escalate {
		s.logger.Error("booking storage failure",
			zap.String("event_id", event.ID),
			zap.String("action", event.Action),
			zap.String("actor_id", event.ActorID),
			zap.String("resource_id", event.ResourceID),
			zap.String("message", event.Message),
		)
	}

	if s.queue != nil {
		err := s.queue.Enqueue(jobs.Job{ID: event.ID, Type: auditJobType, Payload: event})
		if err == nil {
			return
		}
		s.logger.Warn("audit queue unavailable, publishing inline", zap.String("event_id", event.ID), zap.Error(err))
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("audit publish failed", zap.String("event_id", event.ID), zap.Error(err))
	}
}

// Handle is the jobs.Handler for queued audit events.
func (s *AuditService) Handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.AuditEvent)
	if !ok {
		return fmt.Errorf("unexpected audit payload %T", job.Payload)
	}
	return s.publisher.Publish(ctx, event)
}

// fillAuditOutcome sets outcome, error code and escalation from err.
func fillAuditOutcome(event *models.AuditEvent, err error) {
	if err == nil {
		event.Outcome = models.AuditOutcomeSuccess
		return
	}
	event.Outcome = models.AuditOutcomeFailure
	appErr := appErrors.FromError(err)
	event.ErrorCode = appErr.Code
	event.Message = appErr.Message
	event.Escalate = appErr.Code == appErrors.ErrStorage.Code
}
