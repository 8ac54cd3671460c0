package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/lab-reservation-api/internal/models"
	appErrors "github.com/noah-isme/lab-reservation-api/pkg/errors"
	"github.com/noah-isme/lab-reservation-api/pkg/jobs"
)

type auditPublisherMock struct {
	events []models.AuditEvent
	err    error
}

func (m *auditPublisherMock) Publish(ctx context.Context, event models.AuditEvent) error {
	m.events = append(m.events, event)
	return m.err
}

type auditQueueMock struct {
	jobs []jobs.Job
	err  error
}

func (m *auditQueueMock) Enqueue(job jobs.Job) error {
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, job)
	return nil
}

func TestAuditServiceRecordInlineStampsEvent(t *testing.T) {
	publisher := &auditPublisherMock{}
	svc := NewAuditService(publisher, nil)
	svc.now = func() time.Time { return time.Date(2024, time.March, 4, 10, 0, 0, 0, time.UTC) }

	svc.Record(context.Background(), models.AuditEvent{Action: models.AuditActionReservationCreate, Outcome: models.AuditOutcomeSuccess})

	require.Len(t, publisher.events, 1)
	assert.NotEmpty(t, publisher.events[0].ID)
	assert.Equal(t, time.Date(2024, time.March, 4, 10, 0, 0, 0, time.UTC), publisher.events[0].OccurredAt)
}

func TestAuditServiceRecordUsesQueue(t *testing.T) {
	publisher := &auditPublisherMock{}
	queue := &auditQueueMock{}
	svc := NewAuditService(publisher, nil)
	svc.AttachQueue(queue)

	svc.Record(context.Background(), models.AuditEvent{Action: models.AuditActionReservationCancel})

	require.Len(t, queue.jobs, 1)
	assert.Empty(t, publisher.events)
	assert.Equal(t, auditJobType, queue.jobs[0].Type)

	require.NoError(t, svc.Handle(context.Background(), queue.jobs[0]))
	require.Len(t, publisher.events, 1)
	assert.Equal(t, models.AuditActionReservationCancel, publisher.events[0].Action)
}

func TestAuditServiceFallsBackWhenQueueFull(t *testing.T) {
	publisher := &auditPublisherMock{}
	svc := NewAuditService(publisher, nil)
	svc.AttachQueue(&auditQueueMock{err: jobs.ErrQueueFull})

	svc.Record(context.Background(), models.AuditEvent{Action: models.AuditActionReservationCreate})

	assert.Len(t, publisher.events, 1)
}

func TestAuditServiceEscalatesStorageFailures(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	publisher := &auditPublisherMock{err: errors.New("broker down")}
	svc := NewAuditService(publisher, zap.New(core))

	event := models.AuditEvent{Action: models.AuditActionReservationCreate, ActorID: "teacher-1"}
	fillAuditOutcome(&event, appErrors.Clone(appErrors.ErrStorage, "failed to commit reservations"))
	svc.Record(context.Background(), event)

	assert.True(t, event.Escalate)
	assert.Equal(t, models.AuditOutcomeFailure, event.Outcome)
	assert.Equal(t, 1, logs.FilterMessage("booking storage failure").Len())
}

func TestFillAuditOutcome(t *testing.T) {
	var event models.AuditEvent
	fillAuditOutcome(&event, nil)
	assert.Equal(t, models.AuditOutcomeSuccess, event.Outcome)

	event = models.AuditEvent{}
	fillAuditOutcome(&event, appErrors.Clone(appErrors.ErrReservationConflict, "resource already reserved on 2024-03-18"))
	assert.Equal(t, models.AuditOutcomeFailure, event.Outcome)
	assert.Equal(t, "RESERVATION_CONFLICT", event.ErrorCode)
	assert.False(t, event.Escalate)

	event = models.AuditEvent{}
	fillAuditOutcome(&event, errors.New("boom"))
	assert.Equal(t, appErrors.ErrInternal.Code, event.ErrorCode)
}

func TestAuditServiceHandleRejectsForeignPayload(t *testing.T) {
	svc := NewAuditService(&auditPublisherMock{}, nil)

	err := svc.Handle(context.Background(), jobs.Job{Payload: "nope"})

	assert.Error(t, err)
}
