package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lab-reservation-api/internal/dto"
	"github.com/noah-isme/lab-reservation-api/internal/models"
	"github.com/noah-isme/lab-reservation-api/internal/repository"
	"github.com/noah-isme/lab-reservation-api/pkg/civiltime"
	appErrors "github.com/noah-isme/lab-reservation-api/pkg/errors"
)

type rulesProviderStub struct {
	rules models.ScheduleRules
	err   error
}

func (s rulesProviderStub) GetScheduleRules(ctx context.Context) (models.ScheduleRules, error) {
	return s.rules, s.err
}

type reservationStoreMock struct {
	listed        []models.Reservation
	listErr       error
	filters       []models.ReservationFilter
	byID          map[string]*models.Reservation
	recurrence    *models.ReservationRecurrence
	cancelChanged bool
	cancelCalls   int
	cancelReason  *string
	seriesIDs     []string
	seriesFrom    time.Time
	locked        []string
}

func (m *reservationStoreMock) List(ctx context.Context, filter models.ReservationFilter) ([]models.Reservation, error) {
	m.filters = append(m.filters, filter)
	return m.listed, m.listErr
}

func (m *reservationStoreMock) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Reservation, error) {
	r, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrReservationNotFound
	}
	copied := *r
	return &copied, nil
}

func (m *reservationStoreMock) FindRecurrenceByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ReservationRecurrence, error) {
	if m.recurrence == nil || m.recurrence.ID != id {
		return nil, repository.ErrRecurrenceNotFound
	}
	return m.recurrence, nil
}

func (m *reservationStoreMock) LockResource(ctx context.Context, exec sqlx.ExtContext, resourceID string) error {
	m.locked = append(m.locked, resourceID)
	return nil
}

func (m *reservationStoreMock) Cancel(ctx context.Context, exec sqlx.ExtContext, id string, reason *string, at time.Time) (bool, error) {
	m.cancelCalls++
	m.cancelReason = reason
	if m.cancelChanged {
		if r, ok := m.byID[id]; ok {
			r.Status = models.ReservationStatusCancelled
			r.CancelledAt = &at
		}
	}
	return m.cancelChanged, nil
}

func (m *reservationStoreMock) CancelRecurrence(ctx context.Context, exec sqlx.ExtContext, recurrenceID string, from time.Time, reason *string) ([]string, error) {
	m.seriesFrom = from
	return m.seriesIDs, nil
}

type expanderMock struct {
	requests []ExpansionRequest
	err      error
}

func (m *expanderMock) Expand(ctx context.Context, req ExpansionRequest) (*ExpansionResult, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	occurrences := WeeklyOccurrences(req.Window, req.Occurrences, req.Location)
	result := &ExpansionResult{}
	var recurrenceID *string
	if len(occurrences) > 1 {
		result.Recurrence = &models.ReservationRecurrence{ID: "rec-1"}
		recurrenceID = &result.Recurrence.ID
	}
	for i, occ := range occurrences {
		result.Reservations = append(result.Reservations, models.Reservation{
			ID:           "res-" + string(rune('a'+i)),
			StartTime:    occ.Window.Start,
			EndTime:      occ.Window.End,
			RecurrenceID: recurrenceID,
		})
	}
	return result, nil
}

func (m *expanderMock) ClampOccurrences(n int) int {
	if n < 1 {
		return 1
	}
	if n > DefaultMaxOccurrences {
		return DefaultMaxOccurrences
	}
	return n
}

type reservationServiceFixture struct {
	svc      *ReservationService
	store    *reservationStoreMock
	expander *expanderMock
	audit    *auditRecorderMock
	metrics  *MetricsService
}

func newReservationServiceFixture(t *testing.T, rules models.ScheduleRules) *reservationServiceFixture {
	t.Helper()
	f := &reservationServiceFixture{
		store:    &reservationStoreMock{byID: map[string]*models.Reservation{}},
		expander: &expanderMock{},
		audit:    &auditRecorderMock{},
		metrics:  NewMetricsService(),
	}
	db, _ := newTxMock(t)
	f.svc = NewReservationService(rulesProviderStub{rules: rules}, f.store, f.expander, db, f.audit, f.metrics, nil, nil)
	f.svc.now = func() time.Time { return time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

var teacherActor = models.Actor{ID: "teacher-1", Role: models.RoleTeacher}

func TestReservationServiceGetDailySchedule(t *testing.T) {
	f := newReservationServiceFixture(t, twoClassMorningRules())
	f.store.listed = []models.Reservation{{
		ID:        "res-1",
		StartTime: time.Date(2024, time.March, 4, 7, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2024, time.March, 4, 7, 50, 0, 0, time.UTC),
		Status:    models.ReservationStatusConfirmed,
	}}

	schedule, err := f.svc.GetDailySchedule(context.Background(), "lab-1", civiltime.NewDate(2024, time.March, 4))
	require.NoError(t, err)

	assert.True(t, schedule.AllSlots()[0].IsOccupied)
	require.Len(t, f.store.filters, 1)
	filter := f.store.filters[0]
	assert.Equal(t, "lab-1", filter.ResourceID)
	assert.Equal(t, time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC), *filter.From)
	assert.Equal(t, time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC), *filter.To)
	assert.NotContains(t, filter.Statuses, models.ReservationStatusCancelled)
}

func TestReservationServiceGetDailyScheduleStorageError(t *testing.T) {
	f := newReservationServiceFixture(t, twoClassMorningRules())
	f.store.listErr = errors.New("timeout")

	_, err := f.svc.GetDailySchedule(context.Background(), "lab-1", civiltime.NewDate(2024, time.March, 4))

	requireAppCode(t, err, appErrors.ErrStorage)
}

func TestReservationServiceBookWeekly(t *testing.T) {
	f := newReservationServiceFixture(t, twoClassMorningRules())
	subject := "  Biology  "

	result, err := f.svc.Book(context.Background(), teacherActor, "lab-1", dto.BookReservationRequest{
		Date:        "2024-03-04",
		SlotIDs:     []string{"2024-03-04_morning_1", "2024-03-04_morning_2"},
		Occurrences: 4,
		Subject:     &subject,
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 4, result.Occurrences)
	assert.Equal(t, "4 weekly reservations confirmed", result.Message)
	require.NotNil(t, result.RecurrenceID)
	assert.Equal(t, time.Date(2024, time.March, 4, 7, 0, 0, 0, time.UTC), result.StartTime)
	assert.Equal(t, time.Date(2024, time.March, 4, 8, 50, 0, 0, time.UTC), result.EndTime)

	require.Len(t, f.expander.requests, 1)
	req := f.expander.requests[0]
	assert.Equal(t, "teacher-1", req.RequesterID)
	require.NotNil(t, req.Subject)
	assert.Equal(t, "Biology", *req.Subject)

	require.Len(t, f.audit.events, 1)
	event := f.audit.events[0]
	assert.Equal(t, models.AuditActionReservationCreate, event.Action)
	assert.Equal(t, models.AuditOutcomeSuccess, event.Outcome)
	assert.Len(t, event.ReservationIDs, 4)
	assert.Equal(t, uint64(4), f.metrics.Snapshot().OccurrencesBooked)
}

func TestReservationServiceBookSingle(t *testing.T) {
	f := newReservationServiceFixture(t, twoClassMorningRules())

	result, err := f.svc.Book(context.Background(), teacherActor, "lab-1", dto.BookReservationRequest{
		Date:    "2024-03-04",
		SlotIDs: []string{"2024-03-04_morning_2"},
	})
	require.NoError(t, err)

	assert.Equal(t, "reservation confirmed", result.Message)
	assert.Nil(t, result.RecurrenceID)
	assert.Equal(t, 1, f.expander.requests[0].Occurrences)
}

func TestReservationServiceBookNonTeachingDay(t *testing.T) {
	rules := twoClassMorningRules()
	sunday := 0
	rules.NonTeachingDays = []models.NonTeachingDayRule{{ID: "sun", Kind: models.NonTeachingDayWeekday, Weekday: &sunday, Reason: "Sunday"}}
	f := newReservationServiceFixture(t, rules)

	_, err := f.svc.Book(context.Background(), teacherActor, "lab-1", dto.BookReservationRequest{
		Date:    "2024-03-03",
		SlotIDs: []string{"2024-03-03_morning_1"},
	})

	requireAppCode(t, err, appErrors.ErrNonTeachingDay)
	assert.Empty(t, f.expander.requests)
	require.Len(t, f.audit.events, 1)
	assert.Equal(t, appErrors.ErrNonTeachingDay.Code, f.audit.events[0].ErrorCode)
	assert.False(t, f.audit.events[0].Escalate)
}

func TestReservationServiceBookRejectsGap(t *testing.T) {
	rules := twoClassMorningRules()
	morning := rules.Periods[models.PeriodMorning]
	morning.ClassesCount = 3
	rules.Periods[models.PeriodMorning] = morning
	f := newReservationServiceFixture(t, rules)

	_, err := f.svc.Book(context.Background(), teacherActor, "lab-1", dto.BookReservationRequest{
		Date:    "2024-03-04",
		SlotIDs: []string{"2024-03-04_morning_1", "2024-03-04_morning_3"},
	})

	requireAppCode(t, err, appErrors.ErrMissingIntermediateSlot)
	assert.Empty(t, f.expander.requests)
}

func TestReservationServiceBookInvalidPayload(t *testing.T) {
	f := newReservationServiceFixture(t, twoClassMorningRules())

	_, err := f.svc.Book(context.Background(), teacherActor, "lab-1", dto.BookReservationRequest{Date: "04/03/2024", SlotIDs: []string{"x"}})

	requireAppCode(t, err, appErrors.ErrValidation)
}

func TestReservationServiceBookStorageFailureEscalates(t *testing.T) {
	f := newReservationServiceFixture(t, twoClassMorningRules())
	f.expander.err = appErrors.Clone(appErrors.ErrStorage, "failed to commit reservations")

	_, err := f.svc.Book(context.Background(), teacherActor, "lab-1", dto.BookReservationRequest{
		Date:    "2024-03-04",
		SlotIDs: []string{"2024-03-04_morning_1"},
	})

	requireAppCode(t, err, appErrors.ErrStorage)
	require.Len(t, f.audit.events, 1)
	assert.True(t, f.audit.events[0].Escalate)
	assert.Equal(t, uint64(1), f.metrics.Snapshot().BookingsFailed)
}

func TestReservationServiceAssignAcademicPeriod(t *testing.T) {
	f := newReservationServiceFixture(t, twoClassMorningRules())
	manager := models.Actor{ID: "admin-1", Role: models.RoleAdmin}

	result, err := f.svc.AssignAcademicPeriod(context.Background(), manager, "lab-1", dto.AssignAcademicPeriodRequest{
		Date:         "2024-03-04",
		SlotIDs:      []string{"2024-03-04_morning_1"},
		InstructorID: "teacher-9",
		Subject:      "Physics",
	})
	require.NoError(t, err)

	assert.Equal(t, 4, result.Occurrences)
	assert.Equal(t, "Semester assigned for 4 weeks", result.Message)
	req := f.expander.requests[0]
	assert.Equal(t, "teacher-9", req.RequesterID)
	assert.Equal(t, 4, req.Occurrences)
	assert.Equal(t, models.AuditActionReservationAssign, f.audit.events[0].Action)
}

func TestReservationServiceAssignRequiresManager(t *testing.T) {
	f := newReservationServiceFixture(t, twoClassMorningRules())

	_, err := f.svc.AssignAcademicPeriod(context.Background(), teacherActor, "lab-1", dto.AssignAcademicPeriodRequest{
		Date:         "2024-03-04",
		SlotIDs:      []string{"2024-03-04_morning_1"},
		InstructorID: "teacher-9",
		Subject:      "Physics",
	})

	requireAppCode(t, err, appErrors.ErrForbidden)
	assert.Empty(t, f.expander.requests)
}

func TestReservationServiceCancelIsIdempotent(t *testing.T) {
	f := newReservationServiceFixture(t, twoClassMorningRules())
	f.store.byID["res-1"] = &models.Reservation{ID: "res-1", ResourceID: "lab-1", RequesterID: "teacher-1", Status: models.ReservationStatusConfirmed}
	f.store.cancelChanged = true

	first, err := f.svc.Cancel(context.Background(), teacherActor, "res-1", dto.CancelReservationRequest{Reason: " moved "})
	require.NoError(t, err)
	assert.False(t, first.AlreadyCancelled)
	require.NotNil(t, first.CancelledAt)
	require.NotNil(t, f.store.cancelReason)
	assert.Equal(t, "moved", *f.store.cancelReason)

	second, err := f.svc.Cancel(context.Background(), teacherActor, "res-1", dto.CancelReservationRequest{})
	require.NoError(t, err)
	assert.True(t, second.AlreadyCancelled)
	assert.Equal(t, first.CancelledAt.UTC(), second.CancelledAt.UTC())
	assert.Equal(t, 1, f.store.cancelCalls)

	require.Len(t, f.audit.events, 2)
	assert.Equal(t, "lab-1", f.audit.events[1].ResourceID)
}

func TestReservationServiceCancelLostRace(t *testing.T) {
	f := newReservationServiceFixture(t, twoClassMorningRules())
	f.store.byID["res-1"] = &models.Reservation{ID: "res-1", RequesterID: "teacher-1", Status: models.ReservationStatusConfirmed}
	f.store.cancelChanged = false

	result, err := f.svc.Cancel(context.Background(), teacherActor, "res-1", dto.CancelReservationRequest{})
	require.NoError(t, err)

	assert.True(t, result.AlreadyCancelled)
}

func TestReservationServiceCancelForbiddenForOthers(t *testing.T) {
	f := newReservationServiceFixture(t, twoClassMorningRules())
	f.store.byID["res-1"] = &models.Reservation{ID: "res-1", RequesterID: "teacher-2", Status: models.ReservationStatusConfirmed}

	_, err := f.svc.Cancel(context.Background(), teacherActor, "res-1", dto.CancelReservationRequest{})
	requireAppCode(t, err, appErrors.ErrForbidden)

	f.store.cancelChanged = true
	_, err = f.svc.Cancel(context.Background(), models.Actor{ID: "admin-1", Role: models.RoleSuperAdmin}, "res-1", dto.CancelReservationRequest{})
	require.NoError(t, err)
}

func TestReservationServiceCancelNotFound(t *testing.T) {
	f := newReservationServiceFixture(t, twoClassMorningRules())

	_, err := f.svc.Cancel(context.Background(), teacherActor, "missing", dto.CancelReservationRequest{})

	requireAppCode(t, err, appErrors.ErrNotFound)
}

func TestReservationServiceCancelRecurrence(t *testing.T) {
	db, mock := newTxMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	store := &reservationStoreMock{
		recurrence: &models.ReservationRecurrence{ID: "rec-1", ResourceID: "lab-1", RequesterID: "teacher-1"},
		seriesIDs:  []string{"res-c", "res-d"},
	}
	audit := &auditRecorderMock{}
	svc := NewReservationService(rulesProviderStub{rules: twoClassMorningRules()}, store, &expanderMock{}, db, audit, nil, nil, nil)
	now := time.Date(2024, time.March, 12, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	result, err := svc.CancelRecurrence(context.Background(), teacherActor, "rec-1", dto.CancelReservationRequest{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Cancelled)
	assert.Equal(t, []string{"res-c", "res-d"}, result.IDs)
	assert.Equal(t, now, store.seriesFrom)
	assert.Equal(t, []string{"lab-1"}, store.locked)
	assert.Equal(t, []string{"res-c", "res-d"}, audit.events[0].ReservationIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationServiceCancelRecurrenceForbidden(t *testing.T) {
	db, mock := newTxMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	store := &reservationStoreMock{recurrence: &models.ReservationRecurrence{ID: "rec-1", ResourceID: "lab-1", RequesterID: "teacher-2"}}
	svc := NewReservationService(rulesProviderStub{rules: twoClassMorningRules()}, store, &expanderMock{}, db, nil, nil, nil, nil)

	_, err := svc.CancelRecurrence(context.Background(), teacherActor, "rec-1", dto.CancelReservationRequest{})

	requireAppCode(t, err, appErrors.ErrForbidden)
	assert.Empty(t, store.locked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationServiceListMineDefaultsWindow(t *testing.T) {
	f := newReservationServiceFixture(t, twoClassMorningRules())

	_, err := f.svc.ListMine(context.Background(), teacherActor, dto.ReservationQuery{})
	require.NoError(t, err)

	filter := f.store.filters[0]
	assert.Equal(t, "teacher-1", filter.RequesterID)
	assert.Equal(t, 30*24*time.Hour, filter.To.Sub(*filter.From))
}

func TestReservationServiceListByResourceRejectsInvertedWindow(t *testing.T) {
	f := newReservationServiceFixture(t, twoClassMorningRules())
	from := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)

	_, err := f.svc.ListByResource(context.Background(), "lab-1", dto.ReservationQuery{From: &from, To: &to})

	requireAppCode(t, err, appErrors.ErrValidation)
}
