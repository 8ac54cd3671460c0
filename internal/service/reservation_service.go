package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/lab-reservation-api/internal/dto"
	"github.com/noah-isme/lab-reservation-api/internal/models"
	"github.com/noah-isme/lab-reservation-api/internal/repository"
	"github.com/noah-isme/lab-reservation-api/pkg/civiltime"
	appErrors "github.com/noah-isme/lab-reservation-api/pkg/errors"
)

const defaultListWindow = 30 * 24 * time.Hour

type rulesProvider interface {
	GetScheduleRules(ctx context.Context) (models.ScheduleRules, error)
}

type reservationStore interface {
	List(ctx context.Context, filter models.ReservationFilter) ([]models.Reservation, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Reservation, error)
	FindRecurrenceByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ReservationRecurrence, error)
	LockResource(ctx context.Context, exec sqlx.ExtContext, resourceID string) error
	Cancel(ctx context.Context, exec sqlx.ExtContext, id string, reason *string, at time.Time) (bool, error)
	CancelRecurrence(ctx context.Context, exec sqlx.ExtContext, recurrenceID string, from time.Time, reason *string) ([]string, error)
}

type reservationExpander interface {
	Expand(ctx context.Context, req ExpansionRequest) (*ExpansionResult, error)
	ClampOccurrences(n int) int
}

// ReservationService coordinates schedule reads, bookings and cancellations.
type ReservationService struct {
	rules     rulesProvider
	store     reservationStore
	expander  reservationExpander
	tx        txProvider
	audit     auditRecorder
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewReservationService constructs a ReservationService.
func NewReservationService(rules rulesProvider, store reservationStore, expander reservationExpander, tx txProvider, audit auditRecorder, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ReservationService {
	if validate == nil {
		validate = validator.New()
	}
	registerSchedulingValidations(validate)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReservationService{
		rules:     rules,
		store:     store,
		expander:  expander,
		tx:        tx,
		audit:     audit,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// GetDailySchedule builds the annotated slot grid of resourceID on date.
func (s *ReservationService) GetDailySchedule(ctx context.Context, resourceID string, date civiltime.Date) (*models.DailySchedule, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveScheduleBuild(time.Since(start)) }()

	if strings.TrimSpace(resourceID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "resource id is required")
	}
	rules, loc, err := s.loadRules(ctx)
	if err != nil {
		return nil, err
	}
	return s.buildSchedule(ctx, resourceID, date, rules, loc)
}

func (s *ReservationService) buildSchedule(ctx context.Context, resourceID string, date civiltime.Date, rules models.ScheduleRules, loc *time.Location) (*models.DailySchedule, error) {
	from := civiltime.StartOfDay(date, loc)
	to := civiltime.EndOfDay(date, loc)
	reservations, err := s.store.List(ctx, models.ReservationFilter{
		ResourceID: resourceID,
		From:       &from,
		To:         &to,
		Statuses:   []models.ReservationStatus{models.ReservationStatusPending, models.ReservationStatusConfirmed},
	})
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrStorage, err, "failed to load reservations")
	}

	return BuildDailySchedule(ScheduleBuildInput{
		ResourceID:   resourceID,
		Date:         date,
		Rules:        rules,
		Location:     loc,
		Reservations: reservations,
		Now:          s.now(),
		NonTeaching:  MatchNonTeachingDay(rules, date, loc),
	})
}

// Book validates the selected slots on date and persists them once or weekly.
func (s *ReservationService) Book(ctx context.Context, actor models.Actor, resourceID string, req dto.BookReservationRequest) (result *dto.BookingResult, err error) {
	event := models.AuditEvent{Action: models.AuditActionReservationCreate, ActorID: actor.ID, ResourceID: resourceID}
	defer func() { s.finish(ctx, &event, result, err) }()

	if err = s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid reservation payload")
	}
	if err = requireIdentity(actor.ID, resourceID); err != nil {
		return nil, err
	}
	date, _ := civiltime.ParseDate(req.Date)
	subject := trimmedSubject(req.Subject)

	return s.book(ctx, bookingInput{
		resourceID:  resourceID,
		requesterID: actor.ID,
		date:        date,
		slotIDs:     req.SlotIDs,
		occurrences: req.Occurrences,
		subject:     subject,
	})
}

// AssignAcademicPeriod books the selected slots for an instructor across the
// configured academic period.
func (s *ReservationService) AssignAcademicPeriod(ctx context.Context, actor models.Actor, resourceID string, req dto.AssignAcademicPeriodRequest) (result *dto.BookingResult, err error) {
	event := models.AuditEvent{Action: models.AuditActionReservationAssign, ActorID: actor.ID, ResourceID: resourceID}
	defer func() { s.finish(ctx, &event, result, err) }()

	if !actor.IsManager() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only managers can assign academic periods")
	}
	if err = s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid assignment payload")
	}
	if err = requireIdentity(actor.ID, resourceID); err != nil {
		return nil, err
	}
	date, _ := civiltime.ParseDate(req.Date)
	subject := strings.TrimSpace(req.Subject)

	return s.book(ctx, bookingInput{
		resourceID:   resourceID,
		requesterID:  strings.TrimSpace(req.InstructorID),
		date:         date,
		slotIDs:      req.SlotIDs,
		subject:      &subject,
		fullAcademic: true,
	})
}

type bookingInput struct {
	resourceID   string
	requesterID  string
	date         civiltime.Date
	slotIDs      []string
	occurrences  int
	subject      *string
	fullAcademic bool
}

func (s *ReservationService) book(ctx context.Context, in bookingInput) (*dto.BookingResult, error) {
	rules, loc, err := s.loadRules(ctx)
	if err != nil {
		return nil, err
	}
	schedule, err := s.buildSchedule(ctx, in.resourceID, in.date, rules, loc)
	if err != nil {
		return nil, err
	}
	if schedule.IsNonTeachingDay {
		reason := ""
		if schedule.NonTeachingReason != nil {
			reason = *schedule.NonTeachingReason
		}
		return nil, nonTeachingDay(in.date, reason)
	}
	window, err := ValidateSlotSelection(schedule, in.slotIDs)
	if err != nil {
		return nil, err
	}

	occurrences := in.occurrences
	if in.fullAcademic {
		occurrences = rules.AcademicPeriod.DurationWeeks
	}
	occurrences = s.expander.ClampOccurrences(occurrences)

	expanded, err := s.expander.Expand(ctx, ExpansionRequest{
		ResourceID:  in.resourceID,
		RequesterID: in.requesterID,
		Window:      window,
		Occurrences: occurrences,
		Subject:     in.subject,
		Status:      models.ReservationStatusConfirmed,
		Rules:       rules,
		Location:    loc,
	})
	if err != nil {
		return nil, err
	}

	result := &dto.BookingResult{
		Success:        true,
		Occurrences:    len(expanded.Reservations),
		ReservationIDs: make([]string, 0, len(expanded.Reservations)),
		StartTime:      window.Start,
		EndTime:        window.End,
	}
	for _, r := range expanded.Reservations {
		result.ReservationIDs = append(result.ReservationIDs, r.ID)
	}
	if expanded.Recurrence != nil {
		result.RecurrenceID = &expanded.Recurrence.ID
	}
	switch {
	case in.fullAcademic:
		result.Message = fmt.Sprintf("%s assigned for %d weeks", rules.AcademicPeriod.Label, result.Occurrences)
	case result.Occurrences == 1:
		result.Message = "reservation confirmed"
	default:
		result.Message = fmt.Sprintf("%d weekly reservations confirmed", result.Occurrences)
	}
	return result, nil
}

// Cancel marks a reservation cancelled. Cancelling twice is a no-op success.
func (s *ReservationService) Cancel(ctx context.Context, actor models.Actor, reservationID string, req dto.CancelReservationRequest) (result *dto.CancelReservationResult, err error) {
	event := models.AuditEvent{Action: models.AuditActionReservationCancel, ActorID: actor.ID, ReservationIDs: []string{reservationID}}
	defer func() {
		fillAuditOutcome(&event, err)
		s.metrics.RecordBooking(event.Action, event.ErrorCode, 0)
		s.record(ctx, event)
	}()

	if err = s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid cancellation payload")
	}
	if err = requireIdentity(actor.ID, reservationID); err != nil {
		return nil, err
	}

	reservation, err := s.store.FindByID(ctx, nil, reservationID)
	if err != nil {
		return nil, storeLookupError(err, "reservation not found")
	}
	event.ResourceID = reservation.ResourceID
	if reservation.RequesterID != actor.ID && !actor.IsManager() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the requester or a manager can cancel this reservation")
	}
	if reservation.IsCancelled() {
		return &dto.CancelReservationResult{ReservationID: reservation.ID, AlreadyCancelled: true, CancelledAt: reservation.CancelledAt}, nil
	}

	at := s.now().UTC()
	changed, err := s.store.Cancel(ctx, nil, reservation.ID, optionalString(req.Reason), at)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrStorage, err, "failed to cancel reservation")
	}
	if !changed {
		// Lost a race with a concurrent cancellation.
		current, lookupErr := s.store.FindByID(ctx, nil, reservation.ID)
		if lookupErr != nil {
			return nil, storeLookupError(lookupErr, "reservation not found")
		}
		return &dto.CancelReservationResult{ReservationID: current.ID, AlreadyCancelled: true, CancelledAt: current.CancelledAt}, nil
	}

	s.logger.Info("reservation cancelled", zap.String("reservation_id", reservation.ID), zap.String("actor_id", actor.ID))
	return &dto.CancelReservationResult{ReservationID: reservation.ID, CancelledAt: &at}, nil
}

// CancelRecurrence cancels every active occurrence of a series that has not
// started yet, in one transaction.
func (s *ReservationService) CancelRecurrence(ctx context.Context, actor models.Actor, recurrenceID string, req dto.CancelReservationRequest) (result *dto.CancelRecurrenceResult, err error) {
	event := models.AuditEvent{Action: models.AuditActionRecurrenceCancel, ActorID: actor.ID, RecurrenceID: &recurrenceID}
	defer func() {
		if result != nil {
			event.ReservationIDs = result.IDs
		}
		fillAuditOutcome(&event, err)
		s.metrics.RecordBooking(event.Action, event.ErrorCode, 0)
		s.record(ctx, event)
	}()

	if err = s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid cancellation payload")
	}
	if err = requireIdentity(actor.ID, recurrenceID); err != nil {
		return nil, err
	}
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrStorage, "transaction provider missing")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrStorage, err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	recurrence, err := s.store.FindRecurrenceByID(ctx, tx, recurrenceID)
	if err != nil {
		err = storeLookupError(err, "recurrence not found")
		return nil, err
	}
	event.ResourceID = recurrence.ResourceID
	if recurrence.RequesterID != actor.ID && !actor.IsManager() {
		err = appErrors.Clone(appErrors.ErrForbidden, "only the requester or a manager can cancel this series")
		return nil, err
	}
	if err = s.store.LockResource(ctx, tx, recurrence.ResourceID); err != nil {
		err = appErrors.WrapAs(appErrors.ErrStorage, err, "failed to lock resource")
		return nil, err
	}
	ids, err := s.store.CancelRecurrence(ctx, tx, recurrence.ID, s.now().UTC(), optionalString(req.Reason))
	if err != nil {
		err = appErrors.WrapAs(appErrors.ErrStorage, err, "failed to cancel recurrence")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		err = appErrors.WrapAs(appErrors.ErrStorage, err, "failed to commit cancellation")
		return nil, err
	}

	if ids == nil {
		ids = []string{}
	}
	s.logger.Info("recurrence cancelled", zap.String("recurrence_id", recurrence.ID), zap.Int("cancelled", len(ids)))
	return &dto.CancelRecurrenceResult{RecurrenceID: recurrence.ID, Cancelled: len(ids), IDs: ids}, nil
}

// ListByResource returns the resource's reservations intersecting the query
// window. The window defaults to the next 30 days.
func (s *ReservationService) ListByResource(ctx context.Context, resourceID string, query dto.ReservationQuery) ([]models.Reservation, error) {
	if strings.TrimSpace(resourceID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "resource id is required")
	}
	from, to, err := s.window(query)
	if err != nil {
		return nil, err
	}
	reservations, err := s.store.List(ctx, models.ReservationFilter{ResourceID: resourceID, From: &from, To: &to})
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrStorage, err, "failed to list reservations")
	}
	return reservations, nil
}

// ListMine returns the actor's upcoming non-cancelled reservations.
func (s *ReservationService) ListMine(ctx context.Context, actor models.Actor, query dto.ReservationQuery) ([]models.Reservation, error) {
	if actor.ID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing actor")
	}
	from, to, err := s.window(query)
	if err != nil {
		return nil, err
	}
	reservations, err := s.store.List(ctx, models.ReservationFilter{
		RequesterID: actor.ID,
		From:        &from,
		To:          &to,
		Statuses:    []models.ReservationStatus{models.ReservationStatusPending, models.ReservationStatusConfirmed},
	})
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrStorage, err, "failed to list reservations")
	}
	return reservations, nil
}

func (s *ReservationService) window(query dto.ReservationQuery) (time.Time, time.Time, error) {
	from := s.now().UTC()
	if query.From != nil {
		from = *query.From
	}
	to := from.Add(defaultListWindow)
	if query.To != nil {
		to = *query.To
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "to must be after from")
	}
	return from, to, nil
}

func (s *ReservationService) loadRules(ctx context.Context) (models.ScheduleRules, *time.Location, error) {
	rules, err := s.rules.GetScheduleRules(ctx)
	if err != nil {
		return models.ScheduleRules{}, nil, err
	}
	loc, err := civiltime.LoadLocation(rules.TimeZone)
	if err != nil {
		return models.ScheduleRules{}, nil, appErrors.WrapAs(appErrors.ErrInternal, err, "configured timezone is not loadable")
	}
	return rules, loc, nil
}

func (s *ReservationService) finish(ctx context.Context, event *models.AuditEvent, result *dto.BookingResult, err error) {
	occurrences := 0
	if result != nil {
		event.ReservationIDs = result.ReservationIDs
		event.RecurrenceID = result.RecurrenceID
		event.Message = result.Message
		occurrences = result.Occurrences
	}
	fillAuditOutcome(event, err)
	s.metrics.RecordBooking(event.Action, event.ErrorCode, occurrences)
	s.record(ctx, *event)
}

func (s *ReservationService) record(ctx context.Context, event models.AuditEvent) {
	if s.audit != nil {
		s.audit.Record(ctx, event)
	}
}

func requireIdentity(actorID, targetID string) error {
	if strings.TrimSpace(actorID) == "" {
		return appErrors.Clone(appErrors.ErrUnauthorized, "missing actor")
	}
	if strings.TrimSpace(targetID) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "target id is required")
	}
	return nil
}

func storeLookupError(err error, notFound string) error {
	if errors.Is(err, repository.ErrReservationNotFound) || errors.Is(err, repository.ErrRecurrenceNotFound) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.WrapAs(appErrors.ErrStorage, err, "failed to load reservation")
}

func trimmedSubject(subject *string) *string {
	if subject == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*subject)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
