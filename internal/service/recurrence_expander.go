package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/lab-reservation-api/internal/models"
	"github.com/noah-isme/lab-reservation-api/internal/repository"
	"github.com/noah-isme/lab-reservation-api/pkg/civiltime"
	appErrors "github.com/noah-isme/lab-reservation-api/pkg/errors"
)

// DefaultMaxOccurrences caps weekly series length.
const DefaultMaxOccurrences = 26

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type reservationWriter interface {
	LockResource(ctx context.Context, exec sqlx.ExtContext, resourceID string) error
	CreateRecurrence(ctx context.Context, exec sqlx.ExtContext, recurrence *models.ReservationRecurrence) error
	Create(ctx context.Context, exec sqlx.ExtContext, reservation *models.Reservation) error
}

type conflictChecker interface {
	Check(ctx context.Context, exec sqlx.ExtContext, resourceID string, window models.TimeWindow, date civiltime.Date) error
}

// RecurrenceExpanderConfig tunes expansion.
type RecurrenceExpanderConfig struct {
	MaxOccurrences int
	// SubjectSupported reports whether the storage schema can persist a
	// subject label. It is probed once at startup.
	SubjectSupported bool
}

// ExpansionRequest is one validated booking window to persist weekly.
type ExpansionRequest struct {
	ResourceID  string
	RequesterID string
	Window      models.TimeWindow
	Occurrences int
	Subject     *string
	Status      models.ReservationStatus
	Rules       models.ScheduleRules
	Location    *time.Location
}

// ExpansionResult lists what was persisted.
type ExpansionResult struct {
	Recurrence   *models.ReservationRecurrence
	Reservations []models.Reservation
}

// Occurrence is one weekly instance of a requested window.
type Occurrence struct {
	Index  int
	Date   civiltime.Date
	Window models.TimeWindow
}

// RecurrenceExpander persists a window once or as a weekly series inside a
// single transaction.
type RecurrenceExpander struct {
	tx        txProvider
	repo      reservationWriter
	conflicts conflictChecker
	logger    *zap.Logger
	cfg       RecurrenceExpanderConfig
}

// NewRecurrenceExpander constructs a RecurrenceExpander.
func NewRecurrenceExpander(tx txProvider, repo reservationWriter, conflicts conflictChecker, logger *zap.Logger, cfg RecurrenceExpanderConfig) *RecurrenceExpander {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxOccurrences <= 0 || cfg.MaxOccurrences > DefaultMaxOccurrences {
		cfg.MaxOccurrences = DefaultMaxOccurrences
	}
	return &RecurrenceExpander{tx: tx, repo: repo, conflicts: conflicts, logger: logger, cfg: cfg}
}

// SubjectSupported exposes the schema capability flag.
func (e *RecurrenceExpander) SubjectSupported() bool {
	return e.cfg.SubjectSupported
}

// ClampOccurrences bounds n to [1, max].
func (e *RecurrenceExpander) ClampOccurrences(n int) int {
	if n < 1 {
		return 1
	}
	if n > e.cfg.MaxOccurrences {
		return e.cfg.MaxOccurrences
	}
	return n
}

// WeeklyOccurrences derives n weekly copies of window. Each occurrence keeps the
// base window's wall-clock bounds on its own civil date, so a DST transition
// between two weeks does not shift the class time.
func WeeklyOccurrences(window models.TimeWindow, n int, loc *time.Location) []Occurrence {
	baseDate := civiltime.DateOf(window.Start, loc)
	startMinute := civiltime.MinuteOfDay(window.Start, loc)
	endMinute := civiltime.MinuteOfDay(window.End, loc)
	if endDate := civiltime.DateOf(window.End, loc); !endDate.Equal(baseDate) {
		endMinute += daysBetween(baseDate, endDate) * civiltime.MinutesPerDay
	}

	out := make([]Occurrence, 0, n)
	for i := 0; i < n; i++ {
		date := baseDate.AddDays(7 * i)
		out = append(out, Occurrence{
			Index: i,
			Date:  date,
			Window: models.TimeWindow{
				Start: civiltime.Instant(date, startMinute, loc),
				End:   civiltime.Instant(date, endMinute, loc),
			},
		})
	}
	return out
}

// Expand persists the request. Any failing occurrence discards the whole batch.
func (e *RecurrenceExpander) Expand(ctx context.Context, req ExpansionRequest) (result *ExpansionResult, err error) {
	if !req.Window.End.After(req.Window.Start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "reservation window must end after it starts")
	}
	if e.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrStorage, "transaction provider missing")
	}
	loc := req.Location
	if loc == nil {
		if loc, err = civiltime.LoadLocation(req.Rules.TimeZone); err != nil {
			return nil, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid schedule timezone")
		}
	}
	status := req.Status
	if status == "" {
		status = models.ReservationStatusConfirmed
	}
	subject := req.Subject
	if subject != nil && !e.cfg.SubjectSupported {
		e.logger.Warn("subject column unavailable, dropping subject label", zap.String("resource_id", req.ResourceID))
		subject = nil
	}

	occurrences := WeeklyOccurrences(req.Window, e.ClampOccurrences(req.Occurrences), loc)

	tx, err := e.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrStorage, err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = e.repo.LockResource(ctx, tx, req.ResourceID); err != nil {
		err = appErrors.WrapAs(appErrors.ErrStorage, err, "failed to lock resource")
		return nil, err
	}

	result = &ExpansionResult{Reservations: make([]models.Reservation, 0, len(occurrences))}
	var recurrenceID *string
	if len(occurrences) > 1 {
		first, last := occurrences[0], occurrences[len(occurrences)-1]
		header := &models.ReservationRecurrence{
			ID:          uuid.NewString(),
			ResourceID:  req.ResourceID,
			RequesterID: req.RequesterID,
			Frequency:   models.RecurrenceWeekly,
			Interval:    1,
			WeekDay:     civiltime.WeekdayOf(first.Date, loc),
			StartDate:   first.Window.Start,
			EndDate:     last.Window.End,
			Subject:     subject,
		}
		if err = e.repo.CreateRecurrence(ctx, tx, header); err != nil {
			err = appErrors.WrapAs(appErrors.ErrStorage, err, "failed to create recurrence")
			return nil, err
		}
		result.Recurrence = header
		recurrenceID = &header.ID
	}

	for _, occ := range occurrences {
		if rule := MatchNonTeachingDay(req.Rules, occ.Date, loc); rule != nil {
			err = nonTeachingDay(occ.Date, rule.Reason)
			return nil, err
		}
		if err = e.conflicts.Check(ctx, tx, req.ResourceID, occ.Window, occ.Date); err != nil {
			return nil, err
		}
		reservation := models.Reservation{
			ID:           uuid.NewString(),
			ResourceID:   req.ResourceID,
			RequesterID:  req.RequesterID,
			StartTime:    occ.Window.Start,
			EndTime:      occ.Window.End,
			Status:       status,
			Subject:      subject,
			RecurrenceID: recurrenceID,
		}
		if err = e.repo.Create(ctx, tx, &reservation); err != nil {
			if errors.Is(err, repository.ErrReservationOverlap) {
				err = reservationConflict(occ.Date, "")
				return nil, err
			}
			err = appErrors.WrapAs(appErrors.ErrStorage, err, fmt.Sprintf("failed to create reservation for %s", occ.Date))
			return nil, err
		}
		result.Reservations = append(result.Reservations, reservation)
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.WrapAs(appErrors.ErrStorage, err, "failed to commit reservations")
		return nil, err
	}

	e.logger.Info("reservations created",
		zap.String("resource_id", req.ResourceID),
		zap.String("requester_id", req.RequesterID),
		zap.Int("occurrences", len(result.Reservations)),
	)
	return result, nil
}

func nonTeachingDay(date civiltime.Date, reason string) error {
	message := fmt.Sprintf("%s is a non-teaching day", date)
	if reason != "" {
		message = fmt.Sprintf("%s is a non-teaching day: %s", date, reason)
	}
	domainErr := &models.NonTeachingDayError{Date: date, Reason: reason, Message: message}
	return appErrors.Wrap(domainErr, appErrors.ErrNonTeachingDay.Code, appErrors.ErrNonTeachingDay.Status, message)
}

func daysBetween(from, to civiltime.Date) int {
	a := time.Date(from.Year, from.Month, from.Day, 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year, to.Month, to.Day, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
