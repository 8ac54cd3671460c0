package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/lab-reservation-api/internal/models"
)

var (
	// ErrReservationNotFound is returned when no reservation matches.
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrRecurrenceNotFound is returned when no recurrence header matches.
	ErrRecurrenceNotFound = errors.New("recurrence not found")
	// ErrReservationOverlap is returned when the database exclusion constraint
	// rejects an insert that overlaps an active reservation.
	ErrReservationOverlap = errors.New("reservation overlaps an active reservation")
)

const pqExclusionViolation = "23P01"

// ReservationRepositoryOptions reflects the probed storage schema.
type ReservationRepositoryOptions struct {
	SubjectColumn bool
}

// ReservationRepository persists reservations and their recurrence headers.
type ReservationRepository struct {
	db                *sqlx.DB
	opts              ReservationRepositoryOptions
	reservationCols   string
	recurrenceCols    string
	insertReservation string
	insertRecurrence  string
}

// NewReservationRepository constructs the repository for the given schema shape.
func NewReservationRepository(db *sqlx.DB, opts ReservationRepositoryOptions) *ReservationRepository {
	subjectSelect := "NULL::text AS subject"
	if opts.SubjectColumn {
		subjectSelect = "subject"
	}
	repo := &ReservationRepository{
		db:   db,
		opts: opts,
		reservationCols: "id, resource_id, requester_id, start_time, end_time, status, " + subjectSelect +
			", recurrence_id, cancellation_reason, cancelled_at, created_at",
		recurrenceCols: `id, resource_id, requester_id, frequency, "interval", week_day, start_date, end_date, ` +
			subjectSelect + ", created_at",
	}
	if opts.SubjectColumn {
		repo.insertReservation = `INSERT INTO reservations (id, resource_id, requester_id, start_time, end_time, status, subject, recurrence_id, created_at)
VALUES (:id, :resource_id, :requester_id, :start_time, :end_time, :status, :subject, :recurrence_id, :created_at)`
		repo.insertRecurrence = `INSERT INTO reservation_recurrences (id, resource_id, requester_id, frequency, "interval", week_day, start_date, end_date, subject, created_at)
VALUES (:id, :resource_id, :requester_id, :frequency, :interval, :week_day, :start_date, :end_date, :subject, :created_at)`
	} else {
		repo.insertReservation = `INSERT INTO reservations (id, resource_id, requester_id, start_time, end_time, status, recurrence_id, created_at)
VALUES (:id, :resource_id, :requester_id, :start_time, :end_time, :status, :recurrence_id, :created_at)`
		repo.insertRecurrence = `INSERT INTO reservation_recurrences (id, resource_id, requester_id, frequency, "interval", week_day, start_date, end_date, created_at)
VALUES (:id, :resource_id, :requester_id, :frequency, :interval, :week_day, :start_date, :end_date, :created_at)`
	}
	return repo
}

func (r *ReservationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// SubjectSupported reports whether subject labels are persisted.
func (r *ReservationRepository) SubjectSupported() bool {
	return r.opts.SubjectColumn
}

// LockResource serialises writers of one resource until the transaction ends.
func (r *ReservationRepository) LockResource(ctx context.Context, exec sqlx.ExtContext, resourceID string) error {
	if _, err := r.exec(exec).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, resourceID); err != nil {
		return fmt.Errorf("lock resource %s: %w", resourceID, err)
	}
	return nil
}

// FindOverlapping returns active reservations intersecting [start, end).
func (r *ReservationRepository) FindOverlapping(ctx context.Context, exec sqlx.ExtContext, resourceID string, start, end time.Time) ([]models.Reservation, error) {
	query := `SELECT ` + r.reservationCols + ` FROM reservations
WHERE resource_id = $1 AND status <> 'CANCELLED' AND start_time < $2 AND end_time > $3
ORDER BY created_at ASC, id ASC`
	var rows []models.Reservation
	if err := sqlx.SelectContext(ctx, r.exec(exec), &rows, query, resourceID, end, start); err != nil {
		return nil, fmt.Errorf("find overlapping reservations: %w", err)
	}
	return rows, nil
}

// Create inserts a reservation.
func (r *ReservationRepository) Create(ctx context.Context, exec sqlx.ExtContext, reservation *models.Reservation) error {
	if reservation.ID == "" {
		reservation.ID = uuid.NewString()
	}
	if reservation.CreatedAt.IsZero() {
		reservation.CreatedAt = time.Now().UTC()
	}
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), r.insertReservation, reservation); err != nil {
		if isExclusionViolation(err) {
			return fmt.Errorf("create reservation: %w", ErrReservationOverlap)
		}
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

// CreateRecurrence inserts a recurrence header.
func (r *ReservationRepository) CreateRecurrence(ctx context.Context, exec sqlx.ExtContext, recurrence *models.ReservationRecurrence) error {
	if recurrence.ID == "" {
		recurrence.ID = uuid.NewString()
	}
	if recurrence.CreatedAt.IsZero() {
		recurrence.CreatedAt = time.Now().UTC()
	}
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), r.insertRecurrence, recurrence); err != nil {
		return fmt.Errorf("create recurrence: %w", err)
	}
	return nil
}

// FindByID fetches a reservation regardless of status.
func (r *ReservationRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Reservation, error) {
	query := `SELECT ` + r.reservationCols + ` FROM reservations WHERE id = $1`
	var reservation models.Reservation
	if err := sqlx.GetContext(ctx, r.exec(exec), &reservation, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, fmt.Errorf("find reservation: %w", err)
	}
	return &reservation, nil
}

// FindRecurrenceByID fetches a recurrence header.
func (r *ReservationRepository) FindRecurrenceByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ReservationRecurrence, error) {
	query := `SELECT ` + r.recurrenceCols + ` FROM reservation_recurrences WHERE id = $1`
	var recurrence models.ReservationRecurrence
	if err := sqlx.GetContext(ctx, r.exec(exec), &recurrence, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecurrenceNotFound
		}
		return nil, fmt.Errorf("find recurrence: %w", err)
	}
	return &recurrence, nil
}

// Cancel marks one reservation cancelled. It reports false when the row was
// already cancelled.
func (r *ReservationRepository) Cancel(ctx context.Context, exec sqlx.ExtContext, id string, reason *string, at time.Time) (bool, error) {
	const query = `UPDATE reservations SET status = 'CANCELLED', cancellation_reason = $2, cancelled_at = $3
WHERE id = $1 AND status <> 'CANCELLED'`
	res, err := r.exec(exec).ExecContext(ctx, query, id, reason, at)
	if err != nil {
		return false, fmt.Errorf("cancel reservation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel reservation rows affected: %w", err)
	}
	return affected > 0, nil
}

// CancelRecurrence cancels every active occurrence of recurrenceID starting at
// or after from, returning the ids it changed.
func (r *ReservationRepository) CancelRecurrence(ctx context.Context, exec sqlx.ExtContext, recurrenceID string, from time.Time, reason *string) ([]string, error) {
	const query = `UPDATE reservations SET status = 'CANCELLED', cancellation_reason = $3, cancelled_at = $2
WHERE recurrence_id = $1 AND start_time >= $2 AND status <> 'CANCELLED'
RETURNING id`
	var ids []string
	if err := sqlx.SelectContext(ctx, r.exec(exec), &ids, query, recurrenceID, from, reason); err != nil {
		return nil, fmt.Errorf("cancel recurrence: %w", err)
	}
	return ids, nil
}

// List returns reservations matching filter ordered by start time.
func (r *ReservationRepository) List(ctx context.Context, filter models.ReservationFilter) ([]models.Reservation, error) {
	var (
		conditions []string
		args       []interface{}
	)
	add := func(clause string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}
	if filter.ResourceID != "" {
		add("resource_id = $%d", filter.ResourceID)
	}
	if filter.RequesterID != "" {
		add("requester_id = $%d", filter.RequesterID)
	}
	if filter.To != nil {
		add("start_time < $%d", *filter.To)
	}
	if filter.From != nil {
		add("end_time > $%d", *filter.From)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			statuses[i] = string(status)
		}
		add("status = ANY($%d)", pq.Array(statuses))
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(r.reservationCols)
	sb.WriteString(" FROM reservations")
	if len(conditions) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}
	sb.WriteString(" ORDER BY start_time ASC, created_at ASC, id ASC")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}

	var rows []models.Reservation
	if err := r.db.SelectContext(ctx, &rows, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return rows, nil
}

func isExclusionViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pqExclusionViolation
}
