package models

import (
	"time"

	"github.com/noah-isme/lab-reservation-api/pkg/civiltime"
)

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "PENDING"
	ReservationStatusConfirmed ReservationStatus = "CONFIRMED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
)

// Reservation is a booked window of a resource. Reservations are only mutated
// by cancellation.
type Reservation struct {
	ID                 string            `db:"id" json:"id"`
	ResourceID         string            `db:"resource_id" json:"resource_id"`
	RequesterID        string            `db:"requester_id" json:"requester_id"`
	StartTime          time.Time         `db:"start_time" json:"start_time"`
	EndTime            time.Time         `db:"end_time" json:"end_time"`
	Status             ReservationStatus `db:"status" json:"status"`
	Subject            *string           `db:"subject" json:"subject,omitempty"`
	RecurrenceID       *string           `db:"recurrence_id" json:"recurrence_id,omitempty"`
	CancellationReason *string           `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time        `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
}

// IsCancelled reports whether the reservation no longer holds its window.
func (r *Reservation) IsCancelled() bool {
	return r != nil && r.Status == ReservationStatusCancelled
}

// Summary projects the reservation for slot annotation.
func (r *Reservation) Summary() *ReservationSummary {
	if r == nil {
		return nil
	}
	return &ReservationSummary{
		ID:           r.ID,
		RequesterID:  r.RequesterID,
		Status:       r.Status,
		Subject:      r.Subject,
		RecurrenceID: r.RecurrenceID,
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
	}
}

// RecurrenceFrequency enumerates supported repeat frequencies.
type RecurrenceFrequency string

// RecurrenceWeekly is the only frequency the booking flow creates.
const RecurrenceWeekly RecurrenceFrequency = "WEEKLY"

// ReservationRecurrence groups the reservations of one recurring request.
// It is immutable once created.
type ReservationRecurrence struct {
	ID          string              `db:"id" json:"id"`
	ResourceID  string              `db:"resource_id" json:"resource_id"`
	RequesterID string              `db:"requester_id" json:"requester_id"`
	Frequency   RecurrenceFrequency `db:"frequency" json:"frequency"`
	Interval    int                 `db:"interval" json:"interval"`
	WeekDay     int                 `db:"week_day" json:"week_day"`
	StartDate   time.Time           `db:"start_date" json:"start_date"`
	EndDate     time.Time           `db:"end_date" json:"end_date"`
	Subject     *string             `db:"subject" json:"subject,omitempty"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
}

// ReservationFilter narrows reservation listings.
type ReservationFilter struct {
	ResourceID  string
	RequesterID string
	From        *time.Time
	To          *time.Time
	Statuses    []ReservationStatus
	Limit       int
}

// ReservationConflictError names the occurrence date that collided.
type ReservationConflictError struct {
	Date          civiltime.Date `json:"date"`
	ConflictingID string         `json:"conflicting_id,omitempty"`
	Message       string         `json:"message"`
}

// Error implements the error interface.
func (e *ReservationConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// NonTeachingDayError names the excluded date and the configured reason.
type NonTeachingDayError struct {
	Date    civiltime.Date `json:"date"`
	Reason  string         `json:"reason"`
	Message string         `json:"message"`
}

// Error implements the error interface.
func (e *NonTeachingDayError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// SlotSelectionError lists slot ids that failed a selection check.
type SlotSelectionError struct {
	SlotIDs []string `json:"slot_ids"`
	Message string   `json:"message"`
}

// Error implements the error interface.
func (e *SlotSelectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// ErrorDetails exposes the conflicting date to API clients.
func (e *ReservationConflictError) ErrorDetails() map[string]interface{} {
	details := map[string]interface{}{"date": e.Date.String()}
	if e.ConflictingID != "" {
		details["conflicting_id"] = e.ConflictingID
	}
	return details
}

// ErrorDetails exposes the excluded date and reason to API clients.
func (e *NonTeachingDayError) ErrorDetails() map[string]interface{} {
	return map[string]interface{}{"date": e.Date.String(), "reason": e.Reason}
}

// ErrorDetails exposes the offending slot ids to API clients.
func (e *SlotSelectionError) ErrorDetails() map[string]interface{} {
	return map[string]interface{}{"slot_ids": e.SlotIDs}
}
