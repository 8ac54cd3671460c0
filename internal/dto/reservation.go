package dto

import "time"

// BookReservationRequest books one or more contiguous slots, optionally
// repeating weekly.
type BookReservationRequest struct {
	Date        string   `json:"date" validate:"required,civildate"`
	SlotIDs     []string `json:"slotIds" validate:"required,min=1,dive,required"`
	Occurrences int      `json:"occurrences"`
	Subject     *string  `json:"subject" validate:"omitempty,max=200"`
}

// AssignAcademicPeriodRequest books the same slots for an instructor for the
// whole configured academic period.
type AssignAcademicPeriodRequest struct {
	Date         string   `json:"date" validate:"required,civildate"`
	SlotIDs      []string `json:"slotIds" validate:"required,min=1,dive,required"`
	InstructorID string   `json:"instructorId" validate:"required"`
	Subject      string   `json:"subject" validate:"required,max=200"`
}

// CancelReservationRequest carries the optional cancellation reason.
type CancelReservationRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// BookingResult reports a successful booking.
type BookingResult struct {
	Success        bool      `json:"success"`
	Message        string    `json:"message"`
	Occurrences    int       `json:"occurrences"`
	ReservationIDs []string  `json:"reservationIds"`
	RecurrenceID   *string   `json:"recurrenceId,omitempty"`
	StartTime      time.Time `json:"startTime"`
	EndTime        time.Time `json:"endTime"`
}

// CancelRecurrenceResult reports how many occurrences a series cancellation touched.
type CancelRecurrenceResult struct {
	RecurrenceID string   `json:"recurrenceId"`
	Cancelled    int      `json:"cancelled"`
	IDs          []string `json:"ids"`
}

// ReservationQuery filters reservation listings.
type ReservationQuery struct {
	From *time.Time
	To   *time.Time
}

// CancelReservationResult reports the state after a cancellation request.
type CancelReservationResult struct {
	ReservationID    string     `json:"reservationId"`
	AlreadyCancelled bool       `json:"alreadyCancelled"`
	CancelledAt      *time.Time `json:"cancelledAt,omitempty"`
}
