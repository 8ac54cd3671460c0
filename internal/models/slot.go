package models

import (
	"time"

	"github.com/noah-isme/lab-reservation-api/pkg/civiltime"
)

// ReservationSummary is the reservation data attached to an occupied slot.
type ReservationSummary struct {
	ID           string            `json:"id"`
	RequesterID  string            `json:"requester_id"`
	Status       ReservationStatus `json:"status"`
	Subject      *string           `json:"subject,omitempty"`
	RecurrenceID *string           `json:"recurrence_id,omitempty"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      time.Time         `json:"end_time"`
}

// Slot is one bookable class-length window. Slots are computed per request
// and never persisted.
type Slot struct {
	ID          string              `json:"id"`
	PeriodID    PeriodID            `json:"period_id"`
	ClassIndex  int                 `json:"class_index"`
	StartTime   time.Time           `json:"start_time"`
	EndTime     time.Time           `json:"end_time"`
	StartClock  string              `json:"start_clock"`
	EndClock    string              `json:"end_clock"`
	IsPast      bool                `json:"is_past"`
	IsOccupied  bool                `json:"is_occupied"`
	Reservation *ReservationSummary `json:"reservation,omitempty"`
}

// SchedulePeriod groups the ordered slots of one period.
type SchedulePeriod struct {
	ID    PeriodID `json:"id"`
	Slots []Slot   `json:"slots"`
}

// DailySchedule is the annotated slot grid of one resource on one civil date.
type DailySchedule struct {
	ResourceID        string           `json:"resource_id"`
	Date              civiltime.Date   `json:"date"`
	TimeZone          string           `json:"time_zone"`
	IsNonTeachingDay  bool             `json:"is_non_teaching_day"`
	NonTeachingReason *string          `json:"non_teaching_reason,omitempty"`
	Periods           []SchedulePeriod `json:"periods"`
}

// AllSlots flattens the schedule into chronological order.
func (d *DailySchedule) AllSlots() []Slot {
	if d == nil {
		return nil
	}
	var slots []Slot
	for _, period := range d.Periods {
		slots = append(slots, period.Slots...)
	}
	return slots
}

// TimeWindow is a half-open [Start, End) absolute window.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps applies the open-interval overlap rule.
func (w TimeWindow) Overlaps(start, end time.Time) bool {
	return start.Before(w.End) && end.After(w.Start)
}
