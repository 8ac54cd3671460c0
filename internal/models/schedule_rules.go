package models

import "github.com/noah-isme/lab-reservation-api/pkg/civiltime"

// PeriodID identifies one of the day's scheduling blocks.
type PeriodID string

const (
	PeriodMorning   PeriodID = "morning"
	PeriodAfternoon PeriodID = "afternoon"
	PeriodEvening   PeriodID = "evening"
)

// PeriodOrder is the fixed chronological order periods are evaluated in.
var PeriodOrder = []PeriodID{PeriodMorning, PeriodAfternoon, PeriodEvening}

// Interval is a non-bookable break inside a period, in civil minutes-of-day.
type Interval struct {
	Start           int `json:"start"`
	DurationMinutes int `json:"durationMinutes"`
}

// End returns the exclusive end minute of the interval.
func (i Interval) End() int {
	return i.Start + i.DurationMinutes
}

// PeriodRule configures the slot grid of one period.
type PeriodRule struct {
	FirstClassTime       int        `json:"firstClassTime"`
	ClassDurationMinutes int        `json:"classDurationMinutes"`
	ClassesCount         int        `json:"classesCount"`
	Intervals            []Interval `json:"intervals"`
}

// SpanMinutes is the total length of the period including its intervals.
func (p PeriodRule) SpanMinutes() int {
	span := p.ClassesCount * p.ClassDurationMinutes
	for _, interval := range p.Intervals {
		span += interval.DurationMinutes
	}
	return span
}

// AcademicPeriod describes the teaching period used for full-term assignments.
type AcademicPeriod struct {
	Label         string `json:"label"`
	DurationWeeks int    `json:"durationWeeks"`
	Description   string `json:"description"`
}

// NonTeachingDayKind discriminates calendar exception rules.
type NonTeachingDayKind string

const (
	NonTeachingDayDate    NonTeachingDayKind = "DATE"
	NonTeachingDayWeekday NonTeachingDayKind = "WEEKDAY"
)

// NonTeachingDayRule excludes a specific date (optionally every year) or a
// fixed weekday (0 = Sunday) from booking.
type NonTeachingDayRule struct {
	ID              string             `json:"id"`
	Kind            NonTeachingDayKind `json:"kind"`
	Date            *civiltime.Date    `json:"date,omitempty"`
	RepeatsAnnually bool               `json:"repeatsAnnually"`
	Weekday         *int               `json:"weekday,omitempty"`
	Reason          string             `json:"reason"`
}

// ScheduleRules is the institution-wide scheduling configuration.
type ScheduleRules struct {
	TimeZone        string                  `json:"timeZone"`
	Periods         map[PeriodID]PeriodRule `json:"periods"`
	AcademicPeriod  AcademicPeriod          `json:"academicPeriod"`
	NonTeachingDays []NonTeachingDayRule    `json:"nonTeachingDays"`
}
