package service

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/lab-reservation-api/internal/models"
	"github.com/noah-isme/lab-reservation-api/pkg/civiltime"
)

// ScheduleBuildInput carries everything needed to compute one resource's day.
type ScheduleBuildInput struct {
	ResourceID   string
	Date         civiltime.Date
	Rules        models.ScheduleRules
	Location     *time.Location
	Reservations []models.Reservation
	Now          time.Time
	NonTeaching  *models.NonTeachingDayRule
}

// BuildDailySchedule turns period rules, the day's reservations and a matched
// calendar exception into an ordered, annotated slot grid. Identical inputs
// always produce identical output.
func BuildDailySchedule(in ScheduleBuildInput) (*models.DailySchedule, error) {
	loc := in.Location
	if loc == nil {
		var err error
		loc, err = civiltime.LoadLocation(in.Rules.TimeZone)
		if err != nil {
			return nil, err
		}
	}

	schedule := &models.DailySchedule{
		ResourceID: in.ResourceID,
		Date:       in.Date,
		TimeZone:   loc.String(),
		Periods:    make([]models.SchedulePeriod, 0, len(models.PeriodOrder)),
	}
	if in.NonTeaching != nil {
		schedule.IsNonTeachingDay = true
		reason := in.NonTeaching.Reason
		schedule.NonTeachingReason = &reason
	}

	occupants := activeByCreation(in.Reservations)

	for _, periodID := range models.PeriodOrder {
		rule, ok := in.Rules.Periods[periodID]
		if !ok {
			continue
		}
		bounds := PeriodSlotMinutes(rule)
		period := models.SchedulePeriod{ID: periodID, Slots: make([]models.Slot, 0, len(bounds))}
		for idx, b := range bounds {
			slot := models.Slot{
				ID:         SlotID(in.Date, periodID, idx+1),
				PeriodID:   periodID,
				ClassIndex: idx + 1,
				StartTime:  civiltime.Instant(in.Date, b.Start, loc),
				EndTime:    civiltime.Instant(in.Date, b.End, loc),
				StartClock: clockLabel(b.Start),
				EndClock:   clockLabel(b.End),
			}
			slot.IsPast = !slot.EndTime.After(in.Now)
			if owner := firstOverlapping(occupants, slot.StartTime, slot.EndTime); owner != nil {
				slot.IsOccupied = true
				slot.Reservation = owner.Summary()
			}
			period.Slots = append(period.Slots, slot)
		}
		schedule.Periods = append(schedule.Periods, period)
	}

	return schedule, nil
}

// MinuteRange is a half-open civil [Start, End) range in minutes-of-day.
type MinuteRange struct {
	Start int
	End   int
}

// PeriodSlotMinutes lays out the civil bounds of every class in a period.
// Intervals push later classes back instead of being bookable themselves.
func PeriodSlotMinutes(rule models.PeriodRule) []MinuteRange {
	if rule.ClassesCount <= 0 || rule.ClassDurationMinutes <= 0 {
		return nil
	}
	intervals := make([]models.Interval, len(rule.Intervals))
	copy(intervals, rule.Intervals)
	sort.SliceStable(intervals, func(i, j int) bool { return intervals[i].Start < intervals[j].Start })

	out := make([]MinuteRange, 0, rule.ClassesCount)
	cursor := rule.FirstClassTime
	next := 0
	for k := 0; k < rule.ClassesCount; k++ {
		for next < len(intervals) && intervals[next].Start < cursor+rule.ClassDurationMinutes {
			if end := intervals[next].End(); end > cursor {
				cursor = end
			}
			next++
		}
		out = append(out, MinuteRange{Start: cursor, End: cursor + rule.ClassDurationMinutes})
		cursor += rule.ClassDurationMinutes
	}
	return out
}

// SlotID derives the deterministic identifier of a slot.
func SlotID(date civiltime.Date, period models.PeriodID, classIndex int) string {
	return fmt.Sprintf("%s_%s_%d", date.String(), period, classIndex)
}

// ParseSlotID splits a slot id back into its components.
func ParseSlotID(id string) (civiltime.Date, models.PeriodID, int, error) {
	parts := strings.Split(id, "_")
	if len(parts) != 3 {
		return civiltime.Date{}, "", 0, fmt.Errorf("malformed slot id %q", id)
	}
	date, err := civiltime.ParseDate(parts[0])
	if err != nil {
		return civiltime.Date{}, "", 0, fmt.Errorf("malformed slot id %q: %w", id, err)
	}
	index, err := strconv.Atoi(parts[2])
	if err != nil || index < 1 {
		return civiltime.Date{}, "", 0, fmt.Errorf("malformed slot id %q", id)
	}
	return date, models.PeriodID(parts[1]), index, nil
}

// activeByCreation drops cancelled rows and orders the rest so the earliest
// created reservation wins when legacy data double-books a slot.
func activeByCreation(reservations []models.Reservation) []models.Reservation {
	active := make([]models.Reservation, 0, len(reservations))
	for _, r := range reservations {
		if r.Status == models.ReservationStatusCancelled {
			continue
		}
		active = append(active, r)
	}
	sort.SliceStable(active, func(i, j int) bool {
		if !active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].CreatedAt.Before(active[j].CreatedAt)
		}
		return active[i].ID < active[j].ID
	})
	return active
}

func firstOverlapping(reservations []models.Reservation, start, end time.Time) *models.Reservation {
	for i := range reservations {
		r := &reservations[i]
		if r.StartTime.Before(end) && r.EndTime.After(start) {
			return r
		}
	}
	return nil
}

func clockLabel(minute int) string {
	if minute == civiltime.MinutesPerDay {
		return "24:00"
	}
	label, err := civiltime.FormatClock(minute)
	if err != nil {
		return strconv.Itoa(minute)
	}
	return label
}
