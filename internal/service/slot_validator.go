package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/lab-reservation-api/internal/models"
	appErrors "github.com/noah-isme/lab-reservation-api/pkg/errors"
)

// ValidateSlotSelection checks the chosen slot ids against a freshly built
// schedule and reduces them to one uninterrupted window.
func ValidateSlotSelection(schedule *models.DailySchedule, slotIDs []string) (models.TimeWindow, error) {
	if schedule == nil {
		return models.TimeWindow{}, appErrors.Clone(appErrors.ErrValidation, "schedule is required")
	}
	if len(slotIDs) == 0 {
		return models.TimeWindow{}, appErrors.Clone(appErrors.ErrValidation, "at least one slot must be selected")
	}

	all := schedule.AllSlots()
	index := make(map[string]models.Slot, len(all))
	for _, slot := range all {
		index[slot.ID] = slot
	}

	seen := make(map[string]struct{}, len(slotIDs))
	selected := make([]models.Slot, 0, len(slotIDs))
	var missing []string
	for _, id := range slotIDs {
		if _, dup := seen[id]; dup {
			return models.TimeWindow{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("slot %s selected more than once", id))
		}
		seen[id] = struct{}{}
		slot, ok := index[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		selected = append(selected, slot)
	}
	if len(missing) > 0 {
		return models.TimeWindow{}, slotError(appErrors.ErrSlotNotFound, missing, "slot not found in schedule")
	}

	var occupied, past []string
	for _, slot := range selected {
		if slot.IsOccupied {
			occupied = append(occupied, slot.ID)
		}
		if slot.IsPast {
			past = append(past, slot.ID)
		}
	}
	if len(occupied) > 0 {
		return models.TimeWindow{}, slotError(appErrors.ErrSlotOccupied, occupied, "slot already reserved")
	}
	if len(past) > 0 {
		return models.TimeWindow{}, slotError(appErrors.ErrSlotInPast, past, "slot already ended")
	}

	window := spanOf(selected)

	var gaps []string
	for _, slot := range all {
		if slot.StartTime.Before(window.Start) || slot.EndTime.After(window.End) {
			continue
		}
		if _, ok := seen[slot.ID]; !ok {
			gaps = append(gaps, slot.ID)
		}
	}
	if len(gaps) > 0 {
		return models.TimeWindow{}, slotError(appErrors.ErrMissingIntermediateSlot, gaps, "selection skips intermediate slot")
	}

	return window, nil
}

func spanOf(slots []models.Slot) models.TimeWindow {
	var start, end time.Time
	for i, slot := range slots {
		if i == 0 || slot.StartTime.Before(start) {
			start = slot.StartTime
		}
		if i == 0 || slot.EndTime.After(end) {
			end = slot.EndTime
		}
	}
	return models.TimeWindow{Start: start, End: end}
}

func slotError(kind *appErrors.Error, ids []string, prefix string) error {
	message := fmt.Sprintf("%s: %s", prefix, strings.Join(ids, ", "))
	return appErrors.Wrap(&models.SlotSelectionError{SlotIDs: ids, Message: message}, kind.Code, kind.Status, message)
}
