package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lab-reservation-api/internal/models"
	"github.com/noah-isme/lab-reservation-api/pkg/civiltime"
	appErrors "github.com/noah-isme/lab-reservation-api/pkg/errors"
)

type reservationOverlapFinder interface {
	FindOverlapping(ctx context.Context, exec sqlx.ExtContext, resourceID string, start, end time.Time) ([]models.Reservation, error)
}

// ConflictDetector checks a candidate window against the resource's
// non-cancelled reservations. Callers run it on the transaction that performs
// the subsequent insert.
type ConflictDetector struct {
	repo reservationOverlapFinder
}

// NewConflictDetector constructs a ConflictDetector.
func NewConflictDetector(repo reservationOverlapFinder) *ConflictDetector {
	return &ConflictDetector{repo: repo}
}

// Check returns a RESERVATION_CONFLICT error naming date when any
// non-cancelled reservation satisfies existing.start < end && existing.end > start.
func (d *ConflictDetector) Check(ctx context.Context, exec sqlx.ExtContext, resourceID string, window models.TimeWindow, date civiltime.Date) error {
	existing, err := d.repo.FindOverlapping(ctx, exec, resourceID, window.Start, window.End)
	if err != nil {
		return appErrors.WrapAs(appErrors.ErrStorage, err, "failed to check reservation conflicts")
	}
	for _, r := range existing {
		if r.Status == models.ReservationStatusCancelled {
			continue
		}
		if window.Overlaps(r.StartTime, r.EndTime) {
			return reservationConflict(date, r.ID)
		}
	}
	return nil
}

func reservationConflict(date civiltime.Date, conflictingID string) error {
	message := fmt.Sprintf("resource already reserved on %s", date)
	domainErr := &models.ReservationConflictError{Date: date, ConflictingID: conflictingID, Message: message}
	return appErrors.Wrap(domainErr, appErrors.ErrReservationConflict.Code, appErrors.ErrReservationConflict.Status, message)
}
