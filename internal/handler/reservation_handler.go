package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lab-reservation-api/internal/dto"
	"github.com/noah-isme/lab-reservation-api/internal/models"
	"github.com/noah-isme/lab-reservation-api/internal/service"
	"github.com/noah-isme/lab-reservation-api/pkg/civiltime"
	appErrors "github.com/noah-isme/lab-reservation-api/pkg/errors"
	"github.com/noah-isme/lab-reservation-api/pkg/response"
)

type reservationService interface {
	GetDailySchedule(ctx context.Context, resourceID string, date civiltime.Date) (*models.DailySchedule, error)
	Book(ctx context.Context, actor models.Actor, resourceID string, req dto.BookReservationRequest) (*dto.BookingResult, error)
	AssignAcademicPeriod(ctx context.Context, actor models.Actor, resourceID string, req dto.AssignAcademicPeriodRequest) (*dto.BookingResult, error)
	Cancel(ctx context.Context, actor models.Actor, reservationID string, req dto.CancelReservationRequest) (*dto.CancelReservationResult, error)
	CancelRecurrence(ctx context.Context, actor models.Actor, recurrenceID string, req dto.CancelReservationRequest) (*dto.CancelRecurrenceResult, error)
	ListByResource(ctx context.Context, resourceID string, query dto.ReservationQuery) ([]models.Reservation, error)
	ListMine(ctx context.Context, actor models.Actor, query dto.ReservationQuery) ([]models.Reservation, error)
}

// ScheduleExporter renders a daily schedule as a downloadable file.
type ScheduleExporter interface {
	ExportDailySchedule(ctx context.Context, resourceID string, date civiltime.Date, format string) (*service.ExportFile, error)
}

// ReservationHandler exposes schedule and booking endpoints.
type ReservationHandler struct {
	service  reservationService
	exporter ScheduleExporter
}

// NewReservationHandler constructs the handler. exporter may be nil when exports are disabled.
func NewReservationHandler(service reservationService, exporter ScheduleExporter) *ReservationHandler {
	return &ReservationHandler{service: service, exporter: exporter}
}

// GetSchedule godoc
// @Summary Daily schedule of a resource
// @Tags Schedule
// @Produce json
// @Param id path string true "Resource ID"
// @Param date query string true "Civil date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /resources/{id}/schedule [get]
func (h *ReservationHandler) GetSchedule(c *gin.Context) {
	resourceID, ok := requireParam(c, "id")
	if !ok {
		return
	}
	date, ok := requireDateQuery(c, "date")
	if !ok {
		return
	}
	schedule, err := h.service.GetDailySchedule(c.Request.Context(), resourceID, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, schedule)
}

// ExportSchedule godoc
// @Summary Export a resource's daily schedule
// @Tags Schedule
// @Produce application/pdf
// @Produce text/csv
// @Param id path string true "Resource ID"
// @Param date query string true "Civil date (YYYY-MM-DD)"
// @Param format query string false "pdf or csv"
// @Success 200 {file} file
// @Router /resources/{id}/schedule/export [get]
func (h *ReservationHandler) ExportSchedule(c *gin.Context) {
	if h.exporter == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "exports are disabled"))
		return
	}
	resourceID, ok := requireParam(c, "id")
	if !ok {
		return
	}
	date, ok := requireDateQuery(c, "date")
	if !ok {
		return
	}
	file, err := h.exporter.ExportDailySchedule(c.Request.Context(), resourceID, date, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Body)
}

// ListByResource godoc
// @Summary Reservations of a resource in a window
// @Tags Reservations
// @Produce json
// @Param id path string true "Resource ID"
// @Param from query string false "RFC3339 start"
// @Param to query string false "RFC3339 end"
// @Success 200 {object} response.Envelope
// @Router /resources/{id}/reservations [get]
func (h *ReservationHandler) ListByResource(c *gin.Context) {
	resourceID, ok := requireParam(c, "id")
	if !ok {
		return
	}
	query, ok := reservationQuery(c)
	if !ok {
		return
	}
	items, err := h.service.ListByResource(c.Request.Context(), resourceID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items, map[string]interface{}{"count": len(items)})
}

// Book godoc
// @Summary Book contiguous slots, optionally weekly
// @Tags Reservations
// @Accept json
// @Produce json
// @Param id path string true "Resource ID"
// @Param payload body dto.BookReservationRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /resources/{id}/reservations [post]
func (h *ReservationHandler) Book(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	resourceID, ok := requireParam(c, "id")
	if !ok {
		return
	}
	var req dto.BookReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid reservation payload"))
		return
	}
	result, err := h.service.Book(c.Request.Context(), actor, resourceID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Assign godoc
// @Summary Assign slots to an instructor for the academic period
// @Tags Reservations
// @Accept json
// @Produce json
// @Param id path string true "Resource ID"
// @Param payload body dto.AssignAcademicPeriodRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /resources/{id}/assignments [post]
func (h *ReservationHandler) Assign(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	resourceID, ok := requireParam(c, "id")
	if !ok {
		return
	}
	var req dto.AssignAcademicPeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid assignment payload"))
		return
	}
	result, err := h.service.AssignAcademicPeriod(c.Request.Context(), actor, resourceID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Cancel godoc
// @Summary Cancel a reservation
// @Tags Reservations
// @Accept json
// @Produce json
// @Param id path string true "Reservation ID"
// @Param payload body dto.CancelReservationRequest false "Cancellation reason"
// @Success 200 {object} response.Envelope
// @Router /reservations/{id}/cancel [post]
func (h *ReservationHandler) Cancel(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	reservationID, ok := requireParam(c, "id")
	if !ok {
		return
	}
	req, ok := cancelPayload(c)
	if !ok {
		return
	}
	result, err := h.service.Cancel(c.Request.Context(), actor, reservationID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// CancelRecurrence godoc
// @Summary Cancel the remaining occurrences of a weekly series
// @Tags Reservations
// @Accept json
// @Produce json
// @Param id path string true "Recurrence ID"
// @Param payload body dto.CancelReservationRequest false "Cancellation reason"
// @Success 200 {object} response.Envelope
// @Router /recurrences/{id}/cancel [post]
func (h *ReservationHandler) CancelRecurrence(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	recurrenceID, ok := requireParam(c, "id")
	if !ok {
		return
	}
	req, ok := cancelPayload(c)
	if !ok {
		return
	}
	result, err := h.service.CancelRecurrence(c.Request.Context(), actor, recurrenceID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// ListMine godoc
// @Summary Upcoming reservations of the caller
// @Tags Reservations
// @Produce json
// @Param from query string false "RFC3339 start"
// @Param to query string false "RFC3339 end"
// @Success 200 {object} response.Envelope
// @Router /me/reservations [get]
func (h *ReservationHandler) ListMine(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	query, ok := reservationQuery(c)
	if !ok {
		return
	}
	items, err := h.service.ListMine(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, map[string]interface{}{"count": len(items)})
}

func reservationQuery(c *gin.Context) (dto.ReservationQuery, bool) {
	from, ok := optionalTimeQuery(c, "from")
	if !ok {
		return dto.ReservationQuery{}, false
	}
	to, ok := optionalTimeQuery(c, "to")
	if !ok {
		return dto.ReservationQuery{}, false
	}
	return dto.ReservationQuery{From: from, To: to}, true
}

func cancelPayload(c *gin.Context) (dto.CancelReservationRequest, bool) {
	var req dto.CancelReservationRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid cancellation payload"))
		return req, false
	}
	return req, true
}
