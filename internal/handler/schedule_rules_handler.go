package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lab-reservation-api/internal/dto"
	"github.com/noah-isme/lab-reservation-api/internal/models"
	"github.com/noah-isme/lab-reservation-api/pkg/response"
)

type scheduleRulesService interface {
	GetScheduleRules(ctx context.Context) (models.ScheduleRules, error)
	UpdateScheduleRules(ctx context.Context, actorID string, req dto.UpdateScheduleRulesRequest) (models.ScheduleRules, error)
}

// ScheduleRulesHandler exposes the institution-wide schedule rules.
type ScheduleRulesHandler struct {
	service scheduleRulesService
}

// NewScheduleRulesHandler constructs the handler.
func NewScheduleRulesHandler(service scheduleRulesService) *ScheduleRulesHandler {
	return &ScheduleRulesHandler{service: service}
}

// Get godoc
// @Summary Current schedule rules
// @Tags ScheduleRules
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /schedule-rules [get]
func (h *ScheduleRulesHandler) Get(c *gin.Context) {
	rules, err := h.service.GetScheduleRules(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rules)
}

// Update godoc
// @Summary Replace schedule rules
// @Tags ScheduleRules
// @Accept json
// @Produce json
// @Param payload body dto.UpdateScheduleRulesRequest true "Rules payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /schedule-rules [put]
func (h *ScheduleRulesHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateScheduleRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid schedule rules payload"))
		return
	}
	rules, err := h.service.UpdateScheduleRules(c.Request.Context(), actor.ID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, rules)
}
