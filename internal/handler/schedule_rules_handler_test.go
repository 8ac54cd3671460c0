package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lab-reservation-api/internal/dto"
	"github.com/noah-isme/lab-reservation-api/internal/models"
	appErrors "github.com/noah-isme/lab-reservation-api/pkg/errors"
)

type scheduleRulesServiceMock struct {
	rules      models.ScheduleRules
	err        error
	gotActorID string
	gotReq     dto.UpdateScheduleRulesRequest
}

func (m *scheduleRulesServiceMock) GetScheduleRules(ctx context.Context) (models.ScheduleRules, error) {
	return m.rules, m.err
}

func (m *scheduleRulesServiceMock) UpdateScheduleRules(ctx context.Context, actorID string, req dto.UpdateScheduleRulesRequest) (models.ScheduleRules, error) {
	m.gotActorID = actorID
	m.gotReq = req
	return m.rules, m.err
}

func TestScheduleRulesHandlerGet(t *testing.T) {
	svc := &scheduleRulesServiceMock{rules: models.ScheduleRules{TimeZone: "America/Sao_Paulo"}}
	h := NewScheduleRulesHandler(svc)
	c, w := newTestContext(http.MethodGet, "/schedule-rules", nil)

	h.Get(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "America/Sao_Paulo")
}

func TestScheduleRulesHandlerGetStorageError(t *testing.T) {
	svc := &scheduleRulesServiceMock{err: appErrors.Clone(appErrors.ErrStorage, "failed to load schedule rules")}
	h := NewScheduleRulesHandler(svc)
	c, w := newTestContext(http.MethodGet, "/schedule-rules", nil)

	h.Get(c)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "STORAGE_ERROR")
}

func TestScheduleRulesHandlerUpdate(t *testing.T) {
	svc := &scheduleRulesServiceMock{rules: models.ScheduleRules{TimeZone: "UTC"}}
	h := NewScheduleRulesHandler(svc)
	body := []byte(`{"timeZone":"UTC","periods":{"morning":{"firstClassTime":"07:00","classDurationMinutes":50,"classesCount":4}}}`)
	c, w := newTestContext(http.MethodPut, "/schedule-rules", body)
	withClaims(c, "admin-1", models.RoleAdmin)

	h.Update(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin-1", svc.gotActorID)
	assert.Equal(t, 50, svc.gotReq.Periods["morning"].ClassDurationMinutes)
}

func TestScheduleRulesHandlerUpdateRequiresAuth(t *testing.T) {
	h := NewScheduleRulesHandler(&scheduleRulesServiceMock{})
	c, w := newTestContext(http.MethodPut, "/schedule-rules", []byte(`{}`))

	h.Update(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}
