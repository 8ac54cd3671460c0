package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/lab-reservation-api/internal/dto"
	"github.com/noah-isme/lab-reservation-api/internal/models"
	"github.com/noah-isme/lab-reservation-api/internal/repository"
	"github.com/noah-isme/lab-reservation-api/pkg/civiltime"
	appErrors "github.com/noah-isme/lab-reservation-api/pkg/errors"
)

type rulesStoreMock struct {
	stored   *models.Configuration
	getErr   error
	upsert   *models.Configuration
	getCalls int
}

func (m *rulesStoreMock) Get(ctx context.Context, key string) (*models.Configuration, error) {
	m.getCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.stored == nil {
		return nil, repository.ErrConfigurationNotFound
	}
	return m.stored, nil
}

func (m *rulesStoreMock) Upsert(ctx context.Context, cfg *models.Configuration) error {
	m.upsert = cfg
	m.stored = cfg
	return nil
}

type memoryCacheRepo struct {
	values  map[string][]byte
	deleted []string
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{values: map[string][]byte{}}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	return nil
}

func (m *memoryCacheRepo) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
		m.deleted = append(m.deleted, key)
	}
	return nil
}

type auditRecorderMock struct {
	events []models.AuditEvent
}

func (m *auditRecorderMock) Record(ctx context.Context, event models.AuditEvent) {
	m.events = append(m.events, event)
}

func storedRules(t *testing.T, rules models.ScheduleRules) *models.Configuration {
	t.Helper()
	raw, err := json.Marshal(rules)
	require.NoError(t, err)
	return &models.Configuration{Key: models.ConfigurationKeyScheduleRules, Value: string(raw), Type: models.ConfigurationTypeJSON}
}

func validRulesRequest() dto.UpdateScheduleRulesRequest {
	saturday := 6
	return dto.UpdateScheduleRulesRequest{
		TimeZone: "America/Sao_Paulo",
		Periods: map[string]dto.PeriodRulePayload{
			"morning": {
				FirstClassTime:       "07:00",
				ClassDurationMinutes: 50,
				ClassesCount:         2,
				Intervals:            []dto.IntervalPayload{{Start: "07:50", DurationMinutes: 10}},
			},
			"afternoon": {FirstClassTime: "13:00", ClassDurationMinutes: 45, ClassesCount: 4},
		},
		AcademicPeriod: dto.AcademicPeriodPayload{Label: "Quarter", DurationWeeks: 10},
		NonTeachingDays: []dto.NonTeachingDayPayload{
			{Kind: "WEEKDAY", Weekday: &saturday, Reason: "Saturday"},
			{Kind: "DATE", Date: "2024-12-25", RepeatsAnnually: true, Reason: "Christmas"},
		},
	}
}

func TestRulesServiceFallsBackToDefaultsWhenMissing(t *testing.T) {
	svc := NewRulesService(&rulesStoreMock{}, nil, nil, zap.NewNop(), nil, RulesServiceConfig{TimeZone: "America/Sao_Paulo"})

	rules, err := svc.GetScheduleRules(context.Background())
	require.NoError(t, err)

	assert.Equal(t, DefaultScheduleRules("America/Sao_Paulo"), rules)
	assert.NoError(t, ValidateScheduleRules(rules))
}

func TestRulesServiceFallsBackOnUnreadableRules(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	store := &rulesStoreMock{stored: &models.Configuration{Key: models.ConfigurationKeyScheduleRules, Value: "{not json"}}
	svc := NewRulesService(store, nil, nil, zap.New(core), nil, RulesServiceConfig{TimeZone: "UTC"})

	rules, err := svc.GetScheduleRules(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "UTC", rules.TimeZone)
	assert.Equal(t, 1, logs.FilterMessage("stored schedule rules unreadable, using defaults").Len())
}

func TestRulesServiceFallsBackOnInvalidStoredRules(t *testing.T) {
	broken := DefaultScheduleRules("UTC")
	broken.AcademicPeriod.DurationWeeks = 0
	svc := NewRulesService(&rulesStoreMock{stored: storedRules(t, broken)}, nil, nil, nil, nil, RulesServiceConfig{TimeZone: "UTC"})

	rules, err := svc.GetScheduleRules(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 18, rules.AcademicPeriod.DurationWeeks)
}

func TestRulesServiceStorageErrorSurfaces(t *testing.T) {
	svc := NewRulesService(&rulesStoreMock{getErr: errors.New("connection refused")}, nil, nil, nil, nil, RulesServiceConfig{})

	_, err := svc.GetScheduleRules(context.Background())

	requireAppCode(t, err, appErrors.ErrStorage)
}

func TestRulesServiceCachesLoadedRules(t *testing.T) {
	stored := twoClassMorningRules()
	store := &rulesStoreMock{stored: storedRules(t, stored)}
	cache := NewCacheService(newMemoryCacheRepo(), nil, time.Minute, nil, true)
	svc := NewRulesService(store, cache, nil, nil, nil, RulesServiceConfig{})

	first, err := svc.GetScheduleRules(context.Background())
	require.NoError(t, err)
	second, err := svc.GetScheduleRules(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, store.getCalls)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, second.Periods[models.PeriodMorning].ClassesCount)
}

func TestRulesServiceUpdateStoresAndInvalidates(t *testing.T) {
	store := &rulesStoreMock{}
	cacheRepo := newMemoryCacheRepo()
	audit := &auditRecorderMock{}
	svc := NewRulesService(store, NewCacheService(cacheRepo, nil, time.Minute, nil, true), nil, nil, audit, RulesServiceConfig{})

	rules, err := svc.UpdateScheduleRules(context.Background(), "admin-1", validRulesRequest())
	require.NoError(t, err)

	assert.Equal(t, 7*60, rules.Periods[models.PeriodMorning].FirstClassTime)
	assert.Equal(t, []models.Interval{{Start: 7*60 + 50, DurationMinutes: 10}}, rules.Periods[models.PeriodMorning].Intervals)
	require.Len(t, rules.NonTeachingDays, 2)
	assert.Equal(t, "non-teaching-1", rules.NonTeachingDays[0].ID)
	assert.Equal(t, civiltime.NewDate(2024, time.December, 25), *rules.NonTeachingDays[1].Date)

	require.NotNil(t, store.upsert)
	assert.Equal(t, models.ConfigurationKeyScheduleRules, store.upsert.Key)
	require.NotNil(t, store.upsert.UpdatedBy)
	assert.Equal(t, "admin-1", *store.upsert.UpdatedBy)
	assert.Contains(t, cacheRepo.deleted, scheduleRulesCacheKey)

	require.Len(t, audit.events, 1)
	assert.Equal(t, models.AuditActionRulesUpdate, audit.events[0].Action)
	assert.Equal(t, models.AuditOutcomeSuccess, audit.events[0].Outcome)

	reloaded, err := svc.GetScheduleRules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Quarter", reloaded.AcademicPeriod.Label)
}

func TestRulesServiceUpdateRejectsOverlappingPeriods(t *testing.T) {
	req := validRulesRequest()
	req.Periods["afternoon"] = dto.PeriodRulePayload{FirstClassTime: "08:00", ClassDurationMinutes: 50, ClassesCount: 2}
	audit := &auditRecorderMock{}
	store := &rulesStoreMock{}
	svc := NewRulesService(store, nil, nil, nil, audit, RulesServiceConfig{})

	_, err := svc.UpdateScheduleRules(context.Background(), "admin-1", req)

	requireAppCode(t, err, appErrors.ErrValidation)
	assert.Nil(t, store.upsert)
	require.Len(t, audit.events, 1)
	assert.Equal(t, models.AuditOutcomeFailure, audit.events[0].Outcome)
	assert.False(t, audit.events[0].Escalate)
}

func TestRulesServiceUpdateRejectsBadPayload(t *testing.T) {
	svc := NewRulesService(&rulesStoreMock{}, nil, nil, nil, nil, RulesServiceConfig{})

	req := validRulesRequest()
	req.Periods["night"] = dto.PeriodRulePayload{FirstClassTime: "23:00", ClassDurationMinutes: 30, ClassesCount: 1}
	_, err := svc.UpdateScheduleRules(context.Background(), "admin-1", req)
	requireAppCode(t, err, appErrors.ErrValidation)

	req = validRulesRequest()
	req.TimeZone = "Mars/Olympus"
	_, err = svc.UpdateScheduleRules(context.Background(), "admin-1", req)
	requireAppCode(t, err, appErrors.ErrValidation)
}

func TestValidateScheduleRulesRejectsClassesPastMidnight(t *testing.T) {
	rules := DefaultScheduleRules("UTC")
	evening := rules.Periods[models.PeriodEvening]
	evening.ClassesCount = 10
	rules.Periods[models.PeriodEvening] = evening

	requireAppCode(t, ValidateScheduleRules(rules), appErrors.ErrValidation)
}

func TestValidateScheduleRulesRejectsIntervalPushingClassPastMidnight(t *testing.T) {
	rules := DefaultScheduleRules("UTC")
	evening := models.PeriodRule{
		FirstClassTime:       23 * 60,
		ClassDurationMinutes: 50,
		ClassesCount:         1,
		Intervals:            []models.Interval{{Start: 23*60 + 30, DurationMinutes: 10}},
	}
	rules.Periods[models.PeriodEvening] = evening

	layout := PeriodSlotMinutes(evening)
	require.Len(t, layout, 1)
	assert.Greater(t, layout[0].End, civiltime.MinutesPerDay)
	requireAppCode(t, ValidateScheduleRules(rules), appErrors.ErrValidation)

	evening.FirstClassTime = 22 * 60
	evening.Intervals = []models.Interval{{Start: 22*60 + 30, DurationMinutes: 10}}
	rules.Periods[models.PeriodEvening] = evening
	assert.NoError(t, ValidateScheduleRules(rules))
}

func TestMatchNonTeachingDay(t *testing.T) {
	saturday := 6
	christmas := civiltime.NewDate(2023, time.December, 25)
	once := civiltime.NewDate(2024, time.March, 6)
	rules := models.ScheduleRules{NonTeachingDays: []models.NonTeachingDayRule{
		{ID: "sat", Kind: models.NonTeachingDayWeekday, Weekday: &saturday, Reason: "Saturday"},
		{ID: "xmas", Kind: models.NonTeachingDayDate, Date: &christmas, RepeatsAnnually: true, Reason: "Christmas"},
		{ID: "strike", Kind: models.NonTeachingDayDate, Date: &once, Reason: "Maintenance"},
	}}

	assert.Equal(t, "sat", MatchNonTeachingDay(rules, civiltime.NewDate(2024, time.March, 9), time.UTC).ID)
	assert.Equal(t, "xmas", MatchNonTeachingDay(rules, civiltime.NewDate(2024, time.December, 25), time.UTC).ID)
	assert.Equal(t, "strike", MatchNonTeachingDay(rules, once, time.UTC).ID)
	assert.Nil(t, MatchNonTeachingDay(rules, civiltime.NewDate(2025, time.March, 6), time.UTC))
	assert.Nil(t, MatchNonTeachingDay(rules, civiltime.NewDate(2024, time.March, 5), time.UTC))
}
