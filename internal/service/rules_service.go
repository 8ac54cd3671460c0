package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lab-reservation-api/internal/dto"
	"github.com/noah-isme/lab-reservation-api/internal/models"
	"github.com/noah-isme/lab-reservation-api/internal/repository"
	"github.com/noah-isme/lab-reservation-api/pkg/civiltime"
	appErrors "github.com/noah-isme/lab-reservation-api/pkg/errors"
)

const scheduleRulesCacheKey = "schedule_rules:v1"

type rulesStore interface {
	Get(ctx context.Context, key string) (*models.Configuration, error)
	Upsert(ctx context.Context, cfg *models.Configuration) error
}

type auditRecorder interface {
	Record(ctx context.Context, event models.AuditEvent)
}

// RulesServiceConfig tunes rule loading.
type RulesServiceConfig struct {
	TimeZone string
	CacheTTL time.Duration
}

// RulesService loads and replaces the institution-wide schedule rules.
// Missing or unreadable stored rules fall back to DefaultScheduleRules.
type RulesService struct {
	repo      rulesStore
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	audit     auditRecorder
	defaults  models.ScheduleRules
	ttl       time.Duration
}

// NewRulesService constructs a RulesService.
func NewRulesService(repo rulesStore, cache *CacheService, validate *validator.Validate, logger *zap.Logger, audit auditRecorder, cfg RulesServiceConfig) *RulesService {
	if validate == nil {
		validate = validator.New()
	}
	registerSchedulingValidations(validate)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RulesService{
		repo:      repo,
		cache:     cache,
		validator: validate,
		logger:    logger,
		audit:     audit,
		defaults:  DefaultScheduleRules(cfg.TimeZone),
		ttl:       cfg.CacheTTL,
	}
}

// DefaultScheduleRules returns the built-in three-period day with Sundays off.
func DefaultScheduleRules(timeZone string) models.ScheduleRules {
	if timeZone == "" {
		timeZone = "America/Sao_Paulo"
	}
	sunday := 0
	return models.ScheduleRules{
		TimeZone: timeZone,
		Periods: map[models.PeriodID]models.PeriodRule{
			models.PeriodMorning: {
				FirstClassTime:       7 * 60,
				ClassDurationMinutes: 50,
				ClassesCount:         5,
				Intervals:            []models.Interval{{Start: 9*60 + 30, DurationMinutes: 20}},
			},
			models.PeriodAfternoon: {
				FirstClassTime:       13 * 60,
				ClassDurationMinutes: 50,
				ClassesCount:         5,
				Intervals:            []models.Interval{{Start: 15*60 + 30, DurationMinutes: 20}},
			},
			models.PeriodEvening: {
				FirstClassTime:       18*60 + 30,
				ClassDurationMinutes: 50,
				ClassesCount:         4,
				Intervals:            []models.Interval{{Start: 20*60 + 10, DurationMinutes: 10}},
			},
		},
		AcademicPeriod: models.AcademicPeriod{
			Label:         "Semester",
			DurationWeeks: 18,
			Description:   "Regular teaching semester",
		},
		NonTeachingDays: []models.NonTeachingDayRule{
			{ID: "weekly-sunday", Kind: models.NonTeachingDayWeekday, Weekday: &sunday, Reason: "Sunday"},
		},
	}
}

// GetScheduleRules returns the active rules, consulting the cache first.
func (s *RulesService) GetScheduleRules(ctx context.Context) (models.ScheduleRules, error) {
	var cached models.ScheduleRules
	if s.cache.Get(ctx, scheduleRulesCacheKey, &cached) {
		return cached, nil
	}

	rules, err := s.load(ctx)
	if err != nil {
		return models.ScheduleRules{}, err
	}
	s.cache.Set(ctx, scheduleRulesCacheKey, rules, s.ttl)
	return rules, nil
}

func (s *RulesService) load(ctx context.Context) (models.ScheduleRules, error) {
	if s.repo == nil {
		return s.defaults, nil
	}
	cfg, err := s.repo.Get(ctx, models.ConfigurationKeyScheduleRules)
	if err != nil {
		if errors.Is(err, repository.ErrConfigurationNotFound) {
			return s.defaults, nil
		}
		return models.ScheduleRules{}, appErrors.WrapAs(appErrors.ErrStorage, err, "failed to load schedule rules")
	}

	var rules models.ScheduleRules
	if err := json.Unmarshal([]byte(cfg.Value), &rules); err != nil {
		s.logger.Warn("stored schedule rules unreadable, using defaults", zap.Error(err))
		return s.defaults, nil
	}
	if err := ValidateScheduleRules(rules); err != nil {
		s.logger.Warn("stored schedule rules invalid, using defaults", zap.Error(err))
		return s.defaults, nil
	}
	return rules, nil
}

// UpdateScheduleRules validates and stores a full replacement of the rules.
func (s *RulesService) UpdateScheduleRules(ctx context.Context, actorID string, req dto.UpdateScheduleRulesRequest) (rules models.ScheduleRules, err error) {
	defer func() {
		event := models.AuditEvent{Action: models.AuditActionRulesUpdate, ActorID: actorID}
		fillAuditOutcome(&event, err)
		s.record(ctx, event)
	}()

	if err = s.validator.Struct(req); err != nil {
		return models.ScheduleRules{}, appErrors.WrapAs(appErrors.ErrValidation, err, "invalid schedule rules payload")
	}
	rules, err = rulesFromRequest(req)
	if err != nil {
		return models.ScheduleRules{}, err
	}
	if err = ValidateScheduleRules(rules); err != nil {
		return models.ScheduleRules{}, err
	}

	payload, err := json.Marshal(rules)
	if err != nil {
		return models.ScheduleRules{}, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to encode schedule rules")
	}
	description := "Lab reservation schedule rules"
	cfg := &models.Configuration{
		Key:         models.ConfigurationKeyScheduleRules,
		Value:       string(payload),
		Type:        models.ConfigurationTypeJSON,
		Description: &description,
	}
	if actorID != "" {
		cfg.UpdatedBy = &actorID
	}
	if err = s.repo.Upsert(ctx, cfg); err != nil {
		return models.ScheduleRules{}, appErrors.WrapAs(appErrors.ErrStorage, err, "failed to store schedule rules")
	}
	s.cache.Invalidate(ctx, scheduleRulesCacheKey)
	s.logger.Info("schedule rules updated", zap.String("actor_id", actorID), zap.String("timezone", rules.TimeZone))
	return rules, nil
}

func (s *RulesService) record(ctx context.Context, event models.AuditEvent) {
	if s.audit != nil {
		s.audit.Record(ctx, event)
	}
}

func rulesFromRequest(req dto.UpdateScheduleRulesRequest) (models.ScheduleRules, error) {
	rules := models.ScheduleRules{
		TimeZone: strings.TrimSpace(req.TimeZone),
		Periods:  make(map[models.PeriodID]models.PeriodRule, len(req.Periods)),
		AcademicPeriod: models.AcademicPeriod{
			Label:         req.AcademicPeriod.Label,
			DurationWeeks: req.AcademicPeriod.DurationWeeks,
			Description:   req.AcademicPeriod.Description,
		},
	}
	for key, payload := range req.Periods {
		first, err := civiltime.ParseClock(payload.FirstClassTime)
		if err != nil {
			return models.ScheduleRules{}, appErrors.WrapAs(appErrors.ErrValidation, err, fmt.Sprintf("period %s: invalid firstClassTime", key))
		}
		rule := models.PeriodRule{
			FirstClassTime:       first,
			ClassDurationMinutes: payload.ClassDurationMinutes,
			ClassesCount:         payload.ClassesCount,
			Intervals:            make([]models.Interval, 0, len(payload.Intervals)),
		}
		for _, interval := range payload.Intervals {
			start, err := civiltime.ParseClock(interval.Start)
			if err != nil {
				return models.ScheduleRules{}, appErrors.WrapAs(appErrors.ErrValidation, err, fmt.Sprintf("period %s: invalid interval start", key))
			}
			rule.Intervals = append(rule.Intervals, models.Interval{Start: start, DurationMinutes: interval.DurationMinutes})
		}
		rules.Periods[models.PeriodID(key)] = rule
	}
	for i, payload := range req.NonTeachingDays {
		day := models.NonTeachingDayRule{
			ID:              payload.ID,
			Kind:            models.NonTeachingDayKind(payload.Kind),
			RepeatsAnnually: payload.RepeatsAnnually,
			Weekday:         payload.Weekday,
			Reason:          payload.Reason,
		}
		if day.ID == "" {
			day.ID = fmt.Sprintf("non-teaching-%d", i+1)
		}
		if payload.Date != "" {
			date, err := civiltime.ParseDate(payload.Date)
			if err != nil {
				return models.ScheduleRules{}, appErrors.WrapAs(appErrors.ErrValidation, err, fmt.Sprintf("non-teaching day %s: invalid date", day.ID))
			}
			day.Date = &date
		}
		rules.NonTeachingDays = append(rules.NonTeachingDays, day)
	}
	return rules, nil
}

// ValidateScheduleRules checks the structural constraints the schedule
// builder relies on.
func ValidateScheduleRules(rules models.ScheduleRules) error {
	invalid := func(format string, args ...interface{}) error {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf(format, args...))
	}

	if _, err := civiltime.LoadLocation(rules.TimeZone); err != nil {
		return invalid("unknown timezone %q", rules.TimeZone)
	}
	if len(rules.Periods) == 0 {
		return invalid("at least one period is required")
	}

	known := make(map[models.PeriodID]struct{}, len(models.PeriodOrder))
	for _, id := range models.PeriodOrder {
		known[id] = struct{}{}
	}
	for id := range rules.Periods {
		if _, ok := known[id]; !ok {
			return invalid("unknown period %q", id)
		}
	}

	previousEnd := -1
	for _, id := range models.PeriodOrder {
		rule, ok := rules.Periods[id]
		if !ok {
			continue
		}
		if rule.FirstClassTime < 0 || rule.FirstClassTime >= civiltime.MinutesPerDay {
			return invalid("period %s: firstClassTime out of range", id)
		}
		if rule.ClassDurationMinutes <= 0 {
			return invalid("period %s: classDurationMinutes must be positive", id)
		}
		if rule.ClassesCount < 0 {
			return invalid("period %s: classesCount must not be negative", id)
		}
		end := rule.FirstClassTime + rule.SpanMinutes()
		// An interval starting mid-class pushes the whole class past it, so the
		// laid out slots can end later than the nominal span.
		if layout := PeriodSlotMinutes(rule); len(layout) > 0 && layout[len(layout)-1].End > end {
			end = layout[len(layout)-1].End
		}
		if end > civiltime.MinutesPerDay {
			return invalid("period %s: classes run past midnight", id)
		}

		intervals := make([]models.Interval, len(rule.Intervals))
		copy(intervals, rule.Intervals)
		sort.Slice(intervals, func(i, j int) bool { return intervals[i].Start < intervals[j].Start })
		for i, interval := range intervals {
			if interval.DurationMinutes <= 0 {
				return invalid("period %s: interval duration must be positive", id)
			}
			if interval.Start < rule.FirstClassTime || interval.End() > end {
				return invalid("period %s: interval outside period bounds", id)
			}
			if i > 0 && interval.Start < intervals[i-1].End() {
				return invalid("period %s: intervals overlap", id)
			}
		}

		if rule.ClassesCount > 0 {
			if rule.FirstClassTime < previousEnd {
				return invalid("period %s: starts before the previous period ends", id)
			}
			previousEnd = end
		}
	}

	if rules.AcademicPeriod.DurationWeeks < 1 {
		return invalid("academic period must last at least one week")
	}

	for _, day := range rules.NonTeachingDays {
		switch day.Kind {
		case models.NonTeachingDayDate:
			if day.Date == nil || day.Date.IsZero() {
				return invalid("non-teaching day %s: date is required", day.ID)
			}
		case models.NonTeachingDayWeekday:
			if day.Weekday == nil || *day.Weekday < 0 || *day.Weekday > 6 {
				return invalid("non-teaching day %s: weekday must be between 0 and 6", day.ID)
			}
		default:
			return invalid("non-teaching day %s: unknown kind %q", day.ID, day.Kind)
		}
	}
	return nil
}

// MatchNonTeachingDay returns the first rule, in declared order, that excludes
// date, or nil.
func MatchNonTeachingDay(rules models.ScheduleRules, date civiltime.Date, loc *time.Location) *models.NonTeachingDayRule {
	weekday := civiltime.WeekdayOf(date, loc)
	for i := range rules.NonTeachingDays {
		rule := &rules.NonTeachingDays[i]
		switch rule.Kind {
		case models.NonTeachingDayDate:
			if rule.Date == nil {
				continue
			}
			if rule.Date.Equal(date) {
				return rule
			}
			if rule.RepeatsAnnually && rule.Date.Month == date.Month && rule.Date.Day == date.Day {
				return rule
			}
		case models.NonTeachingDayWeekday:
			if rule.Weekday != nil && *rule.Weekday == weekday {
				return rule
			}
		}
	}
	return nil
}
