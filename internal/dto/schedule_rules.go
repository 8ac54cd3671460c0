package dto

// IntervalPayload is a break inside a period expressed as wall-clock time.
type IntervalPayload struct {
	Start           string `json:"start" validate:"required,clock"`
	DurationMinutes int    `json:"durationMinutes" validate:"required,min=1"`
}

// PeriodRulePayload configures one period.
type PeriodRulePayload struct {
	FirstClassTime       string            `json:"firstClassTime" validate:"required,clock"`
	ClassDurationMinutes int               `json:"classDurationMinutes" validate:"required,min=1"`
	ClassesCount         int               `json:"classesCount" validate:"min=0,max=24"`
	Intervals            []IntervalPayload `json:"intervals" validate:"omitempty,dive"`
}

// AcademicPeriodPayload describes the teaching period.
type AcademicPeriodPayload struct {
	Label         string `json:"label" validate:"required"`
	DurationWeeks int    `json:"durationWeeks" validate:"required,min=1"`
	Description   string `json:"description"`
}

// NonTeachingDayPayload is either a date (optionally annual) or a weekday.
type NonTeachingDayPayload struct {
	ID              string `json:"id"`
	Kind            string `json:"kind" validate:"required,oneof=DATE WEEKDAY"`
	Date            string `json:"date" validate:"omitempty,civildate"`
	RepeatsAnnually bool   `json:"repeatsAnnually"`
	Weekday         *int   `json:"weekday" validate:"omitempty,min=0,max=6"`
	Reason          string `json:"reason" validate:"max=200"`
}

// UpdateScheduleRulesRequest replaces the stored schedule rules.
type UpdateScheduleRulesRequest struct {
	TimeZone        string                       `json:"timeZone" validate:"required"`
	Periods         map[string]PeriodRulePayload `json:"periods" validate:"required,min=1,dive,keys,oneof=morning afternoon evening,endkeys"`
	AcademicPeriod  AcademicPeriodPayload        `json:"academicPeriod"`
	NonTeachingDays []NonTeachingDayPayload      `json:"nonTeachingDays" validate:"omitempty,dive"`
}
