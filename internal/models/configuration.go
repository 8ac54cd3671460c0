package models

import "time"

// ConfigurationType tells readers how to decode Value.
type ConfigurationType string

// ConfigurationTypeJSON marks values holding a JSON document.
const ConfigurationTypeJSON ConfigurationType = "JSON"

// ConfigurationKeyScheduleRules is the row holding the active ScheduleRules.
const ConfigurationKeyScheduleRules = "schedule_rules"

// Configuration is one row of the settings table. The rules provider keeps
// the lab calendar (periods, intervals, non-teaching days) here as JSON and
// records which manager last changed it.
type Configuration struct {
	Key         string            `db:"key" json:"key"`
	Value       string            `db:"value" json:"value"`
	Type        ConfigurationType `db:"type" json:"type"`
	Description *string           `db:"description" json:"description,omitempty"`
	UpdatedBy   *string           `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
}
