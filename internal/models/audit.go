package models

import "time"

// Audit actions emitted by the booking flow.
const (
	AuditActionReservationCreate = "RESERVATION_CREATE"
	AuditActionReservationAssign = "RESERVATION_ASSIGN"
	AuditActionReservationCancel = "RESERVATION_CANCEL"
	AuditActionRecurrenceCancel  = "RECURRENCE_CANCEL"
	AuditActionRulesUpdate       = "SCHEDULE_RULES_UPDATE"
)

// AuditOutcome reports whether the audited attempt succeeded.
type AuditOutcome string

const (
	AuditOutcomeSuccess AuditOutcome = "SUCCESS"
	AuditOutcomeFailure AuditOutcome = "FAILURE"
)

// AuditEvent is a structured, fire-and-forget record of one attempt.
type AuditEvent struct {
	ID             string       `json:"id"`
	Action         string       `json:"action"`
	Outcome        AuditOutcome `json:"outcome"`
	ActorID        string       `json:"actor_id,omitempty"`
	ResourceID     string       `json:"resource_id,omitempty"`
	ReservationIDs []string     `json:"reservation_ids,omitempty"`
	RecurrenceID   *string      `json:"recurrence_id,omitempty"`
	ErrorCode      string       `json:"error_code,omitempty"`
	Message        string       `json:"message,omitempty"`
	Escalate       bool         `json:"escalate"`
	OccurredAt     time.Time    `json:"occurred_at"`
}
