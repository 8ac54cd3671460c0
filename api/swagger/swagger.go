package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Lab Reservation API",
        "description": "Scheduling and conflict resolution for shared laboratory resources",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Schedule", "description": "Daily slot grid per resource"},
        {"name": "Reservations", "description": "Booking, weekly series and cancellation"},
        {"name": "ScheduleRules", "description": "Institution-wide period configuration"}
    ],
    "paths": {
        "/schedule-rules": {
            "get": {
                "tags": ["ScheduleRules"],
                "summary": "Current schedule rules",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["ScheduleRules"],
                "summary": "Replace schedule rules",
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/UpdateScheduleRulesRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid rules", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/resources/{id}/schedule": {
            "get": {
                "tags": ["Schedule"],
                "summary": "Daily schedule of a resource",
                "parameters": [
                    {"in": "path", "name": "id", "type": "string", "required": true},
                    {"in": "query", "name": "date", "type": "string", "required": true, "description": "YYYY-MM-DD"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid date", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/resources/{id}/schedule/export": {
            "get": {
                "tags": ["Schedule"],
                "summary": "Export a resource's daily schedule",
                "produces": ["application/pdf", "text/csv"],
                "parameters": [
                    {"in": "path", "name": "id", "type": "string", "required": true},
                    {"in": "query", "name": "date", "type": "string", "required": true},
                    {"in": "query", "name": "format", "type": "string", "enum": ["pdf", "csv"]}
                ],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}}
                }
            }
        },
        "/resources/{id}/reservations": {
            "get": {
                "tags": ["Reservations"],
                "summary": "Reservations of a resource in a window",
                "parameters": [
                    {"in": "path", "name": "id", "type": "string", "required": true},
                    {"in": "query", "name": "from", "type": "string", "format": "date-time"},
                    {"in": "query", "name": "to", "type": "string", "format": "date-time"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Reservations"],
                "summary": "Book contiguous slots, optionally weekly",
                "parameters": [
                    {"in": "path", "name": "id", "type": "string", "required": true},
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/BookReservationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Slot occupied or reservation conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Non-teaching day, past or non-contiguous selection", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/resources/{id}/assignments": {
            "post": {
                "tags": ["Reservations"],
                "summary": "Assign slots to an instructor for the academic period",
                "parameters": [
                    {"in": "path", "name": "id", "type": "string", "required": true},
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/AssignAcademicPeriodRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reservations/{id}/cancel": {
            "post": {
                "tags": ["Reservations"],
                "summary": "Cancel a reservation",
                "parameters": [
                    {"in": "path", "name": "id", "type": "string", "required": true},
                    {"in": "body", "name": "payload", "schema": {"$ref": "#/definitions/CancelReservationRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/recurrences/{id}/cancel": {
            "post": {
                "tags": ["Reservations"],
                "summary": "Cancel the remaining occurrences of a weekly series",
                "parameters": [
                    {"in": "path", "name": "id", "type": "string", "required": true},
                    {"in": "body", "name": "payload", "schema": {"$ref": "#/definitions/CancelReservationRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/me/reservations": {
            "get": {
                "tags": ["Reservations"],
                "summary": "Upcoming reservations of the caller",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "BookReservationRequest": {
            "type": "object",
            "required": ["date", "slotIds"],
            "properties": {
                "date": {"type": "string", "example": "2024-03-04"},
                "slotIds": {"type": "array", "items": {"type": "string"}, "example": ["2024-03-04_morning_1", "2024-03-04_morning_2"]},
                "occurrences": {"type": "integer", "minimum": 1, "maximum": 26},
                "subject": {"type": "string"}
            }
        },
        "AssignAcademicPeriodRequest": {
            "type": "object",
            "required": ["date", "slotIds", "instructorId", "subject"],
            "properties": {
                "date": {"type": "string"},
                "slotIds": {"type": "array", "items": {"type": "string"}},
                "instructorId": {"type": "string"},
                "subject": {"type": "string"}
            }
        },
        "CancelReservationRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            }
        },
        "UpdateScheduleRulesRequest": {
            "type": "object",
            "required": ["timeZone", "periods"],
            "properties": {
                "timeZone": {"type": "string", "example": "America/Sao_Paulo"},
                "periods": {"type": "object"},
                "academicPeriod": {"type": "object"},
                "nonTeachingDays": {"type": "array", "items": {"type": "object"}}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
