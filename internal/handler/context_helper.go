package handler

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lab-reservation-api/internal/middleware"
	"github.com/noah-isme/lab-reservation-api/internal/models"
	"github.com/noah-isme/lab-reservation-api/pkg/civiltime"
	appErrors "github.com/noah-isme/lab-reservation-api/pkg/errors"
	"github.com/noah-isme/lab-reservation-api/pkg/response"
)

// actorFromContext resolves the authenticated caller or writes a 401.
func actorFromContext(c *gin.Context) (models.Actor, bool) {
	claims, ok := middleware.Claims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Actor{}, false
	}
	return claims.Actor(), true
}

// requireParam reads a path parameter or writes a 400.
func requireParam(c *gin.Context, name string) (string, bool) {
	value := strings.TrimSpace(c.Param(name))
	if value == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, name+" is required"))
		return "", false
	}
	return value, true
}

// requireDateQuery parses the civil date query parameter or writes a 400.
func requireDateQuery(c *gin.Context, name string) (civiltime.Date, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, name+" is required"))
		return civiltime.Date{}, false
	}
	date, err := civiltime.ParseDate(raw)
	if err != nil {
		response.Error(c, appErrors.WrapAs(appErrors.ErrValidation, err, name+" must be YYYY-MM-DD"))
		return civiltime.Date{}, false
	}
	return date, true
}

// optionalTimeQuery parses an RFC3339 query parameter.
func optionalTimeQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		response.Error(c, appErrors.WrapAs(appErrors.ErrValidation, err, name+" must be RFC3339"))
		return nil, false
	}
	return &ts, true
}

func bindError(err error, message string) error {
	return appErrors.WrapAs(appErrors.ErrValidation, err, message)
}
