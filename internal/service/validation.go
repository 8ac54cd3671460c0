package service

import (
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/lab-reservation-api/pkg/civiltime"
)

// registerSchedulingValidations adds the civildate (YYYY-MM-DD) and clock
// (HH:MM) tags used by the request payloads.
func registerSchedulingValidations(v *validator.Validate) {
	_ = v.RegisterValidation("civildate", func(fl validator.FieldLevel) bool {
		_, err := civiltime.ParseDate(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := civiltime.ParseClock(fl.Field().String())
		return err == nil
	})
}
