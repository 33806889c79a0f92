package utils

import (
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator with the domain tags registered:
// datekey (YYYY-MM-DD), monthkey (YYYY-MM) and amount (empty or a decimal, French comma allowed).
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("datekey", func(fl validator.FieldLevel) bool {
			return IsDateKey(fl.Field().String())
		})
		_ = validate.RegisterValidation("monthkey", func(fl validator.FieldLevel) bool {
			_, _, err := ParseMonthKey(fl.Field().String())
			return err == nil
		})
		_ = validate.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
			_, err := ParseAmount(fl.Field().String())
			return err == nil
		})
	})
	return validate
}

func ValidateStruct(s any) error {
	return Validator().Struct(s)
}

func ProcessValidationErrors(err error) map[string]string {
	errorResponse := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		errorResponse["_"] = err.Error()
		return errorResponse
	}
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}
	return errorResponse
}
