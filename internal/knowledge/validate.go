package knowledge

import (
	"errors"
	"reflect"
	"strings"

	"kbengine/internal/domain"

	"github.com/go-playground/validator/v10"
)

// paramsValidate checks the parameter structs of write operations.
var paramsValidate *validator.Validate

func init() {
	paramsValidate = validator.New()
	paramsValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
}

// validateParams runs struct validation and reports the first failing field
// as a *domain.ValidationError.
func validateParams(params any) error {
	err := paramsValidate.Struct(params)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		reason := "failed " + fe.Tag()
		if fe.Tag() == "required" {
			reason = "must not be empty"
		}
		return &domain.ValidationError{Field: fe.Field(), Reason: reason}
	}
	return &domain.ValidationError{Field: "params", Reason: err.Error()}
}
