package models

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

// Validate checks the validate tags of a record before it is saved.
// Failures are returned as a *ValidationError keyed by json field name.
func Validate(record any) error {
	err := validate.Struct(record)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}

	messages := make(map[string][]string, len(fieldErrors))
	for _, fieldError := range fieldErrors {
		field := fieldError.Field()
		messages[field] = append(messages[field], validationMessage(fieldError.Tag()))
	}

	return &ValidationError{Messages: messages}
}

func validationMessage(tag string) string {
	switch tag {
	case "required":
		return "value_is_mandatory"
	case "gte", "gt", "lte", "lt", "min", "max":
		return "value_is_out_of_range"
	case "len":
		return "invalid_size"
	default:
		return "value_is_invalid"
	}
}
