package validator

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Tags must be usable as plain search tokens
	validate.RegisterValidation("tag", func(fl validator.FieldLevel) bool {
		tag := fl.Field().String()
		return tag == strings.TrimSpace(tag) && !strings.Contains(tag, ",")
	})
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	errors := make(map[string]string)
	for _, err := range err.(validator.ValidationErrors) {
		field := err.Field()
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "max":
			errors[field] = fmt.Sprintf("Must be at most %s", err.Param())
		case "min":
			errors[field] = fmt.Sprintf("Must be at least %s", err.Param())
		case "tag":
			errors[field] = "Tags must not contain commas or surrounding whitespace"
		default:
			errors[field] = fmt.Sprintf("Failed validation: %s", err.Tag())
		}
	}
	return errors
}
