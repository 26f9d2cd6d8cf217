// Package validation wraps go-playground/validator with the conventions
// shared by configuration loading and WebSocket command handling.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/oszuidwest/zwfm-noisemeter/internal/types"
	"github.com/oszuidwest/zwfm-noisemeter/internal/util"
)

// validate is the shared validator instance.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Use JSON tag names in error messages instead of struct field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	// safepath rejects traversal in file paths taken from configuration.
	if err := validate.RegisterValidation("safepath", func(fl validator.FieldLevel) bool {
		return util.ValidatePath(fl.FieldName(), fl.Field().String()) == nil
	}); err != nil {
		panic(err)
	}
}

// Struct validates s and returns a *types.ValidationError describing every
// failed field, or nil when s is valid.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	if verr := ToValidationError(err); verr.HasErrors() {
		return verr
	}
	return nil
}

// ToValidationError converts validator errors to our format.
func ToValidationError(err error) *types.ValidationError {
	verr := types.NewValidationError()

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			verr.Add(fieldPath(e), Message(e), e.Value())
		}
	} else {
		// Fallback for non-validation errors
		verr.Add("", err.Error(), nil)
	}
	return verr
}

// fieldPath returns the dotted JSON path of a field without the root type.
func fieldPath(e validator.FieldError) string {
	ns := e.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return e.Field()
}

// Message creates a human-readable message from a validator error.
func Message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "unique":
		return fmt.Sprintf("must have a unique %s", strings.ToLower(e.Param()))
	case "alphanum":
		return "must contain only letters and digits"
	case "semver":
		return "must be a semantic version"
	case "safepath":
		return "must be a path without '..'"
	default:
		return fmt.Sprintf("failed validation '%s'", e.Tag())
	}
}
