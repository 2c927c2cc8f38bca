// Package validation checks service inputs with go-playground/validator and reports
// failures as field-keyed constraint violations.
package validation

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hylla/vitality/internal/domain"
)

// Error lists every failing field by its json name.
type Error struct {
	Message string
	Fields  map[string]string
}

// Error implements error.
func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := slices.Sorted(maps.Keys(e.Fields))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

// Is matches domain.ErrConstraintViolation.
func (e *Error) Is(target error) bool {
	return target == domain.ErrConstraintViolation
}

// Validator wraps go-playground/validator with the custom group tags.
type Validator struct {
	v *validator.Validate
}

// New creates a validator with json field names and the groupcode/groupkind/expiry tags.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("groupcode", func(fl validator.FieldLevel) bool {
		return domain.IsValidGroupCode(fl.Field().String())
	})
	_ = v.RegisterValidation("groupkind", func(fl validator.FieldLevel) bool {
		raw := fl.Field().String()
		return raw == "" || domain.IsValidGroupKind(domain.GroupKind(raw))
	})
	_ = v.RegisterValidation("expiry", func(fl validator.FieldLevel) bool {
		raw := fl.Field().String()
		if raw == "" {
			return true
		}
		_, err := domain.ParseExpiryPeriod(raw)
		return err == nil
	})

	return &Validator{v: v}
}

// Validate validates a struct and returns *Error on failure.
func (v *Validator) Validate(s any) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

func (v *Validator) formatError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}
	fields := make(map[string]string, len(validationErrs))
	for _, e := range validationErrs {
		fields[e.Field()] = friendlyMessage(e)
	}
	return &Error{Message: "validation failed", Fields: fields}
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return "is required without " + e.Param()
	case "hexcolor":
		return "must be a hex color such as #ff8800"
	case "groupcode":
		return "may only contain letters, digits, underscores and dashes"
	case "groupkind":
		return "must be one of: level group role department"
	case "expiry":
		return "must name an expiry period"
	case "max":
		return fmt.Sprintf("must not exceed %s characters", e.Param())
	case "gte":
		return "must be greater than or equal to " + e.Param()
	default:
		return "is invalid"
	}
}
