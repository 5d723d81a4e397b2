package core

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"zoneatlas/internal/types"
)

// errCodeValidationFailed is the error code for struct validation failures.
const errCodeValidationFailed types.ErrorCode = "validation_failed"

// Validator wraps go-playground/validator and translates its field
// errors into the platform's AppError shape.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator and registers custom validation
// tags.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// latitude/longitude bounds as named tags so request structs read
	// cleanly: `validate:"latitude"` etc. is built in, but tier needs a
	// custom rule.
	_ = v.RegisterValidation("plantier", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "looker", "free", "pro", "whale", "business":
			return true
		default:
			return false
		}
	})

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct validates a struct using its `validate` tags. On
// failure it returns a *types.AppError with per-field details suitable
// for returning to the client.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var invalidErr *validator.InvalidValidationError
	if errors.As(err, &invalidErr) {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation invoked on non-struct value", err)
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "unexpected validation failure", err)
	}

	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[strings.ToLower(fe.Field())] = describeFieldError(fe)
	}

	return types.NewAppErrorWithDetails(
		errCodeValidationFailed,
		"request validation failed",
		err,
		details,
	)
}

// describeFieldError renders one field error as a short human-readable
// message without leaking internal struct paths.
func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "latitude":
		return "must be a valid latitude between -90 and 90"
	case "longitude":
		return "must be a valid longitude between -180 and 180"
	case "plantier":
		return "must be a recognized plan tier"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "url":
		return "must be a valid URL"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
