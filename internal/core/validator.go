package core

import (
	"log/slog"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"

	"farewatch/internal/types"
)

// iataPattern matches a 3-letter IATA location code. Handlers uppercase the
// codes after validation, so either case is accepted here.
var iataPattern = regexp.MustCompile(`^[A-Za-z]{3}$`)

// Validator wraps go-playground/validator with the domain-specific rules
// used by request DTOs: IATA codes, cabin classes, trip types, and
// YYYY-MM-DD date strings.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator and registers the custom tags.
func NewValidator(logger *slog.Logger) (*Validator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New()

	if err := v.RegisterValidation("iata", validateIATA); err != nil {
		return nil, err
	}
	if err := v.RegisterValidation("cabin_class", validateCabinClass); err != nil {
		return nil, err
	}
	if err := v.RegisterValidation("trip_type", validateTripType); err != nil {
		return nil, err
	}
	if err := v.RegisterValidation("date_string", validateDateString); err != nil {
		return nil, err
	}

	return &Validator{validate: v, logger: logger}, nil
}

// ValidateStruct runs struct-tag validation and converts field errors into a
// single AppError with per-field details.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = "failed constraint: " + fe.Tag()
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationMissingField,
		"request validation failed",
		err,
		details,
	)
}

func validateIATA(fl validator.FieldLevel) bool {
	return iataPattern.MatchString(fl.Field().String())
}

func validateCabinClass(fl validator.FieldLevel) bool {
	return types.CabinClass(fl.Field().String()).Valid()
}

func validateTripType(fl validator.FieldLevel) bool {
	return types.TripType(fl.Field().String()).Valid()
}

func validateDateString(fl validator.FieldLevel) bool {
	_, err := time.Parse("2006-01-02", fl.Field().String())
	return err == nil
}
