package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/turtacn/compliance-advisor/pkg/errors"
)

// defaultValidator is shared by request DTOs and the lifecycle commands.
var defaultValidator *validator.Validate

func init() {
	defaultValidator = validator.New()
	// Tenant and application ids are directory GUIDs.
	_ = defaultValidator.RegisterValidation("tenantid", validateTenantID)
}

// ValidateStruct validates a struct using the default validator.
// Field failures are attached to the error metadata keyed by snake_case field name.
func ValidateStruct(s interface{}) error {
	err := defaultValidator.Struct(s)
	if err == nil {
		return nil
	}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.Validation("invalid request").WithCause(err)
	}
	appErr := errors.Validation("%s %s", toSnakeCase(validationErrors[0].Field()), formatValidationError(validationErrors[0]))
	for _, fe := range validationErrors {
		appErr.WithMetadata(toSnakeCase(fe.Field()), formatValidationError(fe))
	}
	return appErr
}

// NormalizeIdentifier returns the canonical form of a tenant or application id.
// Directory GUIDs compare case-insensitively, so the stored form is lower case.
func NormalizeIdentifier(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// ValidateIdentifier checks a single tenant or application id.
func ValidateIdentifier(field, value string) error {
	if err := defaultValidator.Var(value, "required,tenantid"); err != nil {
		return errors.Validation("%s %q is not a valid identifier", field, value)
	}
	return nil
}

func validateTenantID(fl validator.FieldLevel) bool {
	field := fl.Field().String()
	// uuid.Parse also accepts urn and braced forms; require the canonical 36-char layout.
	if len(field) != 36 {
		return false
	}
	_, err := uuid.Parse(field)
	return err == nil
}

func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "tenantid", "uuid":
		return "must be a valid GUID"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed on the '%s' tag", fe.Tag())
	}
}

var (
	matchFirstCap = regexp.MustCompile("(.)([A-Z][a-z]+)")
	matchAllCap   = regexp.MustCompile("([a-z0-9])([A-Z])")
)

// toSnakeCase converts a string from CamelCase to snake_case.
func toSnakeCase(str string) string {
	snake := matchFirstCap.ReplaceAllString(str, "${1}_${2}")
	snake = matchAllCap.ReplaceAllString(snake, "${1}_${2}")
	return strings.ToLower(snake)
}

// ValidateNotEmpty checks if a string is not empty.
func ValidateNotEmpty(s string) bool {
	return strings.TrimSpace(s) != ""
}
