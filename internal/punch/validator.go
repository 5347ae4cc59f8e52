package punch

import (
	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// GetValidator returns the package validator instance
func GetValidator() *validator.Validate {
	return validate
}

// ValidateRequest validates a punch request body. The error is never shown
// to terminal users verbatim; handlers map any failure to a generic message
// so responses do not hint at PIN shape or enrollment.
func ValidateRequest(req *PunchRequest) error {
	return validate.Struct(req)
}
