package apikit

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// SelfValidator is implemented by request types that validate themselves.
type SelfValidator interface {
	Validate() error
}

// Validator validates any request.
type Validator interface {
	Validate(req any) error
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(req any) error

// Validate calls f(req).
func (f ValidatorFunc) Validate(req any) error { return f(req) }

type playgroundValidator struct {
	v *validator.Validate
}

// NewValidator returns a Validator that enforces go-playground/validator
// `validate` struct tags. Field names in errors follow JSON and parameter
// names.
func NewValidator() Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if _, tag, ok := paramLocation(f); ok {
			name, _ := tagOptions(tag)
			return name
		}
		if f.Name == "Body" {
			return "body"
		}
		name := jsonFieldName(f)
		if name == "-" {
			return ""
		}
		return name
	})
	return &playgroundValidator{v: v}
}

func (p *playgroundValidator) Validate(req any) error {
	err := p.v.Struct(req)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		out = append(out, ValidationError{Field: field, Message: validationMessage(fe)})
	}
	return out
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "email":
		return "must be a valid email address"
	case "uuid", "uuid4":
		return "must be a valid UUID"
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("failed %s=%s validation", fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// validateRequest runs constraint tags, SelfValidator, then v.
func validateRequest(req any, v Validator) error {
	if err := validateConstraints(req); err != nil {
		return err
	}
	if sv, ok := req.(SelfValidator); ok {
		if err := sv.Validate(); err != nil {
			return asValidationFailure(err)
		}
	}
	if v != nil {
		if err := v.Validate(req); err != nil {
			return asValidationFailure(err)
		}
	}
	return nil
}

// asValidationFailure turns a plain validation error into a 400. Errors that
// carry their own status are kept.
func asValidationFailure(err error) error {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return err
	}
	return &HTTPError{
		Status:    http.StatusBadRequest,
		ErrorCode: CodeValidationFailed,
		Message:   err.Error(),
		cause:     err,
	}
}
