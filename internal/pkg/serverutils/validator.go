package serverutils

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError lists every failed field of a request body.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, rule := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, rule))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) StatusCode() int { return 400 }

func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		out.Fields[strings.ToLower(fe.Field())] = rule
	}
	return out
}
