// Package forms validates user-entered form structs with struct tags and
// turns failures into readable field messages.
package forms

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	mustRegister(v, "birthdate", func(fl validator.FieldLevel) bool {
		_, ok := NormalizeBirthDate(fl.Field().String())
		return ok
	})
	mustRegister(v, "clock", func(fl validator.FieldLevel) bool {
		_, ok := ClockMinutes(fl.Field().String())
		return ok
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("forms: register %q: %v", tag, err))
	}
}

// NormalizeBirthDate accepts YYYY-MM-DD or DD/MM/YYYY and returns the
// YYYY-MM-DD form.
func NormalizeBirthDate(v string) (string, bool) {
	v = strings.TrimSpace(v)
	layout := time.DateOnly
	if strings.Contains(v, "/") {
		layout = "02/01/2006"
	}
	t, err := time.Parse(layout, v)
	if err != nil {
		return "", false
	}
	return t.Format(time.DateOnly), true
}

// ClockMinutes parses a strict "HH:MM" time into minutes after midnight.
func ClockMinutes(v string) (int, bool) {
	t, err := time.Parse("15:04", strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// FieldError describes one invalid form field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists the invalid fields of a form. It is raised before
// any network call.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, "; ")
}

// Invalid builds a single-field ValidationError.
func Invalid(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// IsValidation reports whether err is a form validation failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// Check validates form. labels maps struct field names to the words used in
// messages; unlabeled fields use their lower-cased name.
func Check(form interface{}, labels map[string]string) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		label := labels[fe.Field()]
		if label == "" {
			label = strings.ToLower(fe.Field())
		}
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: message(label, fe)})
	}
	return out
}

func message(label string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "birthdate":
		return label + " must be YYYY-MM-DD or DD/MM/YYYY"
	case "datetime":
		return label + " must be YYYY-MM-DD"
	case "clock":
		return label + " must be HH:MM"
	case "numeric":
		return label + " must be a number"
	default:
		return fmt.Sprintf("%s is invalid (%s)", label, fe.Tag())
	}
}
