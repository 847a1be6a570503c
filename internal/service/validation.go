package service

import (
	"errors"
	"fmt"
	"html"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/psds-microservice/cityfix-service/internal/errs"
	"github.com/psds-microservice/cityfix-service/internal/model"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("ticket_category", func(fl validator.FieldLevel) bool {
		return model.Category(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("ticket_status", func(fl validator.FieldLevel) bool {
		return model.TicketStatus(fl.Field().String()).IsValid()
	})
	return v
}

// validateInput checks struct tags and returns an errs.ErrBadInput listing every failed field.
func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", errs.ErrBadInput, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", errs.ErrBadInput, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", field, fe.Param())
	case "ticket_category":
		return fmt.Sprintf("%s must be one of %v", field, model.Categories())
	case "ticket_status":
		return fmt.Sprintf("%s must be one of %v", field, model.Statuses())
	case "url", "http_url":
		return field + " must be a valid URL"
	case "hexcolor":
		return field + " must be a hex color"
	case "latitude", "longitude":
		return field + " is out of range"
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}

var textPolicy = bluemonday.StrictPolicy()

// sanitizeText strips all markup from user-supplied text and trims it. The
// result is plain text: entities the policy emits are decoded again.
func sanitizeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

// sanitizeField sanitizes s and checks the result against max runes.
func sanitizeField(field, s string, max int) (string, error) {
	out := sanitizeText(s)
	if n := utf8.RuneCountInString(out); n > max {
		return "", fmt.Errorf("%w: %s must be at most %d characters long", errs.ErrBadInput, field, max)
	}
	return out, nil
}
