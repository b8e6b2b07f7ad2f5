// Package validation wraps go-playground/validator with the rules the buddy
// directory needs on registration and status input.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Skryldev/findmybuddy/apperrors"
	"github.com/Skryldev/findmybuddy/models"
)

// GmailSuffix is the only mail domain accepted at registration.
const GmailSuffix = "@gmail.com"

var pinCodeRe = regexp.MustCompile(`^[0-9]{6}$`)

// Validator validates request structs and reports failures as
// apperrors.KindValidation with per-field details keyed by JSON name.
type Validator struct {
	validate *validator.Validate
}

// New builds a Validator with the custom rules registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	mustRegister(v, "gmail", func(fl validator.FieldLevel) bool {
		return strings.HasSuffix(strings.ToLower(fl.Field().String()), GmailSuffix)
	})
	mustRegister(v, "pincode", func(fl validator.FieldLevel) bool {
		return pinCodeRe.MatchString(fl.Field().String())
	})
	mustRegister(v, "decision", func(fl validator.FieldLevel) bool {
		return models.Status(fl.Field().String()).Decision()
	})

	return &Validator{validate: v}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %q: %v", tag, err))
	}
}

// Struct validates s. It returns nil or an *apperrors.AppError whose details
// map each failing JSON field to a message.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return apperrors.Wrap(err, apperrors.KindValidation, "Invalid input")
	}

	fields := make(map[string]string, len(ves))
	for _, fe := range ves {
		fields[fe.Field()] = message(fe)
	}
	return apperrors.New(apperrors.KindValidation, firstMessage(ves)).WithDetails(fields)
}

// PinCode reports whether s is exactly six ASCII digits.
func PinCode(s string) bool { return pinCodeRe.MatchString(s) }

// Gmail reports whether email carries the accepted mail domain.
func Gmail(email string) bool {
	return strings.HasSuffix(strings.ToLower(email), GmailSuffix)
}

func firstMessage(ves validator.ValidationErrors) string {
	fe := ves[0]
	return fmt.Sprintf("%s: %s", fe.Field(), message(fe))
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Must be a valid email address"
	case "gmail":
		return "Use Gmail"
	case "pincode":
		return "PIN code must be exactly 6 digits"
	case "decision":
		return "Status must be approved or rejected"
	case "min":
		return fmt.Sprintf("Must be at least %s characters long", fe.Param())
	case "max":
		return fmt.Sprintf("Must be at most %s characters long", fe.Param())
	case "eqfield":
		return "Passwords do not match"
	default:
		return fmt.Sprintf("Invalid value (failed on '%s' tag)", fe.Tag())
	}
}
