package validator

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Slot times are zero-padded 24h HH:MM strings so lexical order matches
// chronological order.
var slotTimeRE = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// RegisterBindings installs the custom validation rules on gin's
// request binding validator. Call once at startup.
func RegisterBindings() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return v.RegisterValidation("slottime", validSlotTime)
}

func validSlotTime(fl validator.FieldLevel) bool {
	return slotTimeRE.MatchString(fl.Field().String())
}

// IsSlotTime reports whether s is a valid HH:MM slot time.
func IsSlotTime(s string) bool {
	return slotTimeRE.MatchString(s)
}
