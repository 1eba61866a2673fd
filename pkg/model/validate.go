package model

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// User ids never contain ':' or '|' because both act as separators in
// channel ids and storage keys.
var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.@-]{1,64}$`)

// ValidUserID reports whether id is a syntactically valid user identity.
func ValidUserID(id string) bool {
	return userIDPattern.MatchString(id)
}

// NewValidator returns a validator with the "userid" tag registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("userid", func(fl validator.FieldLevel) bool {
		return ValidUserID(fl.Field().String())
	})
	return v
}
