// Package validate provides struct validation using go-playground/validator.
package validate

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	instance *validator.Validate //nolint:gochecknoglobals
	once     sync.Once           //nolint:gochecknoglobals
)

// Validator returns the singleton validator instance.
func Validator() *validator.Validate {
	once.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())
		registerCustomValidators(instance)
		registerTagNameFunc(instance)
	})

	return instance
}

func registerCustomValidators(v *validator.Validate) {
	_ = v.RegisterValidation("bytesize", validateByteSize)
	_ = v.RegisterValidation("bytesizemax", validateByteSizeMax)
	_ = v.RegisterValidation("nsname", validateNamespaceName)
	_ = v.RegisterValidation("collname", validateCollectionName)
}

// registerTagNameFunc reports fields by the option names users type: the json tag, then the
// mapstructure tag, then the Go field name.
func registerTagNameFunc(v *validator.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, key := range []string{"json", "mapstructure"} {
			name := strings.SplitN(fld.Tag.Get(key), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}

		return fld.Name
	})
}

// Struct validates a struct using the singleton validator.
func Struct(s any) error {
	return TranslateErrors(Validator().Struct(s))
}

// Var validates a single value against tag.
func Var(field any, tag string) error {
	return TranslateErrors(Validator().Var(field, tag))
}

// validateNamespaceName accepts names usable as a MongoDB database name.
func validateNamespaceName(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" || len(s) > 64 {
		return false
	}

	return !strings.ContainsAny(s, "/\\. \"$*<>:|?\x00")
}

// validateCollectionName accepts names usable as a MongoDB collection name. Unlike database
// names they may contain dots.
func validateCollectionName(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" || len(s) > 255 {
		return false
	}

	if strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") || strings.HasPrefix(s, "system.") {
		return false
	}

	return !strings.ContainsAny(s, "$\x00")
}
