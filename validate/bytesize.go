package validate

import (
	"reflect"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
)

// validateByteSize checks if a string can be parsed as a byte size.
func validateByteSize(fl validator.FieldLevel) bool {
	s := getStringValue(fl.Field())
	if s == "" || s == "0" {
		return true // empty/zero = use default
	}

	_, err := humanize.ParseBytes(s)

	return err == nil
}

// validateByteSizeMax validates maximum byte size.
// Tag usage: bytesizemax=16MiB
func validateByteSizeMax(fl validator.FieldLevel) bool {
	s := getStringValue(fl.Field())
	if s == "" || s == "0" {
		return true
	}

	bytes, err := humanize.ParseBytes(s)
	if err != nil {
		return true // reported by bytesize
	}

	maxBytes, err := humanize.ParseBytes(fl.Param())
	if err != nil {
		return false
	}

	return bytes <= maxBytes
}

func getStringValue(field reflect.Value) string {
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			return ""
		}

		return field.Elem().String()
	}

	return field.String()
}
