// Package validation holds the shared struct validator. Field names in
// messages use the json tag so callers see the wire name.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "nexops/pkg/domain-errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Struct validates v and returns a CodeValidation error naming each failing
// field and tag.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	fields := Fields(err)
	if len(fields) == 0 {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid request")
	}
	parts := make([]string, 0, len(fields))
	for field, tag := range fields {
		parts = append(parts, fmt.Sprintf("%s failed %s", field, tag))
	}
	sort.Strings(parts)
	return dErrors.Wrap(err, dErrors.CodeValidation, strings.Join(parts, "; "))
}

// Fields maps each failing field to the tag it failed.
func Fields(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Field()] = fe.Tag()
	}
	return out
}
