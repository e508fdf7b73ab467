package plugwire

import (
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/plugwire/plugwire-go/application/schema"
	"github.com/plugwire/plugwire-go/domain/errors"
)

// validate is shared; validator caches struct metadata per type.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateConfig decodes config into target, a pointer to a struct with json
// and validate tags, and validates it. Failures are *errors.ConfigError
// naming the first offending field.
func ValidateConfig(config Config, target any) error {
	raw, err := json.Marshal(config)
	if err != nil {
		return &errors.ConfigError{Err: fmt.Errorf("failed to marshal config map: %w", err)}
	}

	if err := json.Unmarshal(raw, target); err != nil {
		var typeErr *json.UnmarshalTypeError
		if stdErrors.As(err, &typeErr) {
			return &errors.ConfigError{Field: typeErr.Field, Err: err}
		}
		return &errors.ConfigError{Err: fmt.Errorf("failed to decode config: %w", err)}
	}

	if err := validate.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if stdErrors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			_, path, _ := strings.Cut(fe.Namespace(), ".")
			return &errors.ConfigError{Field: path, Err: err}
		}
		return &errors.ConfigError{Err: err}
	}
	return nil
}

// ConfigSchema returns the JSON Schema of the config struct target, so a host
// can publish what its plugins' config must look like.
func ConfigSchema(target any) ([]byte, error) {
	return schema.GenerateSchema(target)
}
