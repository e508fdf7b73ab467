// Package validation checks manifests before they reach the runtime: the
// document shape against the generated JSON schema, then the semantic rules
// carried by struct tags and by the source layout.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/plugwire/plugwire-go/application/schema"
	"github.com/plugwire/plugwire-go/domain/entities"
	"github.com/plugwire/plugwire-go/domain/ports"
)

// ManifestValidator implements ports.ManifestValidator.
type ManifestValidator struct {
	schema   *jsonschema.Schema
	validate *validator.Validate
}

var (
	defaultOnce      sync.Once
	defaultValidator ports.ManifestValidator
	defaultErr       error
)

// NewManifestValidator compiles the manifest schema and creates a validator.
func NewManifestValidator() (ports.ManifestValidator, error) {
	raw, err := schema.ManifestSchema()
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schema.ManifestSchemaID, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to add manifest schema: %w", err)
	}
	sch, err := compiler.Compile(schema.ManifestSchemaID)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest schema: %w", err)
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)

	return &ManifestValidator{schema: sch, validate: v}, nil
}

// Default returns a process-wide validator.
func Default() (ports.ManifestValidator, error) {
	defaultOnce.Do(func() {
		defaultValidator, defaultErr = NewManifestValidator()
	})
	return defaultValidator, defaultErr
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// ValidateDocument checks a JSON manifest document against the schema.
// Malformed JSON is an error; schema violations are reported in the result.
func (v *ManifestValidator) ValidateDocument(raw []byte) (*entities.ValidationResult, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode manifest document: %w", err)
	}

	result := &entities.ValidationResult{Valid: true}
	if err := v.schema.Validate(doc); err != nil {
		result.Valid = false
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			collectLeaves(ve, result)
		} else {
			result.Errors = append(result.Errors, entities.ValidationError{Message: err.Error()})
		}
	}
	return result, nil
}

// collectLeaves flattens the error tree to the errors that caused it.
func collectLeaves(ve *jsonschema.ValidationError, result *entities.ValidationResult) {
	if len(ve.Causes) == 0 {
		result.Errors = append(result.Errors, entities.ValidationError{
			Field:   ve.InstanceLocation,
			Message: ve.Message,
		})
		return
	}
	for _, c := range ve.Causes {
		collectLeaves(c, result)
	}
}

// Validate checks the semantic rules of a parsed manifest.
func (v *ManifestValidator) Validate(manifest *entities.Manifest) (*entities.ValidationResult, error) {
	if manifest == nil {
		return nil, fmt.Errorf("manifest is nil")
	}
	result := &entities.ValidationResult{Valid: true}

	if err := v.validate.Struct(manifest); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, err
		}
		for _, fe := range fieldErrs {
			result.Errors = append(result.Errors, entities.ValidationError{
				Field:   fieldPath(fe.Namespace()),
				Message: fieldMessage(fe),
			})
		}
	}

	names := make(map[string]int, len(manifest.Wasm))
	for i, src := range manifest.Wasm {
		field := fmt.Sprintf("wasm[%d]", i)
		set := 0
		for _, present := range []bool{src.Path != "", src.URL != "", len(src.Data) > 0} {
			if present {
				set++
			}
		}
		if set != 1 {
			result.Errors = append(result.Errors, entities.ValidationError{
				Field:   field,
				Message: "exactly one of path, url or data must be set",
			})
		}
		if src.Name == "" {
			continue
		}
		if prev, dup := names[src.Name]; dup {
			result.Errors = append(result.Errors, entities.ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("module name %q already used by wasm[%d]", src.Name, prev),
			})
			continue
		}
		names[src.Name] = i
	}

	// Hosts are glob patterns such as "*.example.com".
	for i, host := range manifest.AllowedHosts {
		if host != "" && !doublestar.ValidatePattern(host) {
			result.Errors = append(result.Errors, entities.ValidationError{
				Field:   fmt.Sprintf("allowed_hosts[%d]", i),
				Message: fmt.Sprintf("invalid host pattern %q", host),
			})
		}
	}

	for host, guest := range manifest.AllowedPaths {
		if strings.TrimPrefix(host, "ro:") == "" || guest == "" {
			result.Errors = append(result.Errors, entities.ValidationError{
				Field:   "allowed_paths",
				Message: fmt.Sprintf("mapping %q -> %q needs both a host and a guest path", host, guest),
			})
		}
	}

	result.Valid = len(result.Errors) == 0
	return result, nil
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "len":
		return fmt.Sprintf("must be %s characters long", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "url":
		return "must be a valid URL"
	case "hexadecimal":
		return "must be hexadecimal"
	}
	return fmt.Sprintf("failed %q validation", fe.Tag())
}

// Summary joins the messages of a failed result into one error.
func Summary(result *entities.ValidationResult) error {
	if result == nil || result.Valid {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		if e.Field != "" {
			msgs = append(msgs, e.Field+": "+e.Message)
		} else {
			msgs = append(msgs, e.Message)
		}
	}
	return fmt.Errorf("invalid manifest: %s", strings.Join(msgs, "; "))
}
