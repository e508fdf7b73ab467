// Package errors provides the error types surfaced at the host/guest boundary.
// All error types support error unwrapping via errors.As() and errors.Is().
package errors

import (
	stdErrors "errors"
	"fmt"
)

// ErrCallFailed is returned when a plugin call fails and the runtime reports
// no message for it.
var ErrCallFailed = stdErrors.New("plugin call failed")

// PluginCreationError reports a failure to instantiate a plugin: invalid
// module, import signature mismatch, or a runtime resource failure.
// Message is the runtime's message, unchanged.
type PluginCreationError struct {
	Err     error
	Message string
}

func (e *PluginCreationError) Error() string {
	return fmt.Sprintf("plugin creation failed: %s", e.Message)
}

func (e *PluginCreationError) Unwrap() error {
	return e.Err
}

// CallError reports a failed call into a plugin export.
type CallError struct {
	Err      error
	Function string
	Message  string
}

func (e *CallError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("call to %q failed", e.Function)
	}
	return fmt.Sprintf("call to %q failed: %s", e.Function, e.Message)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// HostFunctionError reports a host function that failed or panicked during a
// call. Err is what the host function returned.
type HostFunctionError struct {
	Err       error
	Namespace string
	Function  string
}

func (e *HostFunctionError) Error() string {
	return fmt.Sprintf("host function %s::%s failed: %v", e.Namespace, e.Function, e.Err)
}

func (e *HostFunctionError) Unwrap() error {
	return e.Err
}

// FunctionNotFoundError reports a call to an export the module does not have.
type FunctionNotFoundError struct {
	Name string
}

func (e *FunctionNotFoundError) Error() string {
	return fmt.Sprintf("function %q not found in plugin", e.Name)
}

// AllocationError reports that the runtime could not satisfy an allocation.
type AllocationError struct {
	Err       error
	Requested uint64
}

func (e *AllocationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("memory allocation of %d bytes failed: %v", e.Requested, e.Err)
	}
	return fmt.Sprintf("memory allocation of %d bytes failed", e.Requested)
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}

// NotFoundError reports a memory lookup for an offset the runtime does not
// know. A zero-length block is reported the same way.
type NotFoundError struct {
	Offset uint64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("could not find memory block at offset %d", e.Offset)
}

// InvalidValueTypeError reports access to a value under a kind other than its
// declared one.
type InvalidValueTypeError struct {
	Want string
	Got  string
}

func (e *InvalidValueTypeError) Error() string {
	return fmt.Sprintf("invalid value type: want %s, got %s", e.Want, e.Got)
}

// UnsupportedValueTypeError reports an attempt to read or set a value of a
// kind host functions cannot access (v128, funcref, externref).
type UnsupportedValueTypeError struct {
	Kind string
}

func (e *UnsupportedValueTypeError) Error() string {
	return fmt.Sprintf("unsupported value type %s", e.Kind)
}

// UseAfterFreeError reports an operation on a plugin, function, or call-scoped
// handle after it was released.
type UseAfterFreeError struct {
	Resource string
	ID       string
}

func (e *UseAfterFreeError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s used after free", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s used after free", e.Resource)
}

// MisuseError reports a caller error the runtime refuses to act on: double
// free of a memory block, a block used with the wrong plugin, or conflicting
// import declarations.
type MisuseError struct {
	Op     string
	Detail string
}

func (e *MisuseError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Op, e.Detail)
}

// ManifestError reports a manifest that failed to parse, validate, or load.
type ManifestError struct {
	Err    error
	Source string
}

func (e *ManifestError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("manifest %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("manifest: %v", e.Err)
}

func (e *ManifestError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Err   error
	Field string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config validation failed for field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsUseAfterFree reports whether err is or wraps a UseAfterFreeError.
func IsUseAfterFree(err error) bool {
	var e *UseAfterFreeError
	return stdErrors.As(err, &e)
}

// IsNotFound reports whether err is a missing function or memory block.
func IsNotFound(err error) bool {
	var fn *FunctionNotFoundError
	var mem *NotFoundError
	return stdErrors.As(err, &fn) || stdErrors.As(err, &mem)
}
