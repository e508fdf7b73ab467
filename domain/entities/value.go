package entities

import (
	"fmt"
	"math"

	"github.com/plugwire/plugwire-go/domain/errors"
)

// ValueKind is the type tag of a single parameter or result slot in the
// host/guest calling convention.
type ValueKind uint8

const (
	ValueKindI32 ValueKind = iota
	ValueKindI64
	ValueKindF32
	ValueKindF64
	ValueKindV128
	ValueKindFuncRef
	ValueKindExternRef
)

// ValueKindPtr is the kind used for offsets into plugin memory.
const ValueKindPtr = ValueKindI64

// String returns the wasm text name of the kind.
func (k ValueKind) String() string {
	switch k {
	case ValueKindI32:
		return "i32"
	case ValueKindI64:
		return "i64"
	case ValueKindF32:
		return "f32"
	case ValueKindF64:
		return "f64"
	case ValueKindV128:
		return "v128"
	case ValueKindFuncRef:
		return "funcref"
	case ValueKindExternRef:
		return "externref"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Settable reports whether values of this kind can be read and written by
// host functions. Vector and reference kinds may appear in signatures only.
func (k ValueKind) Settable() bool {
	return k <= ValueKindF64
}

// Valid reports whether k is one of the declared kinds.
func (k ValueKind) Valid() bool {
	return k <= ValueKindExternRef
}

// ParseValueKind maps a wasm text name ("i32", "i64", "ptr", ...) to a kind.
func ParseValueKind(s string) (ValueKind, error) {
	switch s {
	case "i32":
		return ValueKindI32, nil
	case "i64", "ptr":
		return ValueKindI64, nil
	case "f32":
		return ValueKindF32, nil
	case "f64":
		return ValueKindF64, nil
	case "v128":
		return ValueKindV128, nil
	case "funcref":
		return ValueKindFuncRef, nil
	case "externref":
		return ValueKindExternRef, nil
	}
	return 0, fmt.Errorf("unknown value kind %q", s)
}

// Value is one typed parameter or result slot. It references a slot owned by
// the runtime's call frame and is only valid for the duration of that call.
type Value struct {
	slot *uint64
	kind ValueKind
}

// NewValue wraps a raw slot with its declared kind.
func NewValue(kind ValueKind, slot *uint64) Value {
	return Value{kind: kind, slot: slot}
}

// Kind returns the declared kind.
func (v Value) Kind() ValueKind {
	return v.kind
}

// Raw returns the raw slot bits. Prefer the typed accessors.
func (v Value) Raw() uint64 {
	if v.slot == nil {
		return 0
	}
	return *v.slot
}

func (v Value) check(want ValueKind) error {
	if !v.kind.Settable() {
		return &errors.UnsupportedValueTypeError{Kind: v.kind.String()}
	}
	if v.kind != want {
		return &errors.InvalidValueTypeError{Want: want.String(), Got: v.kind.String()}
	}
	if v.slot == nil {
		return &errors.UseAfterFreeError{Resource: "value"}
	}
	return nil
}

// I32 reads the slot as an i32.
func (v Value) I32() (int32, error) {
	if err := v.check(ValueKindI32); err != nil {
		return 0, err
	}
	return int32(uint32(*v.slot)), nil //nolint:gosec // G115: i32 slots carry 32 significant bits
}

// I64 reads the slot as an i64.
func (v Value) I64() (int64, error) {
	if err := v.check(ValueKindI64); err != nil {
		return 0, err
	}
	return int64(*v.slot), nil //nolint:gosec // G115: bit reinterpretation
}

// F32 reads the slot as an f32.
func (v Value) F32() (float32, error) {
	if err := v.check(ValueKindF32); err != nil {
		return 0, err
	}
	return math.Float32frombits(uint32(*v.slot)), nil //nolint:gosec // G115: f32 slots carry 32 significant bits
}

// F64 reads the slot as an f64.
func (v Value) F64() (float64, error) {
	if err := v.check(ValueKindF64); err != nil {
		return 0, err
	}
	return math.Float64frombits(*v.slot), nil
}

// Offset reads an i64 slot as an offset into plugin memory.
func (v Value) Offset() (uint64, error) {
	if err := v.check(ValueKindI64); err != nil {
		return 0, err
	}
	return *v.slot, nil
}

// SetI32 writes an i32 into the slot.
func (v Value) SetI32(x int32) error {
	if err := v.check(ValueKindI32); err != nil {
		return err
	}
	*v.slot = uint64(uint32(x)) //nolint:gosec // G115: bit reinterpretation
	return nil
}

// SetI64 writes an i64 into the slot.
func (v Value) SetI64(x int64) error {
	if err := v.check(ValueKindI64); err != nil {
		return err
	}
	*v.slot = uint64(x) //nolint:gosec // G115: bit reinterpretation
	return nil
}

// SetF32 writes an f32 into the slot.
func (v Value) SetF32(x float32) error {
	if err := v.check(ValueKindF32); err != nil {
		return err
	}
	*v.slot = uint64(math.Float32bits(x))
	return nil
}

// SetF64 writes an f64 into the slot.
func (v Value) SetF64(x float64) error {
	if err := v.check(ValueKindF64); err != nil {
		return err
	}
	*v.slot = math.Float64bits(x)
	return nil
}

// Set writes x using the slot's declared kind. Integer arguments are accepted
// for integer slots and any numeric argument for float slots; anything else is
// an InvalidValueTypeError.
func (v Value) Set(x any) error {
	if !v.kind.Settable() {
		return &errors.UnsupportedValueTypeError{Kind: v.kind.String()}
	}
	switch v.kind {
	case ValueKindI32:
		n, ok := asInt64(x)
		if !ok || n < math.MinInt32 || n > math.MaxUint32 {
			return &errors.InvalidValueTypeError{Want: v.kind.String(), Got: fmt.Sprintf("%T", x)}
		}
		return v.SetI32(int32(n)) //nolint:gosec // G115: range checked above
	case ValueKindI64:
		if u, ok := x.(uint64); ok {
			return v.SetI64(int64(u)) //nolint:gosec // G115: offsets are reinterpreted, not converted
		}
		n, ok := asInt64(x)
		if !ok {
			return &errors.InvalidValueTypeError{Want: v.kind.String(), Got: fmt.Sprintf("%T", x)}
		}
		return v.SetI64(n)
	case ValueKindF32:
		f, ok := asFloat64(x)
		if !ok {
			return &errors.InvalidValueTypeError{Want: v.kind.String(), Got: fmt.Sprintf("%T", x)}
		}
		return v.SetF32(float32(f))
	default:
		f, ok := asFloat64(x)
		if !ok {
			return &errors.InvalidValueTypeError{Want: v.kind.String(), Got: fmt.Sprintf("%T", x)}
		}
		return v.SetF64(f)
	}
}

func asInt64(x any) (int64, bool) {
	switch n := x.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true //nolint:gosec // G115: range checked above
	}
	return 0, false
}

func asFloat64(x any) (float64, bool) {
	switch n := x.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	if i, ok := asInt64(x); ok {
		return float64(i), true
	}
	return 0, false
}
