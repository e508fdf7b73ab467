package wazero

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/plugwire/plugwire-go/domain/errors"
	"github.com/plugwire/plugwire-go/log"
)

// KernelNamespace is the import module guests use to reach kernel memory,
// input, output, config, vars, and logging. User imports may not use it.
const KernelNamespace = "extism:host/env"

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

type kernelFunc struct {
	fn      func(i *Instance, stack []uint64)
	name    string
	params  []api.ValueType
	results []api.ValueType
}

// trap aborts the running guest call.
func trap(format string, args ...any) {
	panic(fmt.Errorf(format, args...))
}

func kernelFuncs() []kernelFunc {
	return []kernelFunc{
		{name: "alloc", params: []api.ValueType{i64}, results: []api.ValueType{i64}, fn: kAlloc},
		{name: "free", params: []api.ValueType{i64}, fn: kFree},
		{name: "length", params: []api.ValueType{i64}, results: []api.ValueType{i64}, fn: kLength},
		{name: "length_unsafe", params: []api.ValueType{i64}, results: []api.ValueType{i64}, fn: kLength},
		{name: "load_u8", params: []api.ValueType{i64}, results: []api.ValueType{i32}, fn: kLoadU8},
		{name: "load_u64", params: []api.ValueType{i64}, results: []api.ValueType{i64}, fn: kLoadU64},
		{name: "store_u8", params: []api.ValueType{i64, i32}, fn: kStoreU8},
		{name: "store_u64", params: []api.ValueType{i64, i64}, fn: kStoreU64},
		{name: "input_offset", results: []api.ValueType{i64}, fn: func(i *Instance, s []uint64) { s[0] = i.input }},
		{name: "input_length", results: []api.ValueType{i64}, fn: func(i *Instance, s []uint64) { s[0] = i.inputLen }},
		{name: "input_load_u8", params: []api.ValueType{i64}, results: []api.ValueType{i32}, fn: kInputLoadU8},
		{name: "input_load_u64", params: []api.ValueType{i64}, results: []api.ValueType{i64}, fn: kInputLoadU64},
		{name: "output_set", params: []api.ValueType{i64, i64}, fn: kOutputSet},
		{name: "error_set", params: []api.ValueType{i64}, fn: kErrorSet},
		{name: "error_get", results: []api.ValueType{i64}, fn: func(i *Instance, s []uint64) { s[0] = i.errBlock }},
		{name: "config_get", params: []api.ValueType{i64}, results: []api.ValueType{i64}, fn: kConfigGet},
		{name: "var_get", params: []api.ValueType{i64}, results: []api.ValueType{i64}, fn: kVarGet},
		{name: "var_set", params: []api.ValueType{i64, i64}, fn: kVarSet},
		{name: "log_trace", params: []api.ValueType{i64}, fn: guestLogger(log.LevelTrace)},
		{name: "log_debug", params: []api.ValueType{i64}, fn: guestLogger(log.LevelDebug)},
		{name: "log_info", params: []api.ValueType{i64}, fn: guestLogger(log.LevelInfo)},
		{name: "log_warn", params: []api.ValueType{i64}, fn: guestLogger(log.LevelWarn)},
		{name: "log_error", params: []api.ValueType{i64}, fn: guestLogger(log.LevelError)},
		{name: "get_log_level", results: []api.ValueType{i32}, fn: func(_ *Instance, s []uint64) { s[0] = uint64(log.CurrentLevel()) }}, //nolint:gosec // G115: small enum
		{name: "reset", fn: func(i *Instance, _ []uint64) { i.resetKernel() }},
	}
}

// instantiateKernel installs the kernel host module bound to inst.
func instantiateKernel(ctx context.Context, r wazero.Runtime, inst *Instance) error {
	builder := r.NewHostModuleBuilder(KernelNamespace)
	for _, kf := range kernelFuncs() {
		fn, name := kf.fn, kf.name
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
				defer func() {
					if r := recover(); r != nil {
						if err, ok := r.(error); ok {
							inst.recordHostError(&errors.HostFunctionError{Namespace: KernelNamespace, Function: name, Err: err})
						}
						panic(r)
					}
				}()
				fn(inst, stack)
			}), kf.params, kf.results).
			Export(kf.name)
	}
	_, err := builder.Instantiate(ctx)
	return err
}

func kAlloc(i *Instance, s []uint64) {
	offset, err := i.mem.Alloc(s[0])
	if err != nil {
		trap("alloc: %v", err)
	}
	s[0] = offset
}

func kFree(i *Instance, s []uint64) {
	if s[0] == 0 {
		return
	}
	if err := i.mem.Free(s[0]); err != nil {
		trap("free: %v", err)
	}
}

func kLength(i *Instance, s []uint64) {
	s[0] = i.mem.Length(s[0])
}

func kLoadU8(i *Instance, s []uint64) {
	b, ok := i.mem.Read(s[0], 1)
	if !ok {
		trap("load_u8: offset %d out of bounds", s[0])
	}
	s[0] = uint64(b[0])
}

func kLoadU64(i *Instance, s []uint64) {
	b, ok := i.mem.Read(s[0], 8)
	if !ok {
		trap("load_u64: offset %d out of bounds", s[0])
	}
	s[0] = binary.LittleEndian.Uint64(b)
}

func kStoreU8(i *Instance, s []uint64) {
	if !i.mem.Write(s[0], []byte{byte(s[1])}) {
		trap("store_u8: offset %d out of bounds", s[0])
	}
}

func kStoreU64(i *Instance, s []uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], s[1])
	if !i.mem.Write(s[0], b[:]) {
		trap("store_u64: offset %d out of bounds", s[0])
	}
}

func kInputLoadU8(i *Instance, s []uint64) {
	if s[0] >= i.inputLen {
		trap("input_load_u8: index %d beyond input length %d", s[0], i.inputLen)
	}
	b, _ := i.mem.Read(i.input+s[0], 1)
	s[0] = uint64(b[0])
}

func kInputLoadU64(i *Instance, s []uint64) {
	if s[0]+8 > i.inputLen || s[0]+8 < s[0] {
		trap("input_load_u64: index %d beyond input length %d", s[0], i.inputLen)
	}
	b, _ := i.mem.Read(i.input+s[0], 8)
	s[0] = binary.LittleEndian.Uint64(b)
}

func kOutputSet(i *Instance, s []uint64) {
	offset, n := s[0], s[1]
	if _, ok := i.mem.Read(offset, n); !ok {
		trap("output_set: range %d+%d out of bounds", offset, n)
	}
	i.output, i.outputLen = offset, n
}

func kErrorSet(i *Instance, s []uint64) {
	if s[0] != 0 {
		if _, ok := i.mem.bytesAt(s[0]); !ok {
			trap("error_set: no block at offset %d", s[0])
		}
	}
	i.errBlock = s[0]
}

// blockString returns the contents of the block at offset as a string.
func blockString(i *Instance, op string, offset uint64) string {
	b, ok := i.mem.bytesAt(offset)
	if !ok {
		trap("%s: no block at offset %d", op, offset)
	}
	return string(b)
}

func kConfigGet(i *Instance, s []uint64) {
	key := blockString(i, "config_get", s[0])
	v, ok := i.config[key]
	if !ok {
		s[0] = 0
		return
	}
	s[0] = allocOrTrap(i, "config_get", []byte(v))
}

func kVarGet(i *Instance, s []uint64) {
	key := blockString(i, "var_get", s[0])
	v, ok := i.vars[key]
	if !ok {
		s[0] = 0
		return
	}
	s[0] = allocOrTrap(i, "var_get", v)
}

func kVarSet(i *Instance, s []uint64) {
	key := blockString(i, "var_set", s[0])
	old, had := i.vars[key]

	if s[1] == 0 {
		if had {
			i.varBytes -= int64(len(key) + len(old))
			delete(i.vars, key)
		}
		return
	}

	val, ok := i.mem.bytesAt(s[1])
	if !ok {
		trap("var_set: no block at offset %d", s[1])
	}
	size := i.varBytes + int64(len(key)+len(val))
	if had {
		size -= int64(len(key) + len(old))
	}
	if i.maxVarBytes > 0 && size > i.maxVarBytes {
		trap("var_set: variable store is full (%d of %d bytes)", size, i.maxVarBytes)
	}
	i.vars[key] = append([]byte(nil), val...)
	i.varBytes = size
}

func allocOrTrap(i *Instance, op string, data []byte) uint64 {
	offset, err := i.mem.allocBytes(data)
	if err != nil {
		trap("%s: %v", op, err)
	}
	return offset
}

func guestLogger(lvl log.Level) func(i *Instance, s []uint64) {
	return func(i *Instance, s []uint64) {
		msg := blockString(i, "log", s[0])
		if i.guestLogs {
			log.Guest(i.id, lvl, msg)
		}
	}
}
