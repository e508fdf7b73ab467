package ports

import (
	"context"

	"github.com/plugwire/plugwire-go/domain/entities"
)

// Engine is the bytecode runtime. It compiles and instantiates plugin modules
// and links them against host imports.
type Engine interface {
	// Instantiate builds a plugin from source, which is either a wasm binary
	// or a JSON-encoded entities.Manifest. Errors carry the runtime's message.
	Instantiate(ctx context.Context, source []byte, imports []Import, wasi bool) (Instance, error)

	// Close releases the engine and every instance it still holds.
	Close(ctx context.Context) error
}

// Instance is one instantiated plugin inside an Engine. Instances are not safe
// for concurrent calls; CancelHandle is the only method meant for use from
// another goroutine while Call runs.
type Instance interface {
	// ID returns the instance's unique identifier.
	ID() string

	// SetConfig merges values into the plugin config. A nil value removes the key.
	SetConfig(values map[string]*string) error

	// FunctionExists reports whether the main module exports name.
	FunctionExists(name string) bool

	// Exports lists the functions the main module exports, sorted.
	Exports() []string

	// Call invokes the export name with input. A non-nil error or a non-zero
	// rc means the call failed; LastError then holds the runtime's message.
	// A closed instance fails with an unwrapped UseAfterFreeError; host
	// function failures come back as HostFunctionError.
	Call(ctx context.Context, name string, input []byte) (rc int32, err error)

	// LastError returns the message recorded for the most recent failed call.
	LastError() string

	// Output returns the output of the most recent call. The slice may be
	// reused by the next call.
	Output() []byte

	// Memory returns the instance's kernel memory.
	Memory() Memory

	// CancelHandle returns a handle that aborts the in-flight call.
	CancelHandle() Canceller

	// Close releases the instance.
	Close(ctx context.Context) error
}

// Memory is the offset-addressed memory host and guest exchange data through.
// Offset 0 is the null block.
type Memory interface {
	// Alloc reserves n bytes and returns their offset.
	Alloc(n uint64) (uint64, error)

	// Free releases the block starting at offset. Freeing an unknown block is
	// an error.
	Free(offset uint64) error

	// Length returns the length of the block starting at offset, or zero if
	// there is none.
	Length(offset uint64) uint64

	// Read returns a view of n bytes at offset.
	Read(offset, n uint64) ([]byte, bool)

	// Write copies data to offset.
	Write(offset uint64, data []byte) bool
}

// Canceller aborts an in-flight call.
type Canceller interface {
	// Cancel signals the running call, if any. It reports whether a call was
	// running and received the signal.
	Cancel() bool
}

// HostThunk is the runtime-facing form of a host function. stack holds the
// parameters on entry and receives the results, in the wazero convention.
type HostThunk func(ctx context.Context, mem Memory, stack []uint64) error

// Import is a host function offered to guest modules.
type Import struct {
	Thunk     HostThunk
	Namespace string
	Name      string
	Params    []entities.ValueKind
	Results   []entities.ValueKind
}

// ModuleFetcher downloads module bytes for url sources.
type ModuleFetcher interface {
	Fetch(ctx context.Context, src entities.WasmSource) ([]byte, error)
}
