package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// Guest modules under testdata/. The .wat file beside each one is its source.
const (
	// KitchenModule exports count_vowels, bump, fail, greet, echo, log_it,
	// trap, spin, and noop.
	KitchenModule = "kitchen.wasm"
	// ReflectModule imports extism:host/user host_reflect (i64) -> i64.
	ReflectModule = "reflect.wasm"
	// KindsModule imports extism:host/user scale (i32 i64 f32 f64) -> f64.
	KindsModule = "kinds.wasm"
	// LibModule exports add_one and is loaded under the name "lib".
	LibModule = "lib.wasm"
	// LinkedModule imports lib.add_one.
	LinkedModule = "linked.wasm"
)

// Dir returns the absolute path of the repository testdata directory.
func Dir(t testing.TB) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok, "cannot locate testutil source")
	return filepath.Join(filepath.Dir(file), "..", "..", "testdata")
}

// Path returns the absolute path of a testdata file.
func Path(t testing.TB, name string) string {
	t.Helper()
	return filepath.Join(Dir(t), name)
}

// Wasm reads a testdata module.
func Wasm(t testing.TB, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(Path(t, name))
	require.NoError(t, err)
	return data
}
