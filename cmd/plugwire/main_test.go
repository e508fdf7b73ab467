package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugwire/plugwire-go/internal/testutil"
)

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plugin.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestCall_Wasm(t *testing.T) {
	out, _, err := run(t, "", "call", testutil.Path(t, testutil.KitchenModule), "count_vowels", "--input", "Hello, World!")
	require.NoError(t, err)
	assert.Equal(t, testutil.CountVowels("Hello, World!")+"\n", out)
	testutil.AssertJSONEqual(t, `{"count":3}`, out)
}

func TestCall_Stdin(t *testing.T) {
	out, _, err := run(t, "abc", "call", testutil.Path(t, testutil.KitchenModule), "echo", "--input-file", "-")
	require.NoError(t, err)
	assert.Equal(t, "abc\n", out)
}

func TestCall_RepeatKeepsState(t *testing.T) {
	out, _, err := run(t, "", "call", testutil.Path(t, testutil.KitchenModule), "bump", "--repeat", "3")
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n3\n", out)
}

func TestCall_Config(t *testing.T) {
	out, _, err := run(t, "", "call", testutil.Path(t, testutil.KitchenModule), "greet", "--set", "greeting=hi there")
	require.NoError(t, err)
	assert.Equal(t, "hi there\n", out)
}

func TestCall_Manifest(t *testing.T) {
	path := writeManifest(t, "wasm:\n  - path: "+testutil.Path(t, testutil.KitchenModule)+"\nconfig:\n  greeting: from manifest\n")
	out, _, err := run(t, "", "call", path, "greet")
	require.NoError(t, err)
	assert.Equal(t, "from manifest\n", out)
}

func TestCall_ManifestVars(t *testing.T) {
	path := writeManifest(t, "wasm:\n  - path: '{{ .vars.module }}'\nconfig:\n  greeting: '{{ .vars.greeting }}'\n")
	out, _, err := run(t, "",
		"--var", "module="+testutil.Path(t, testutil.KitchenModule), "--var", "greeting=templated",
		"call", path, "greet")
	require.NoError(t, err)
	assert.Equal(t, "templated\n", out)

	_, _, err = run(t, "", "--var", "module", "call", path, "greet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want key=value")
}

func TestCall_Errors(t *testing.T) {
	kitchen := testutil.Path(t, testutil.KitchenModule)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "guest failure", args: []string{"call", kitchen, "fail"}, want: "call to \"fail\" failed"},
		{name: "bad config entry", args: []string{"call", kitchen, "greet", "--set", "nokey"}, want: "want key=value"},
		{name: "bad repeat", args: []string{"call", kitchen, "noop", "--repeat", "0"}, want: "--repeat"},
		{name: "missing file", args: []string{"call", filepath.Join(t.TempDir(), "none.wasm"), "noop"}, want: "failed to read"},
		{name: "wrong arg count", args: []string{"call", kitchen}, want: "accepts 2 arg(s)"},
		{name: "exclusive input", args: []string{"call", kitchen, "echo", "-i", "x", "--input-file", "-"}, want: "none of the others can be"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, "", tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExports(t *testing.T) {
	out, _, err := run(t, "", "exports", testutil.Path(t, testutil.KitchenModule))
	require.NoError(t, err)
	assert.Equal(t, []string{"bump", "count_vowels", "echo", "fail", "greet", "log_it", "noop", "spin", "trap"},
		strings.Fields(out))
}

func TestSchema(t *testing.T) {
	out, _, err := run(t, "", "schema")
	require.NoError(t, err)
	assert.Contains(t, out, `"wasm"`)
	assert.Contains(t, out, `"allowed_hosts"`)
}

func TestValidate(t *testing.T) {
	good := writeManifest(t, "wasm:\n  - path: plugin.wasm\n")
	bad := writeManifest(t, "wasm: []\n")

	out, _, err := run(t, "", "validate", good)
	require.NoError(t, err)
	assert.Equal(t, good+": ok (1 modules)\n", out)

	out, errOut, err := run(t, "", "validate", good, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 manifests invalid")
	assert.Contains(t, out, good+": ok")
	assert.Contains(t, errOut, bad+":")
}

func TestValidate_Glob(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", filepath.Join("nested", "b.yaml")} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("wasm:\n  - path: p.wasm\n"), 0o600))
	}

	out, _, err := run(t, "", "validate", filepath.Join(dir, "**", "*.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, ": ok"))

	_, errOut, err := run(t, "", "validate", filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, errOut, "missing.yaml")
}

func TestLoadSettings_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"log:\n  level: warn\nruntime:\n  timeout: 2s\n  max_var_bytes: 64\n"), 0o600))

	t.Setenv("PLUGWIRE_RUNTIME_MAX_VAR_BYTES", "128")
	t.Setenv("PLUGWIRE_RUNTIME_GUEST_LOGS", "false")

	cmd := newRootCommand()
	require.NoError(t, cmd.PersistentFlags().Parse([]string{"--timeout", "5s"}))

	s, err := loadSettings(path, cmd.PersistentFlags())
	require.NoError(t, err)
	assert.Equal(t, "warn", s.Log.Level)
	assert.Equal(t, 5*time.Second, s.Runtime.Timeout)
	assert.Equal(t, int64(128), s.Runtime.MaxVarBytes)
	assert.False(t, s.Runtime.GuestLogs)

	rc := s.runtimeConfig()
	assert.Equal(t, 5*time.Second, rc.DefaultTimeout)
	assert.Equal(t, int64(128), rc.MaxVarBytes)
}

func TestLoadSettings_Defaults(t *testing.T) {
	s, err := loadSettings("", newRootCommand().PersistentFlags())
	require.NoError(t, err)
	assert.Equal(t, defaultSettings(), s)
}

func TestLoadSettings_MissingFile(t *testing.T) {
	_, err := loadSettings(filepath.Join(t.TempDir(), "none.yaml"), newRootCommand().PersistentFlags())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read settings")
}

func TestCall_TimeoutSetting(t *testing.T) {
	start := time.Now()
	_, _, err := run(t, "", "--timeout", "100ms", "call", testutil.Path(t, testutil.KitchenModule), "spin")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
}
