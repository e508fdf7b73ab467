package validation_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugwire/plugwire-go/application/validation"
	"github.com/plugwire/plugwire-go/domain/entities"
)

func fields(res *entities.ValidationResult) []string {
	out := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		out = append(out, e.Field)
	}
	return out
}

func TestValidateDocument(t *testing.T) {
	v, err := validation.NewManifestValidator()
	require.NoError(t, err)

	tests := []struct {
		name    string
		doc     string
		valid   bool
		message string
	}{
		{name: "path source", doc: `{"wasm":[{"path":"plugin.wasm"}]}`, valid: true},
		{name: "full", doc: `{"wasm":[{"url":"https://example.com/a.wasm","method":"GET","hash":"` + strings.Repeat("ab", 32) + `","name":"main"}],"memory":{"max_pages":4},"config":{"k":"v"},"timeout_ms":100}`, valid: true},
		{name: "not a manifest", doc: `{"not_a_real_manifest": true}`, message: "not_a_real_manifest"},
		{name: "no sources", doc: `{"wasm":[]}`},
		{name: "bad hash", doc: `{"wasm":[{"path":"a.wasm","hash":"xyz"}]}`},
		{name: "bad method", doc: `{"wasm":[{"url":"https://x","method":"DELETE"}]}`},
		{name: "wrong type", doc: `{"wasm":[{"path":"a.wasm"}],"timeout_ms":"soon"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := v.ValidateDocument([]byte(tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.valid, res.Valid, "%+v", res.Errors)
			if !tt.valid {
				assert.NotEmpty(t, res.Errors)
			}
			if tt.message != "" {
				assert.Contains(t, validation.Summary(res).Error(), tt.message)
			}
		})
	}
}

func TestValidateDocument_Malformed(t *testing.T) {
	v, err := validation.NewManifestValidator()
	require.NoError(t, err)

	_, err = v.ValidateDocument([]byte(`{"wasm":`))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	v, err := validation.Default()
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		m := entities.ManifestFromPath("a.wasm", entities.WithName("main"))
		res, err := v.Validate(&m)
		require.NoError(t, err)
		assert.True(t, res.Valid, "%+v", res.Errors)
		assert.NoError(t, validation.Summary(res))
	})

	t.Run("no sources", func(t *testing.T) {
		res, err := v.Validate(&entities.Manifest{})
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Contains(t, fields(res), "wasm")
	})

	t.Run("two locations", func(t *testing.T) {
		m := entities.Manifest{Wasm: []entities.WasmSource{{Path: "a.wasm", URL: "https://example.com/a.wasm"}}}
		res, err := v.Validate(&m)
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Contains(t, fields(res), "wasm[0]")
	})

	t.Run("no location", func(t *testing.T) {
		m := entities.Manifest{Wasm: []entities.WasmSource{{Name: "main"}}}
		res, err := v.Validate(&m)
		require.NoError(t, err)
		assert.Contains(t, fields(res), "wasm[0]")
	})

	t.Run("duplicate names", func(t *testing.T) {
		m := entities.Manifest{Wasm: []entities.WasmSource{{Path: "a.wasm", Name: "lib"}, {Path: "b.wasm", Name: "lib"}}}
		res, err := v.Validate(&m)
		require.NoError(t, err)
		assert.Contains(t, fields(res), "wasm[1].name")
	})

	t.Run("struct tags", func(t *testing.T) {
		m := entities.Manifest{
			Wasm:   []entities.WasmSource{{URL: "not a url", Hash: "abc", Method: "PATCH"}},
			Memory: &entities.MemoryOptions{MaxPages: 70000},
		}
		res, err := v.Validate(&m)
		require.NoError(t, err)
		assert.False(t, res.Valid)
		got := fields(res)
		assert.Contains(t, got, "wasm[0].url")
		assert.Contains(t, got, "wasm[0].hash")
		assert.Contains(t, got, "wasm[0].method")
		assert.Contains(t, got, "memory.max_pages")
	})

	t.Run("allowed paths", func(t *testing.T) {
		m := entities.ManifestFromPath("a.wasm")
		m.AllowedPaths = map[string]string{"ro:": "/data"}
		res, err := v.Validate(&m)
		require.NoError(t, err)
		assert.Contains(t, fields(res), "allowed_paths")
	})

	t.Run("allowed hosts", func(t *testing.T) {
		m := entities.ManifestFromPath("a.wasm")
		m.AllowedHosts = []string{"*.example.com", "api.{a,b}.io", "bad[host"}
		res, err := v.Validate(&m)
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, []string{"allowed_hosts[2]"}, fields(res))
	})

	t.Run("nil", func(t *testing.T) {
		_, err := v.Validate(nil)
		assert.Error(t, err)
	})
}
