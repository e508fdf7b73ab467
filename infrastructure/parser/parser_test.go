package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForContent(t *testing.T) {
	assert.IsType(t, &JSONManifestParser{}, ForContent([]byte(`  {"wasm": []}`)))
	assert.IsType(t, &YamlManifestParser{}, ForContent([]byte("wasm:\n  - path: a.wasm\n")))
}

func TestYamlManifestParser_Parse(t *testing.T) {
	doc := `
wasm:
  - path: plugins/count.wasm
    name: main
    hash: 0f343b0931126a20f133d67c2b018a3b5e8e4c4fd1b7cdfcb8e4c2bd1a2f3e4d
  - url: https://example.com/lib.wasm
    name: lib
    headers:
      Authorization: Bearer abc
memory:
  max_pages: 16
  max_var_bytes: 2048
config:
  greeting: hello
allowed_paths:
  "ro:/tmp/data": /data
timeout_ms: 250
`
	m, err := NewYamlManifestParser().Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, m.Wasm, 2)
	assert.Equal(t, "plugins/count.wasm", m.Wasm[0].Path)
	assert.Equal(t, "main", m.Wasm[0].Name)
	assert.Equal(t, "Bearer abc", m.Wasm[1].Headers["Authorization"])
	require.NotNil(t, m.Memory)
	assert.Equal(t, uint32(16), m.Memory.MaxPages)
	assert.Equal(t, int64(2048), m.Memory.MaxVarBytes)
	assert.Equal(t, "hello", m.Config["greeting"])
	assert.Equal(t, "/data", m.AllowedPaths["ro:/tmp/data"])
	assert.Equal(t, uint64(250), m.TimeoutMs)
}

func TestYamlManifestParser_BinaryData(t *testing.T) {
	doc := "wasm:\n  - data: !!binary AGFzbQEAAAA=\n"
	m, err := NewYamlManifestParser().Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, []byte("\x00asm\x01\x00\x00\x00"), m.Wasm[0].Data)
}

func TestYamlManifestParser_Normalize(t *testing.T) {
	out, err := NewYamlManifestParser().Normalize([]byte("wasm:\n  - path: a.wasm\ntimeout_ms: 10\n"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"wasm":[{"path":"a.wasm"}],"timeout_ms":10}`, string(out))

	_, err = NewYamlManifestParser().Normalize([]byte("wasm: [unclosed"))
	assert.Error(t, err)
}

func TestJSONManifestParser(t *testing.T) {
	p := NewJSONManifestParser()
	m, err := p.Parse([]byte(`{"wasm":[{"data":"AGFzbQEAAAA="}],"config":{"k":"v"}}`))
	require.NoError(t, err)
	assert.Equal(t, []byte("\x00asm\x01\x00\x00\x00"), m.Wasm[0].Data)
	assert.Equal(t, "v", m.Config["k"])

	out, err := p.Normalize([]byte("{ \"wasm\" : [ ] }"))
	require.NoError(t, err)
	assert.Equal(t, `{"wasm":[]}`, string(out))

	_, err = p.Parse([]byte(`{"wasm":`))
	assert.Error(t, err)
}
