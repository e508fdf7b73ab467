package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugwire/plugwire-go/domain/entities"
)

func TestFetch_GetWithHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("\x00asm\x01\x00\x00\x00"))
	}))
	defer srv.Close()

	data, err := New().Fetch(context.Background(), entities.WasmSource{
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "Bearer token"},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("\x00asm\x01\x00\x00\x00"), data)
}

func TestFetch_Method(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	_, err := New().Fetch(context.Background(), entities.WasmSource{URL: srv.URL, Method: "post"})
	require.NoError(t, err)
}

func TestFetch_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New().Fetch(context.Background(), entities.WasmSource{URL: srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFetch_MaxSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	_, err := New(WithMaxModuleSize(16)).Fetch(context.Background(), entities.WasmSource{URL: srv.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 16 bytes")
}

func TestFetch_NoURL(t *testing.T) {
	_, err := New().Fetch(context.Background(), entities.WasmSource{Path: "x.wasm"})
	assert.Error(t, err)
}

func TestFetch_CustomClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "plugwire-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("\x00asm"))
	}))
	defer srv.Close()

	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		r.Header.Set("User-Agent", "plugwire-test")
		return http.DefaultTransport.RoundTrip(r)
	})}
	data, err := New(WithClient(client)).Fetch(context.Background(), entities.WasmSource{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, []byte("\x00asm"), data)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
