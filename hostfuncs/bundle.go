package hostfuncs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"time"
)

// HostFuncBundle is a pre-configured set of related host functions.
type HostFuncBundle interface {
	// Handlers returns a map of handler names to ByteHandler functions.
	Handlers() map[string]ByteHandler
}

type staticBundle struct {
	handlers map[string]ByteHandler
}

func (b *staticBundle) Handlers() map[string]ByteHandler {
	return b.handlers
}

// TimeRequest is the request of time_now.
type TimeRequest struct {
	// Location is an IANA zone name; empty means UTC.
	Location string `json:"location,omitempty"`
}

// TimeResponse is the response of time_now.
type TimeResponse struct {
	Time     string `json:"time"`
	UnixNano int64  `json:"unix_nano"`
}

// ClockBundle returns time_now. now may be nil for the wall clock.
func ClockBundle(now func() time.Time) HostFuncBundle {
	if now == nil {
		now = time.Now
	}
	return &staticBundle{handlers: map[string]ByteHandler{
		"time_now": NewJSONHandler(func(_ context.Context, req TimeRequest) (any, error) {
			loc := time.UTC
			if req.Location != "" {
				l, err := time.LoadLocation(req.Location)
				if err != nil {
					return NewValidationError(err.Error()), nil
				}
				loc = l
			}
			t := now().In(loc)
			return TimeResponse{Time: t.Format(time.RFC3339Nano), UnixNano: t.UnixNano()}, nil
		}),
	}}
}

// KVRequest is the request of the kv_* functions. Value is used by kv_put only.
type KVRequest struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// KVResponse is the response of the kv_* functions.
type KVResponse struct {
	Value string   `json:"value,omitempty"`
	Keys  []string `json:"keys,omitempty"`
	Found bool     `json:"found"`
}

// KVBundle returns kv_get, kv_put, kv_delete and kv_keys backed by store.
// The caller is identified by the plugin ID carried on the call context.
func KVBundle(store *KVStore) HostFuncBundle {
	caller := func(ctx context.Context) string {
		if hc, ok := ctx.(HostContext); ok {
			return hc.PluginID()
		}
		id, _ := ctx.Value(callerKey{}).(string)
		return id
	}
	requireKey := func(req KVRequest) *ErrorResponse {
		if req.Key == "" {
			e := NewValidationError("key is required")
			return &e
		}
		return nil
	}

	return &staticBundle{handlers: map[string]ByteHandler{
		"kv_get": NewJSONHandler(func(ctx context.Context, req KVRequest) (any, error) {
			if e := requireKey(req); e != nil {
				return e, nil
			}
			v, ok := store.Get(caller(ctx), req.Key)
			return KVResponse{Value: v, Found: ok}, nil
		}),
		"kv_put": NewJSONHandler(func(ctx context.Context, req KVRequest) (any, error) {
			if e := requireKey(req); e != nil {
				return e, nil
			}
			store.Put(caller(ctx), req.Key, req.Value)
			return KVResponse{Found: true}, nil
		}),
		"kv_delete": NewJSONHandler(func(ctx context.Context, req KVRequest) (any, error) {
			if e := requireKey(req); e != nil {
				return e, nil
			}
			return KVResponse{Found: store.Delete(caller(ctx), req.Key)}, nil
		}),
		"kv_keys": NewJSONHandler(func(ctx context.Context, _ struct{}) (KVResponse, error) {
			keys := store.Keys(caller(ctx))
			return KVResponse{Keys: keys, Found: len(keys) > 0}, nil
		}),
	}}
}

// HashRequest is the request of sha256.
type HashRequest struct {
	Data []byte `json:"data"`
}

// HashResponse is the response of sha256.
type HashResponse struct {
	Hex string `json:"hex"`
}

// HashBundle returns sha256.
func HashBundle() HostFuncBundle {
	return &staticBundle{handlers: map[string]ByteHandler{
		"sha256": NewJSONHandler(func(_ context.Context, req HashRequest) (HashResponse, error) {
			sum := sha256.Sum256(req.Data)
			return HashResponse{Hex: hex.EncodeToString(sum[:])}, nil
		}),
	}}
}

type compositeBundle struct {
	bundles []HostFuncBundle
}

func (b *compositeBundle) Handlers() map[string]ByteHandler {
	result := make(map[string]ByteHandler)
	for _, bundle := range b.bundles {
		maps.Copy(result, bundle.Handlers())
	}
	return result
}

// Combine merges bundles. A later bundle's handler replaces an earlier one of
// the same name.
func Combine(bundles ...HostFuncBundle) HostFuncBundle {
	return &compositeBundle{bundles: bundles}
}

// AllBundles returns every built-in bundle, with the kv functions backed by
// store. A nil store gets a fresh per-plugin store.
func AllBundles(store *KVStore) HostFuncBundle {
	if store == nil {
		store = NewKVStore()
	}
	return Combine(ClockBundle(nil), KVBundle(store), HashBundle())
}
