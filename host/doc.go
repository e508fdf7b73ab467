// Package host is the embedding API: it builds plugins from wasm modules or
// manifests, exposes Go functions to guest code, and calls guest exports.
//
// A Plugin serves one call at a time; CancelHandle is the one piece that may
// be used from another goroutine while a call is in flight. Host functions
// receive a CurrentPlugin scoped to the call that invoked them, through which
// they read and write plugin memory by offset.
//
//	fn := host.NewFunction("host_reflect",
//	    []entities.ValueKind{entities.ValueKindPtr},
//	    []entities.ValueKind{entities.ValueKindPtr},
//	    func(ctx context.Context, p *host.CurrentPlugin, in, out []entities.Value, _ any) error {
//	        s, err := p.InputString(in[0])
//	        if err != nil {
//	            return err
//	        }
//	        return p.SetReturn(out[0], []byte(s))
//	    })
//
//	plugin, err := host.NewPlugin(ctx, entities.ManifestFromPath("plugin.wasm"),
//	    host.WithFunctions(fn))
//	if err != nil {
//	    return err
//	}
//	defer plugin.Free(ctx)
//
//	out, err := plugin.Call(ctx, "reflect", []byte("hello"))
package host
