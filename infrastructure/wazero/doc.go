// Package wazero is the plugin runtime built on the wazero WebAssembly engine.
//
// An Engine compiles manifests into instances. Each instance owns a wazero
// runtime with three kinds of imports linked in:
//
//   - the kernel module "extism:host/env", which gives guests an
//     offset-addressed memory shared with the host plus input, output,
//     config, variables, and logging
//   - one host module per user namespace, built from ports.Import values
//   - optionally WASI snapshot preview 1, with manifest allowed_paths mounted
//
// # Basic Usage
//
//	engine := wazero.NewEngine()
//	defer engine.Close(ctx)
//
//	inst, err := engine.Instantiate(ctx, wasmBytes, nil, false)
//	if err != nil {
//	    return err
//	}
//	rc, err := inst.Call(ctx, "count_vowels", []byte("hello"))
//	if err != nil || rc != 0 {
//	    return fmt.Errorf("call failed: %s", inst.LastError())
//	}
//	out := inst.Output()
//
// A call that is cancelled or times out closes the guest module. The next
// call instantiates it again from the compiled module, so guest globals are
// reset while plugin variables survive.
package wazero
