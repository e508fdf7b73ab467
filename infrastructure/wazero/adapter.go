package wazero

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/plugwire/plugwire-go/domain/entities"
	"github.com/plugwire/plugwire-go/domain/errors"
	"github.com/plugwire/plugwire-go/domain/ports"
)

// valueType maps a value kind onto the wazero type used in host signatures.
// Only the numeric kinds host functions can read and write are accepted.
func valueType(k entities.ValueKind) (api.ValueType, error) {
	switch k {
	case entities.ValueKindI32:
		return api.ValueTypeI32, nil
	case entities.ValueKindI64:
		return api.ValueTypeI64, nil
	case entities.ValueKindF32:
		return api.ValueTypeF32, nil
	case entities.ValueKindF64:
		return api.ValueTypeF64, nil
	}
	return 0, &errors.UnsupportedValueTypeError{Kind: k.String()}
}

func valueTypes(kinds []entities.ValueKind) ([]api.ValueType, error) {
	out := make([]api.ValueType, len(kinds))
	for i, k := range kinds {
		t, err := valueType(k)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

// validateImports rejects the kernel namespace and imports declared twice
// with different signatures.
func validateImports(imports []ports.Import) error {
	seen := make(map[string]ports.Import, len(imports))
	for _, imp := range imports {
		if imp.Thunk == nil {
			return &errors.MisuseError{Op: "import", Detail: fmt.Sprintf("%s::%s has no implementation", imp.Namespace, imp.Name)}
		}
		if imp.Name == "" {
			return &errors.MisuseError{Op: "import", Detail: "empty function name"}
		}
		if imp.Namespace == KernelNamespace {
			return &errors.MisuseError{Op: "import", Detail: fmt.Sprintf("namespace %q is reserved for the kernel", KernelNamespace)}
		}
		key := imp.Namespace + "::" + imp.Name
		if prev, ok := seen[key]; ok {
			if !slices.Equal(prev.Params, imp.Params) || !slices.Equal(prev.Results, imp.Results) {
				return &errors.MisuseError{Op: "import", Detail: fmt.Sprintf("%s declared with conflicting signatures", key)}
			}
		}
		seen[key] = imp
	}
	return nil
}

// registerImports builds one host module per namespace. When a name is
// declared twice with the same signature the later declaration wins.
func registerImports(ctx context.Context, r wazero.Runtime, inst *Instance, imports []ports.Import) error {
	byNamespace := make(map[string][]ports.Import)
	index := make(map[string]int, len(imports))
	var order []string
	for _, imp := range imports {
		if _, ok := byNamespace[imp.Namespace]; !ok {
			order = append(order, imp.Namespace)
		}
		key := imp.Namespace + "::" + imp.Name
		if at, ok := index[key]; ok {
			byNamespace[imp.Namespace][at] = imp
			continue
		}
		index[key] = len(byNamespace[imp.Namespace])
		byNamespace[imp.Namespace] = append(byNamespace[imp.Namespace], imp)
	}

	for _, ns := range order {
		builder := r.NewHostModuleBuilder(ns)
		for _, imp := range byNamespace[ns] {
			params, err := valueTypes(imp.Params)
			if err != nil {
				return fmt.Errorf("import %s::%s: %w", ns, imp.Name, err)
			}
			results, err := valueTypes(imp.Results)
			if err != nil {
				return fmt.Errorf("import %s::%s: %w", ns, imp.Name, err)
			}
			builder.NewFunctionBuilder().
				WithGoModuleFunction(hostCall(inst, imp), params, results).
				Export(imp.Name)
		}
		if _, err := builder.Instantiate(ctx); err != nil {
			return fmt.Errorf("failed to instantiate host module %q: %w", ns, err)
		}
	}
	return nil
}

// hostCall wraps a thunk as a wazero host function. A failing thunk traps the
// guest; the error is kept on the instance so the caller sees its message.
func hostCall(inst *Instance, imp ports.Import) api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		if err := imp.Thunk(ctx, inst.mem, stack); err != nil {
			slog.DebugContext(ctx, "wazero: host function failed",
				"plugin", inst.id, "namespace", imp.Namespace, "function", imp.Name, "error", err)
			inst.recordHostError(&errors.HostFunctionError{Namespace: imp.Namespace, Function: imp.Name, Err: err})
			panic(err)
		}
	}
}
