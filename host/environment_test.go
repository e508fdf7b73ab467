package host_test

import (
	"context"
	"strings"

	"github.com/plugwire/plugwire-go/domain/entities"
	"github.com/plugwire/plugwire-go/host"
	"github.com/plugwire/plugwire-go/hostfuncs"
	"github.com/plugwire/plugwire-go/internal/testutil"
)

// shouter is a capability object whose methods are bound by name.
type shouter struct {
	calls int
}

func (c *shouter) HostReflect(_ context.Context, p *host.CurrentPlugin, in, out []entities.Value) error {
	c.calls++
	s, err := p.InputString(in[0])
	if err != nil {
		return err
	}
	return p.SetReturn(out[0], []byte(strings.ToUpper(s)))
}

func (c *shouter) WrongShape(string) error { return nil }

func reflectSig() host.Signature {
	return host.Signature{Name: "host_reflect", Params: ptr, Results: ptr}
}

func (s *PluginSuite) TestEnvironmentBindMethods() {
	obj := &shouter{}
	env := host.NewEnvironment("")
	s.Require().NoError(env.BindMethods(obj, reflectSig()))

	fns, err := env.Functions()
	s.Require().NoError(err)
	s.Require().Len(fns, 1)
	s.Equal(host.DefaultNamespace, fns[0].Namespace())

	p, err := host.NewPlugin(s.ctx, host.WasmBytes(testutil.Wasm(s.T(), testutil.ReflectModule)), s.opts(host.WithEnvironment(env))...)
	s.Require().NoError(err)
	out, err := p.Call(s.ctx, "reflect", []byte("quiet"))
	s.Require().NoError(err)
	s.Equal("QUIET", string(out))
	s.Equal(1, obj.calls)
}

func (s *PluginSuite) TestEnvironmentErrors() {
	s.Run("unknown name", func() {
		env := host.NewEnvironment("")
		s.ErrorContains(env.Bind("nope", appendUserData), "not declared")
	})
	s.Run("double declare", func() {
		env := host.NewEnvironment("")
		s.Require().NoError(env.Declare(reflectSig()))
		s.ErrorContains(env.Declare(reflectSig()), "already declared")
	})
	s.Run("double bind", func() {
		env := host.NewEnvironment("")
		s.Require().NoError(env.Declare(reflectSig()))
		s.Require().NoError(env.Bind("host_reflect", appendUserData))
		s.ErrorContains(env.Bind("host_reflect", appendUserData), "already bound")
	})
	s.Run("unbound declaration", func() {
		env := host.NewEnvironment("")
		s.Require().NoError(env.Declare(reflectSig()))
		_, err := env.Functions()
		s.ErrorContains(err, "declared but not bound")

		_, err = host.NewPlugin(s.ctx, host.WasmBytes(testutil.Wasm(s.T(), testutil.ReflectModule)), s.opts(host.WithEnvironment(env))...)
		s.Error(err)
	})
	s.Run("invalid kind", func() {
		env := host.NewEnvironment("")
		s.ErrorContains(env.Declare(host.Signature{Name: "x", Params: []entities.ValueKind{99}}), "invalid value kind")
	})
	s.Run("missing method", func() {
		env := host.NewEnvironment("")
		s.ErrorContains(env.BindMethods(&shouter{}, host.Signature{Name: "no_such_thing"}), "has no method NoSuchThing")
	})
	s.Run("wrong method type", func() {
		env := host.NewEnvironment("")
		s.ErrorContains(env.BindMethods(&shouter{}, host.Signature{Name: "wrong_shape"}), "method WrongShape has type")
	})
}

func (s *PluginSuite) TestEnvironmentDeclarationOrder() {
	env := host.NewEnvironment("custom")
	for _, name := range []string{"c", "a", "b"} {
		s.Require().NoError(env.Declare(host.Signature{Name: name}))
		s.Require().NoError(env.Bind(name, appendUserData))
	}
	fns, err := env.Functions()
	s.Require().NoError(err)
	names := make([]string, len(fns))
	for i, f := range fns {
		names[i] = f.Name()
		s.Equal("custom", f.Namespace())
	}
	s.Equal([]string{"c", "a", "b"}, names)
}

func (s *PluginSuite) TestFromRegistry() {
	var caller string
	reg, err := hostfuncs.NewRegistry(
		hostfuncs.WithMiddleware(hostfuncs.PanicRecoveryMiddleware()),
		hostfuncs.WithByteHandler("host_reflect", func(ctx context.Context, payload []byte) ([]byte, error) {
			caller = ctx.(hostfuncs.HostContext).PluginID()
			return append([]byte("registry:"), payload...), nil
		}),
	)
	s.Require().NoError(err)

	p, err := host.NewPlugin(s.ctx, host.WasmBytes(testutil.Wasm(s.T(), testutil.ReflectModule)),
		s.opts(host.WithEnvironment(host.FromRegistry(reg)))...)
	s.Require().NoError(err)

	out, err := p.Call(s.ctx, "reflect", []byte("ping"))
	s.Require().NoError(err)
	s.Equal("registry:ping", string(out))
	s.Equal(p.ID(), caller)
}

func (s *PluginSuite) TestFromRegistryBundles() {
	reg, err := hostfuncs.NewRegistry(
		hostfuncs.WithHandler("host_reflect", func(_ context.Context, req hostfuncs.HashRequest) (hostfuncs.HashResponse, error) {
			return hostfuncs.HashResponse{Hex: string(req.Data)}, nil
		}),
	)
	s.Require().NoError(err)

	p, err := host.NewPlugin(s.ctx, host.WasmBytes(testutil.Wasm(s.T(), testutil.ReflectModule)),
		s.opts(host.WithEnvironment(host.FromRegistry(reg)))...)
	s.Require().NoError(err)

	out, err := p.Call(s.ctx, "reflect", []byte(`{"data":"aGk="}`))
	s.Require().NoError(err)
	s.JSONEq(`{"hex":"hi"}`, string(out))

	out, err = p.Call(s.ctx, "reflect", []byte(`{broken`))
	s.Require().NoError(err)
	resp, ok := hostfuncs.IsErrorResponse(out)
	s.Require().True(ok)
	s.Equal("VALIDATION_ERROR", resp.Error)
}
