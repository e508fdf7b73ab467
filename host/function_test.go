package host_test

import (
	"context"
	"encoding/binary"
	"math"
	"strings"

	"github.com/plugwire/plugwire-go/domain/entities"
	"github.com/plugwire/plugwire-go/domain/errors"
	"github.com/plugwire/plugwire-go/host"
	"github.com/plugwire/plugwire-go/internal/testutil"
)

func (s *PluginSuite) TestFunctionSignature() {
	f := host.NewFunction("host_reflect", ptr, ptr, appendUserData, host.WithNamespace("custom"))
	s.Equal("host_reflect", f.Name())
	s.Equal("custom", f.Namespace())

	sig := f.Signature()
	sig.Params[0] = entities.ValueKindF32
	s.Equal(entities.ValueKindI64, f.Signature().Params[0])

	s.Equal(host.DefaultNamespace, host.NewFunction("x", nil, nil, appendUserData).Namespace())
}

func (s *PluginSuite) TestNamespaceMustMatchGuestImport() {
	f := host.NewFunction("host_reflect", ptr, ptr, appendUserData, host.WithNamespace("elsewhere"))
	_, err := host.NewPlugin(s.ctx, host.WasmBytes(testutil.Wasm(s.T(), testutil.ReflectModule)), s.opts(host.WithFunctions(f))...)
	testutil.RequireErrorAs[*errors.PluginCreationError](s.T(), err)
}

func (s *PluginSuite) TestFunctionFree() {
	var freed []any
	f := host.NewFunction("host_reflect", ptr, ptr, appendUserData,
		host.WithUserData("data"),
		host.WithOnFree(func(v any) { freed = append(freed, v) }))

	p, err := host.NewPlugin(s.ctx, host.WasmBytes(testutil.Wasm(s.T(), testutil.ReflectModule)), s.opts(host.WithFunctions(f))...)
	s.Require().NoError(err)

	f.Free()
	f.Free()
	s.True(f.Freed())
	s.Equal([]any{"data"}, freed)

	// Already linked plugins keep the function.
	out, err := p.Call(s.ctx, "reflect", []byte("still"))
	s.Require().NoError(err)
	s.Equal("stilldata", string(out))

	_, err = host.NewPlugin(s.ctx, host.WasmBytes(testutil.Wasm(s.T(), testutil.ReflectModule)), s.opts(host.WithFunctions(f))...)
	testutil.RequireErrorAs[*errors.PluginCreationError](s.T(), err)
	s.True(errors.IsUseAfterFree(err))
}

func (s *PluginSuite) TestSharedFunction() {
	f := host.NewFunction("host_reflect", ptr, ptr, appendUserData, host.WithUserData("!"))
	for range 3 {
		p, err := host.NewPlugin(s.ctx, host.WasmBytes(testutil.Wasm(s.T(), testutil.ReflectModule)), s.opts(host.WithFunctions(f))...)
		s.Require().NoError(err)
		out, err := p.Call(s.ctx, "reflect", []byte("hi"))
		s.Require().NoError(err)
		s.Equal("hi!", string(out))
		s.Require().NoError(p.Free(s.ctx))
	}
}

func (s *PluginSuite) TestValueKinds() {
	var kindErr, unsupported error
	scale := host.NewFunction("scale",
		[]entities.ValueKind{entities.ValueKindI32, entities.ValueKindI64, entities.ValueKindF32, entities.ValueKindF64},
		[]entities.ValueKind{entities.ValueKindF64},
		func(_ context.Context, _ *host.CurrentPlugin, in, out []entities.Value, _ any) error {
			a, err := in[0].I32()
			if err != nil {
				return err
			}
			b, err := in[1].I64()
			if err != nil {
				return err
			}
			c, err := in[2].F32()
			if err != nil {
				return err
			}
			d, err := in[3].F64()
			if err != nil {
				return err
			}
			_, kindErr = in[0].F64()
			unsupported = entities.NewValue(entities.ValueKindV128, new(uint64)).Set(1)
			return out[0].Set(float64(a) * float64(b) * float64(c) * d)
		})

	p, err := host.NewPlugin(s.ctx, host.WasmBytes(testutil.Wasm(s.T(), testutil.KindsModule)), s.opts(host.WithFunctions(scale))...)
	s.Require().NoError(err)

	out, err := p.Call(s.ctx, "kinds", nil)
	s.Require().NoError(err)
	s.Require().Len(out, 8)
	s.InDelta(30.0, math.Float64frombits(binary.LittleEndian.Uint64(out)), 1e-9)

	testutil.RequireErrorAs[*errors.InvalidValueTypeError](s.T(), kindErr)
	testutil.RequireErrorAs[*errors.UnsupportedValueTypeError](s.T(), unsupported)
}

func (s *PluginSuite) TestUnsupportedKindInSignature() {
	wasm := host.WasmBytes(testutil.Wasm(s.T(), testutil.ReflectModule))
	for _, kind := range []entities.ValueKind{entities.ValueKindV128, entities.ValueKindFuncRef, entities.ValueKindExternRef} {
		s.Run(kind.String(), func() {
			params := host.NewFunction("host_reflect", []entities.ValueKind{kind}, ptr, appendUserData)
			_, err := host.NewPlugin(s.ctx, wasm, s.opts(host.WithFunctions(params))...)
			unsupported := testutil.RequireErrorAs[*errors.UnsupportedValueTypeError](s.T(), err)
			s.Equal(kind.String(), unsupported.Kind)

			results := host.NewFunction("host_reflect", ptr, []entities.ValueKind{kind}, appendUserData)
			_, err = host.NewPlugin(s.ctx, wasm, s.opts(host.WithFunctions(results))...)
			testutil.RequireErrorAs[*errors.UnsupportedValueTypeError](s.T(), err)
		})
	}
	s.Zero(s.registry.Len())
}

func (s *PluginSuite) TestCurrentPluginMemory() {
	type observed struct {
		id            string
		allocated     entities.MemoryBlock
		resolved      entities.MemoryBlock
		readBack      string
		overflow      error
		huge          error
		doubleFree    error
		unknown       error
		empty         error
		foreign       error
		afterFreeRead error
	}
	var got observed
	var retained *host.CurrentPlugin

	p := s.reflect(func(_ context.Context, cp *host.CurrentPlugin, in, out []entities.Value, _ any) error {
		retained = cp
		got.id = cp.ID()

		b, err := cp.Alloc(5)
		if err != nil {
			return err
		}
		got.allocated = b
		if err := cp.Write(b, []byte("hello")); err != nil {
			return err
		}
		got.overflow = cp.Write(b, []byte("too long"))
		_, got.huge = cp.Alloc(1 << 62)

		if got.resolved, err = cp.MemoryAtOffset(b.Offset); err != nil {
			return err
		}
		data, err := cp.Read(got.resolved)
		if err != nil {
			return err
		}
		got.readBack = string(data)

		if err := cp.Free(b); err != nil {
			return err
		}
		got.doubleFree = cp.Free(b)
		_, got.unknown = cp.MemoryAtOffset(1 << 40)

		zero, err := cp.Alloc(0)
		if err != nil {
			return err
		}
		_, got.empty = cp.MemoryAtOffset(zero.Offset)

		foreign := got.resolved
		foreign.Owner = "someone-else"
		_, got.foreign = cp.Read(foreign)

		input, err := cp.InputBytes(in[0])
		if err != nil {
			return err
		}
		return cp.SetReturn(out[0], input)
	})

	out, err := p.Call(s.ctx, "reflect", []byte("payload"))
	s.Require().NoError(err)
	s.Equal("payload", string(out))

	s.Equal(p.ID(), got.id)
	s.Equal(uint64(5), got.allocated.Length)
	s.Equal(got.allocated, got.resolved)
	s.Equal("hello", got.readBack)
	testutil.RequireErrorAs[*errors.MisuseError](s.T(), got.overflow)
	testutil.RequireErrorAs[*errors.AllocationError](s.T(), got.huge)
	testutil.RequireErrorAs[*errors.MisuseError](s.T(), got.doubleFree)
	testutil.RequireErrorAs[*errors.NotFoundError](s.T(), got.unknown)
	testutil.RequireErrorAs[*errors.NotFoundError](s.T(), got.empty)
	testutil.RequireErrorAs[*errors.MisuseError](s.T(), got.foreign)

	// The handle is scoped to the host function call.
	s.Require().NotNil(retained)
	_, err = retained.Alloc(1)
	s.True(errors.IsUseAfterFree(err))
	_, err = retained.MemoryAtOffset(got.allocated.Offset)
	s.True(errors.IsUseAfterFree(err))
}

func (s *PluginSuite) TestJSONHelpers() {
	type message struct {
		Text  string `json:"text"`
		Count int    `json:"count"`
	}
	p := s.reflect(func(_ context.Context, cp *host.CurrentPlugin, in, out []entities.Value, _ any) error {
		var m message
		if err := cp.InputJSON(in[0], &m); err != nil {
			return err
		}
		m.Count++
		offset, err := cp.OutputJSON(m)
		if err != nil {
			return err
		}
		return out[0].SetI64(int64(offset)) //nolint:gosec // G115: test offsets are small
	})

	out, err := p.Call(s.ctx, "reflect", []byte(`{"text":"hi","count":1}`))
	s.Require().NoError(err)
	s.JSONEq(`{"text":"hi","count":2}`, string(out))

	_, err = p.Call(s.ctx, "reflect", []byte(`not json`))
	callErr := testutil.RequireErrorAs[*errors.CallError](s.T(), err)
	s.Contains(callErr.Message, "failed to decode input")
}

func (s *PluginSuite) TestStringHelpers() {
	p := s.reflect(func(_ context.Context, cp *host.CurrentPlugin, in, out []entities.Value, _ any) error {
		offset, err := in[0].Offset()
		if err != nil {
			return err
		}
		if offset == 0 {
			offset, err = cp.OutputBytes(nil)
		} else {
			var text string
			if text, err = cp.InputString(in[0]); err != nil {
				return err
			}
			offset, err = cp.OutputString(strings.ToUpper(text))
		}
		if err != nil {
			return err
		}
		return out[0].Set(offset)
	})

	out, err := p.Call(s.ctx, "reflect", []byte("shout"))
	s.Require().NoError(err)
	s.Equal("SHOUT", string(out))

	out, err = p.Call(s.ctx, "reflect", nil)
	s.Require().NoError(err)
	s.Empty(out)
}
