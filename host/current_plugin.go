package host

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/plugwire/plugwire-go/domain/entities"
	"github.com/plugwire/plugwire-go/domain/errors"
	"github.com/plugwire/plugwire-go/domain/ports"
)

// CurrentPlugin is the plugin executing the host function being invoked. It
// is valid only until that host function returns.
type CurrentPlugin struct {
	mem   ports.Memory
	id    string
	valid atomic.Bool
}

func newCurrentPlugin(id string, mem ports.Memory) *CurrentPlugin {
	p := &CurrentPlugin{id: id, mem: mem}
	p.valid.Store(true)
	return p
}

func (p *CurrentPlugin) invalidate() {
	p.valid.Store(false)
}

func (p *CurrentPlugin) memory() (ports.Memory, error) {
	if !p.valid.Load() {
		return nil, &errors.UseAfterFreeError{Resource: "current plugin", ID: p.id}
	}
	return p.mem, nil
}

// owns rejects blocks produced by another plugin.
func (p *CurrentPlugin) owns(b entities.MemoryBlock) error {
	if b.Owner != "" && b.Owner != p.id {
		return &errors.MisuseError{
			Op:     "memory access",
			Detail: fmt.Sprintf("block at offset %d belongs to plugin %s, not %s", b.Offset, b.Owner, p.id),
		}
	}
	return nil
}

// ID returns the plugin's ID.
func (p *CurrentPlugin) ID() string {
	return p.id
}

// Alloc reserves n bytes of plugin memory.
func (p *CurrentPlugin) Alloc(n uint64) (entities.MemoryBlock, error) {
	mem, err := p.memory()
	if err != nil {
		return entities.MemoryBlock{}, err
	}
	offset, err := mem.Alloc(n)
	if err != nil {
		return entities.MemoryBlock{}, err
	}
	return entities.MemoryBlock{Owner: p.id, Offset: offset, Length: n}, nil
}

// Free releases a block. Freeing it twice is a MisuseError.
func (p *CurrentPlugin) Free(b entities.MemoryBlock) error {
	mem, err := p.memory()
	if err != nil {
		return err
	}
	if err := p.owns(b); err != nil {
		return err
	}
	return mem.Free(b.Offset)
}

// MemoryAtOffset looks up the block starting at offset. A zero length is
// reported as NotFoundError since the runtime uses it for unknown offsets.
func (p *CurrentPlugin) MemoryAtOffset(offset uint64) (entities.MemoryBlock, error) {
	mem, err := p.memory()
	if err != nil {
		return entities.MemoryBlock{}, err
	}
	n := mem.Length(offset)
	if n == 0 {
		return entities.MemoryBlock{}, &errors.NotFoundError{Offset: offset}
	}
	return entities.MemoryBlock{Owner: p.id, Offset: offset, Length: n}, nil
}

// Read returns a copy of the block's bytes.
func (p *CurrentPlugin) Read(b entities.MemoryBlock) ([]byte, error) {
	mem, err := p.memory()
	if err != nil {
		return nil, err
	}
	if err := p.owns(b); err != nil {
		return nil, err
	}
	data, ok := mem.Read(b.Offset, b.Length)
	if !ok {
		return nil, &errors.MisuseError{Op: "read", Detail: fmt.Sprintf("%d bytes at offset %d are out of bounds", b.Length, b.Offset)}
	}
	return append([]byte(nil), data...), nil
}

// Write copies data into the block. data may not be longer than the block.
func (p *CurrentPlugin) Write(b entities.MemoryBlock, data []byte) error {
	mem, err := p.memory()
	if err != nil {
		return err
	}
	if err := p.owns(b); err != nil {
		return err
	}
	if uint64(len(data)) > b.Length {
		return &errors.MisuseError{Op: "write", Detail: fmt.Sprintf("%d bytes do not fit a block of %d", len(data), b.Length)}
	}
	if !mem.Write(b.Offset, data) {
		return &errors.MisuseError{Op: "write", Detail: fmt.Sprintf("offset %d is out of bounds", b.Offset)}
	}
	return nil
}

// InputBytes reads the block whose offset is held by v.
func (p *CurrentPlugin) InputBytes(v entities.Value) ([]byte, error) {
	offset, err := v.Offset()
	if err != nil {
		return nil, err
	}
	b, err := p.MemoryAtOffset(offset)
	if err != nil {
		return nil, err
	}
	return p.Read(b)
}

// InputString reads the block whose offset is held by v as a string.
func (p *CurrentPlugin) InputString(v entities.Value) (string, error) {
	b, err := p.InputBytes(v)
	return string(b), err
}

// InputJSON decodes the block whose offset is held by v into out.
func (p *CurrentPlugin) InputJSON(v entities.Value, out any) error {
	b, err := p.InputBytes(v)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("failed to decode input: %w", err)
	}
	return nil
}

// OutputBytes copies data into a new block and returns its offset. Empty data
// yields the null offset.
func (p *CurrentPlugin) OutputBytes(data []byte) (uint64, error) {
	if len(data) == 0 {
		if _, err := p.memory(); err != nil {
			return 0, err
		}
		return 0, nil
	}
	b, err := p.Alloc(uint64(len(data)))
	if err != nil {
		return 0, err
	}
	if err := p.Write(b, data); err != nil {
		return 0, err
	}
	return b.Offset, nil
}

// OutputString is OutputBytes for a string.
func (p *CurrentPlugin) OutputString(s string) (uint64, error) {
	return p.OutputBytes([]byte(s))
}

// OutputJSON encodes v as JSON into a new block and returns its offset.
func (p *CurrentPlugin) OutputJSON(v any) (uint64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("failed to encode output: %w", err)
	}
	return p.OutputBytes(data)
}

// SetReturn copies data into a new block and stores its offset in out, which
// must be an i64 slot.
func (p *CurrentPlugin) SetReturn(out entities.Value, data []byte) error {
	if err := out.SetI64(0); err != nil {
		return err
	}
	offset, err := p.OutputBytes(data)
	if err != nil {
		return err
	}
	return out.SetI64(int64(offset)) //nolint:gosec // G115: offsets are reinterpreted, not converted
}
