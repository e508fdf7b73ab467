package wazero

import (
	"fmt"
	"sort"

	"github.com/plugwire/plugwire-go/domain/errors"
)

const (
	// blockAlign keeps every block start 8-byte aligned so u64 loads and
	// stores never straddle two blocks.
	blockAlign = 8

	// memoryBase is the first usable offset; offsets below it are null.
	memoryBase = blockAlign

	// maxKernelMemory caps the arena when no smaller limit is configured.
	maxKernelMemory uint64 = 4 << 30
)

type span struct {
	offset uint64
	size   uint64
}

// kernelMemory is the offset-addressed arena shared by host and guest. The
// guest reaches it through the kernel imports, the host through ports.Memory.
// It is owned by one instance and accessed from the goroutine running that
// instance's call.
type kernelMemory struct {
	blocks map[uint64]uint64 // offset -> requested length
	sizes  map[uint64]uint64 // offset -> aligned capacity
	data   []byte
	free   []span // sorted by offset
	limit  uint64
	used   uint64
}

func newKernelMemory(limit uint64) *kernelMemory {
	if limit == 0 || limit > maxKernelMemory {
		limit = maxKernelMemory
	}
	return &kernelMemory{
		blocks: make(map[uint64]uint64),
		sizes:  make(map[uint64]uint64),
		data:   make([]byte, memoryBase),
		limit:  limit,
	}
}

func alignUp(n uint64) uint64 {
	return (n + blockAlign - 1) &^ (blockAlign - 1)
}

// Alloc reserves n bytes. A zero-length request returns the null offset.
func (m *kernelMemory) Alloc(n uint64) (uint64, error) {
	if n == 0 {
		return 0, nil
	}
	size := alignUp(n)
	if size < n {
		return 0, &errors.AllocationError{Requested: n, Err: fmt.Errorf("size overflows")}
	}
	// used never exceeds limit, so limit-used cannot wrap.
	if size > m.limit-m.used {
		return 0, &errors.AllocationError{
			Requested: n,
			Err:       fmt.Errorf("limit of %d bytes reached (%d in use)", m.limit, m.used),
		}
	}

	offset, ok := m.takeFree(size)
	if !ok {
		offset = uint64(len(m.data))
		m.data = append(m.data, make([]byte, size)...)
	} else {
		clear(m.data[offset : offset+size])
	}

	m.blocks[offset] = n
	m.sizes[offset] = size
	m.used += size
	return offset, nil
}

// takeFree carves size bytes out of the first free span large enough.
func (m *kernelMemory) takeFree(size uint64) (uint64, bool) {
	for i, s := range m.free {
		if s.size < size {
			continue
		}
		if s.size == size {
			m.free = append(m.free[:i], m.free[i+1:]...)
		} else {
			m.free[i] = span{offset: s.offset + size, size: s.size - size}
		}
		return s.offset, true
	}
	return 0, false
}

// Free releases the block at offset and coalesces it with its neighbours.
func (m *kernelMemory) Free(offset uint64) error {
	size, ok := m.sizes[offset]
	if !ok {
		return &errors.MisuseError{Op: "free", Detail: fmt.Sprintf("no live block at offset %d", offset)}
	}
	delete(m.blocks, offset)
	delete(m.sizes, offset)
	m.used -= size

	i := sort.Search(len(m.free), func(i int) bool { return m.free[i].offset > offset })
	m.free = append(m.free, span{})
	copy(m.free[i+1:], m.free[i:])
	m.free[i] = span{offset: offset, size: size}

	if i+1 < len(m.free) && m.free[i].offset+m.free[i].size == m.free[i+1].offset {
		m.free[i].size += m.free[i+1].size
		m.free = append(m.free[:i+1], m.free[i+2:]...)
	}
	if i > 0 && m.free[i-1].offset+m.free[i-1].size == m.free[i].offset {
		m.free[i-1].size += m.free[i].size
		m.free = append(m.free[:i], m.free[i+1:]...)
	}
	return nil
}

// Length returns the requested length of the block at offset, zero if none.
func (m *kernelMemory) Length(offset uint64) uint64 {
	return m.blocks[offset]
}

// Read returns a view of n bytes at offset. The range must lie inside
// allocated memory.
func (m *kernelMemory) Read(offset, n uint64) ([]byte, bool) {
	if !m.inBounds(offset, n) {
		return nil, false
	}
	return m.data[offset : offset+n], true
}

// Write copies data to offset.
func (m *kernelMemory) Write(offset uint64, data []byte) bool {
	n := uint64(len(data))
	if !m.inBounds(offset, n) {
		return false
	}
	copy(m.data[offset:], data)
	return true
}

func (m *kernelMemory) inBounds(offset, n uint64) bool {
	if n == 0 {
		return offset <= uint64(len(m.data))
	}
	end := offset + n
	return offset >= memoryBase && end >= offset && end <= uint64(len(m.data))
}

// allocBytes allocates a block holding a copy of data.
func (m *kernelMemory) allocBytes(data []byte) (uint64, error) {
	offset, err := m.Alloc(uint64(len(data)))
	if err != nil {
		return 0, err
	}
	if offset != 0 {
		m.Write(offset, data)
	}
	return offset, nil
}

// bytesAt returns the contents of the block starting at offset.
func (m *kernelMemory) bytesAt(offset uint64) ([]byte, bool) {
	n, ok := m.blocks[offset]
	if !ok {
		return nil, offset == 0
	}
	return m.Read(offset, n)
}

// reset drops every block, keeping the backing array for reuse.
func (m *kernelMemory) reset() {
	clear(m.blocks)
	clear(m.sizes)
	m.free = m.free[:0]
	m.data = m.data[:memoryBase]
	m.used = 0
}
