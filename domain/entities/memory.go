package entities

// MemoryBlock is a logical reference into a plugin's memory. Offset is
// relative to the plugin that produced the block, never a host address.
type MemoryBlock struct {
	// Owner is the ID of the plugin the block belongs to.
	Owner  string `json:"owner,omitempty"`
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
}

// IsNull reports whether the block points at the null offset.
func (b MemoryBlock) IsNull() bool {
	return b.Offset == 0
}

// End returns the offset one past the last byte of the block.
func (b MemoryBlock) End() uint64 {
	return b.Offset + b.Length
}
