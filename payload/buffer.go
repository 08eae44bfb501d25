package payload

// Buffer owns payload bytes between the companion transfer and activation.
// Exactly one component holds it at a time; Release wipes and drops the
// backing array.
type Buffer struct {
	data []byte
}

// NewBuffer allocates a buffer of exactly n bytes.
func NewBuffer(n int) *Buffer {
	return &Buffer{data: make([]byte, n)}
}

// Bytes returns the payload without copying.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

func (b *Buffer) Cap() int {
	if b == nil {
		return 0
	}
	return cap(b.data)
}

func (b *Buffer) Empty() bool {
	return b.Len() == 0
}

// Release zeroes the payload and frees the backing storage.
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	clear(b.data)
	b.data = nil
}
