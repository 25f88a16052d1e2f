package fent

// Collator batches small sequential writes into a single block-sized buffer
// before they enter bufferred_blocks, so a string of tiny writes against
// the same block produces one dirty block instead of many redundant
// overwrites.
type Collator struct {
	blockSize uint32

	blockID uint64
	buf     []byte
	base    int64 // file offset of buf[0]
	dirty   bool
}

// NewCollator returns a Collator for the given block size.
func NewCollator(blockSize uint32) *Collator {
	return &Collator{blockSize: blockSize}
}

// blockIDFor returns the block a given file offset falls into.
func (c *Collator) blockIDFor(offset int64) uint64 {
	return uint64(offset / int64(c.blockSize))
}

// Write absorbs a write at the given file offset into the collator's
// buffer. If the write falls outside the currently buffered block, the
// currently buffered block is flushed to f first.
func (c *Collator) Write(f *File, offset int64, data []byte) {
	blockID := c.blockIDFor(offset)

	if c.dirty && blockID != c.blockID {
		c.Flush(f)
	}

	if !c.dirty {
		c.blockID = blockID
		c.base = int64(blockID) * int64(c.blockSize)
		c.buf = make([]byte, c.blockSize)
		c.dirty = true
	}

	start := offset - c.base
	if start < 0 || start >= int64(c.blockSize) {
		// Write doesn't align with the block we just opened; flush and
		// retry against a fresh block.
		c.Flush(f)
		c.Write(f, offset, data)
		return
	}

	copy(c.buf[start:], data)
}

// Flush pushes the currently buffered block into f.bufferred_blocks and
// resets the collator. The caller must hold f's write lock.
func (c *Collator) Flush(f *File) {
	if !c.dirty {
		return
	}
	f.BufferWrite(c.blockID, c.buf)
	c.dirty = false
	c.buf = nil
}

// Pending reports whether the collator currently holds unflushed bytes.
func (c *Collator) Pending() bool { return c.dirty }
