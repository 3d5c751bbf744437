package fat

import "io"

// BlockStore is the entire disk image: a fixed number of fixed-size blocks
// backed by one contiguous arena.
type BlockStore struct {
	size  int
	arena []byte
}

// NewBlockStore returns a zeroed store of count blocks of size bytes.
func NewBlockStore(count, size int) *BlockStore {
	return &BlockStore{
		size:  size,
		arena: make([]byte, count*size),
	}
}

// Block returns block i. The capacity of the returned slice is capped, so
// appending to it cannot spill into the next block.
func (s *BlockStore) Block(i int) []byte {
	off := i * s.size
	return s.arena[off : off+s.size : off+s.size]
}

// Len returns the number of blocks.
func (s *BlockStore) Len() int { return len(s.arena) / s.size }

func (s *BlockStore) BlockSize() int { return s.size }

// Bytes returns the blocks concatenated in index order.
func (s *BlockStore) Bytes() []byte { return s.arena }

// WriteTo writes all blocks to w in index order.
func (s *BlockStore) WriteTo(w io.Writer) (int64, error) {
	var written int64
	for i := 0; i < s.Len(); i++ {
		n, err := w.Write(s.Block(i))
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
