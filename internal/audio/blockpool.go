package audio

import "sync"

// BlockPool is a fixed-size slab allocator for raw PCM buffers, replacing
// the firmware's K_MEM_SLAB_DEFINE_STATIC with a pooled []byte of the same
// shape: callers Get a buffer, fill it, and Put it back once the recorder
// (or hardware) is done with it.
type BlockPool struct {
	blockSize int
	pool      sync.Pool
}

// NewBlockPool constructs a pool of blockSize-byte buffers.
func NewBlockPool(blockSize int) *BlockPool {
	return &BlockPool{
		blockSize: blockSize,
		pool: sync.Pool{
			New: func() any {
				return make([]byte, blockSize)
			},
		},
	}
}

// Get returns a blockSize-byte buffer, possibly reused.
func (p *BlockPool) Get() []byte {
	return p.pool.Get().([]byte)
}

// Put returns buf to the pool for reuse. buf must have come from Get and
// must not be retained by the caller afterward.
func (p *BlockPool) Put(buf []byte) {
	if cap(buf) != p.blockSize {
		return
	}
	p.pool.Put(buf[:p.blockSize])
}
