package wire

import "sync"

// CHUNK_SIZE is the default payload size of a transfer frame and of copy buffers.
const CHUNK_SIZE = 32 * 1024

var bufPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, CHUNK_SIZE)
		return &b
	},
}

// GetChunk borrows a CHUNK_SIZE scratch slice. Return it with PutChunk.
func GetChunk() *[]byte { return bufPool.Get().(*[]byte) }

// PutChunk returns a slice obtained from GetChunk.
func PutChunk(b *[]byte) {
	if b == nil || cap(*b) < CHUNK_SIZE {
		return
	}
	*b = (*b)[:CHUNK_SIZE]
	bufPool.Put(b)
}
