package revdb

import "sync"

// writerBufPool recycles the backing arrays of Writers created with
// newWriterFromPool and handed back with Writer.Release.
var writerBufPool = &sync.Pool{
	New: func() any {
		buf := make([]byte, 0, DefaultWriterCapacity)
		return &buf
	},
}

func getWriterBuf() []byte {
	return (*writerBufPool.Get().(*[]byte))[:0]
}

func putWriterBuf(buf []byte) {
	writerBufPool.Put(&buf)
}
