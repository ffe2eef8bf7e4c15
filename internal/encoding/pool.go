package encoding

import (
	"io"
	"log/slog"

	"github.com/klauspost/compress/flate"
)

// writerPool keeps DEFLATE writers around between encodes; building one
// allocates the full compressor state.
type writerPool struct {
	pool  chan *flate.Writer
	level int
}

func newWriterPool(size, level int) *writerPool {
	if size <= 0 {
		size = 4
	}
	return &writerPool{
		pool:  make(chan *flate.Writer, size),
		level: level,
	}
}

func (wp *writerPool) get(w io.Writer) (*flate.Writer, error) {
	select {
	case fw := <-wp.pool:
		fw.Reset(w)
		return fw, nil
	default:
		return flate.NewWriter(w, wp.level)
	}
}

func (wp *writerPool) put(fw *flate.Writer) {
	select {
	case wp.pool <- fw:
	default:
		slog.Debug("Compressor pool full, discarding writer")
	}
}
