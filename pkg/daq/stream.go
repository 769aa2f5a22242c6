package daq

import (
	"bytes"
	"io"
	"sync"
)

// DefaultStreamLimit is the default acquisition buffer size in bytes.
const DefaultStreamLimit = 1 << 20

// streamBuffer is the software equivalent of a kernel acquisition buffer:
// the producer appends scans, readers block until bytes are available.
// Exceeding the limit ends the acquisition with ErrBufferOverflow.
type streamBuffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    bytes.Buffer
	limit  int
	closed bool
	err    error
}

func newStreamBuffer(limit int) *streamBuffer {
	if limit <= 0 {
		limit = DefaultStreamLimit
	}
	sb := &streamBuffer{limit: limit}
	sb.cond = sync.NewCond(&sb.mu)
	return sb
}

// Write appends data. Writes after close are discarded.
func (sb *streamBuffer) Write(p []byte) (int, error) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.closed {
		return 0, io.ErrClosedPipe
	}
	if sb.buf.Len()+len(p) > sb.limit {
		sb.closed = true
		sb.err = ErrBufferOverflow
		sb.cond.Broadcast()
		return 0, ErrBufferOverflow
	}

	sb.buf.Write(p)
	sb.cond.Broadcast()
	return len(p), nil
}

// Read blocks until data is available or the stream has ended. Buffered data is
// drained before the end-of-stream error is reported.
func (sb *streamBuffer) Read(p []byte) (int, error) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	for sb.buf.Len() == 0 && !sb.closed {
		sb.cond.Wait()
	}
	if sb.buf.Len() == 0 {
		if sb.err != nil {
			return 0, sb.err
		}
		return 0, io.EOF
	}
	return sb.buf.Read(p)
}

// Len returns the number of buffered bytes.
func (sb *streamBuffer) Len() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.buf.Len()
}

// CloseWithError ends the stream. A nil error reads as io.EOF.
func (sb *streamBuffer) CloseWithError(err error) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if sb.closed {
		return
	}
	sb.closed = true
	sb.err = err
	sb.cond.Broadcast()
}

// Close ends the stream with io.EOF for readers.
func (sb *streamBuffer) Close() error {
	sb.CloseWithError(nil)
	return nil
}
