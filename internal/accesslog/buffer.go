// Package accesslog buffers completed-request records and flushes them to
// an io.Writer in a single write syscall per flush rather than writing
// per-message. Flushing is triggered by buffer size, an interval timer, or
// explicit shutdown.
package accesslog

import (
	"bufio"
	"io"
	"sync"
	"time"

	"github.com/pagi-dev/pagi/internal/conn"
)

// Writer implements conn.AccessLogger, batching AccessRecords and rendering
// them with Format on flush.
type Writer struct {
	mu      sync.Mutex
	out     *bufio.Writer
	flusher io.Writer
	buf     []conn.AccessRecord

	maxBuffered   int
	flushInterval time.Duration

	timer    *time.Timer
	closed   bool
	stopOnce sync.Once
}

// New creates a Writer flushing to out. maxBuffered<=1 writes each record
// as soon as it is logged (unbuffered); flushInterval<=0 disables the
// timer-triggered flush.
func New(out io.Writer, maxBuffered int, flushInterval time.Duration) *Writer {
	w := &Writer{
		out:           bufio.NewWriter(out),
		maxBuffered:   maxBuffered,
		flushInterval: flushInterval,
	}
	if flushInterval > 0 {
		w.timer = time.AfterFunc(flushInterval, w.onTimer)
	}
	return w
}

// Log appends one record, flushing immediately if the buffer is full.
func (w *Writer) Log(rec conn.AccessRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.buf = append(w.buf, rec)
	if w.maxBuffered <= 1 || len(w.buf) >= w.maxBuffered {
		w.flushLocked()
	}
}

func (w *Writer) onTimer() {
	w.mu.Lock()
	if !w.closed {
		w.flushLocked()
		w.timer.Reset(w.flushInterval)
	}
	w.mu.Unlock()
}

// flushLocked renders the whole buffer into one byte slice and issues a
// single Write, so a burst of requests costs one syscall, not N.
func (w *Writer) flushLocked() {
	if len(w.buf) == 0 {
		return
	}
	var rendered []byte
	for _, rec := range w.buf {
		rendered = append(rendered, FormatLine(rec)...)
	}
	w.buf = w.buf[:0]
	_, _ = w.out.Write(rendered)
	_ = w.out.Flush()
}

// Close flushes any remaining records and stops the interval timer.
func (w *Writer) Close() error {
	w.stopOnce.Do(func() {
		if w.timer != nil {
			w.timer.Stop()
		}
	})
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushLocked()
	w.closed = true
	return w.out.Flush()
}
