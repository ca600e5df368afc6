package transport

import "time"

// Default flush tuning: small enough to add no perceptible latency, large
// enough to amortise per-message transport overhead.
const (
	DefaultFlushFrames   = 3
	DefaultFlushInterval = 100 * time.Millisecond
)

// FlushBuffer accumulates encoded PCM frames and releases them as one
// concatenated payload when either the frame-count capacity is reached or
// the flush interval has elapsed since the last flush — whichever comes
// first. Frame order is preserved exactly; the buffer never reorders.
//
// Not safe for concurrent use; the session event loop is its only caller.
type FlushBuffer struct {
	capacity  int
	interval  time.Duration
	now       func() time.Time
	frames    [][]byte
	lastFlush time.Time
}

// NewFlushBuffer creates a buffer with the given frame capacity and flush
// interval. Zero values take the package defaults.
func NewFlushBuffer(capacity int, interval time.Duration) *FlushBuffer {
	if capacity <= 0 {
		capacity = DefaultFlushFrames
	}
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &FlushBuffer{
		capacity:  capacity,
		interval:  interval,
		now:       time.Now,
		lastFlush: time.Now(),
	}
}

// Add appends one encoded frame and returns a non-nil payload when the add
// triggered a flush. The payload is the concatenation of all buffered
// frames in arrival order.
func (b *FlushBuffer) Add(frame []byte) []byte {
	b.frames = append(b.frames, frame)
	if len(b.frames) >= b.capacity || b.now().Sub(b.lastFlush) >= b.interval {
		return b.Flush()
	}
	return nil
}

// FlushStale releases the buffered frames when the flush interval has
// elapsed since the last flush, or nil when the buffer is empty or still
// fresh. Callers on the frame path use it to ship an utterance tail that
// would otherwise wait for the next admitted frame.
func (b *FlushBuffer) FlushStale() []byte {
	if len(b.frames) == 0 || b.now().Sub(b.lastFlush) < b.interval {
		return nil
	}
	return b.Flush()
}

// Flush releases all buffered frames as one payload, or nil when empty.
func (b *FlushBuffer) Flush() []byte {
	b.lastFlush = b.now()
	if len(b.frames) == 0 {
		return nil
	}
	var total int
	for _, f := range b.frames {
		total += len(f)
	}
	out := make([]byte, 0, total)
	for _, f := range b.frames {
		out = append(out, f...)
	}
	b.frames = b.frames[:0]
	return out
}

// Len returns the number of buffered frames.
func (b *FlushBuffer) Len() int { return len(b.frames) }
