package audio

import "sync/atomic"

// ringBufferCapacityFrames sizes RingBuffer for roughly a quarter second of
// audio at the APU's default 44.1kHz host sample rate, enough slack for a
// consumer goroutine to fall behind a scheduler hiccup without the producer
// blocking.
const ringBufferCapacityFrames = 11025

// RingBuffer is a fixed-capacity single-producer/single-consumer queue of
// stereo sample frames. The APU is the sole producer (from Tick, on
// whichever goroutine drives emulation); a frontend or test is the sole
// consumer. head/tail are only ever advanced by their respective side, so
// atomic loads/stores are enough to make this safe without a mutex.
type RingBuffer struct {
	frames [][2]float32
	head   atomic.Uint64 // next slot the producer will write
	tail   atomic.Uint64 // next slot the consumer will read
}

// NewRingBuffer allocates a ring buffer holding up to capacity stereo frames.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer{frames: make([][2]float32, capacity)}
}

// Push enqueues a frame, overwriting the oldest unread frame if the buffer is
// full. Reports whether a frame had to be dropped.
func (r *RingBuffer) Push(frame [2]float32) (dropped bool) {
	head := r.head.Load()
	tail := r.tail.Load()
	cap := uint64(len(r.frames))

	if head-tail >= cap {
		// full: advance tail to drop the oldest frame rather than block,
		// the APU must never stall waiting on a slow consumer.
		r.tail.Store(tail + 1)
		dropped = true
	}

	r.frames[head%cap] = frame
	r.head.Store(head + 1)
	return dropped
}

// Pop dequeues the oldest unread frame. Reports false if the buffer is empty.
func (r *RingBuffer) Pop() ([2]float32, bool) {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail >= head {
		return [2]float32{}, false
	}
	frame := r.frames[tail%uint64(len(r.frames))]
	r.tail.Store(tail + 1)
	return frame, true
}

// Len reports the number of unread frames currently queued.
func (r *RingBuffer) Len() int {
	head := r.head.Load()
	tail := r.tail.Load()
	if head <= tail {
		return 0
	}
	return int(head - tail)
}
