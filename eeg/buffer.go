package eeg

// SampleBuffer is a fixed-capacity ring buffer of raw samples for one
// channel. Appends keep arrival order and evict from the front once the
// buffer is full; nothing else mutates it. Capacity must be at least the
// largest consumer's window (trace display, 2x FFT window); sizing it
// smaller silently starves downstream computation, so callers validate
// capacity at construction time.
type SampleBuffer struct {
	data []float64
	head int // index of the oldest sample
	size int
}

// NewSampleBuffer creates a buffer holding at most capacity samples.
func NewSampleBuffer(capacity int) *SampleBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &SampleBuffer{data: make([]float64, capacity)}
}

// Append adds samples in arrival order, dropping the oldest entries once the
// buffer exceeds capacity.
func (b *SampleBuffer) Append(samples []float64) {
	capacity := len(b.data)

	// If the incoming batch alone exceeds capacity only its tail survives.
	if len(samples) >= capacity {
		copy(b.data, samples[len(samples)-capacity:])
		b.head = 0
		b.size = capacity
		return
	}

	for _, s := range samples {
		idx := (b.head + b.size) % capacity
		b.data[idx] = s
		if b.size < capacity {
			b.size++
		} else {
			// Overwrote the oldest sample; advance the head.
			b.head = (b.head + 1) % capacity
		}
	}
}

// Len returns the number of buffered samples.
func (b *SampleBuffer) Len() int {
	return b.size
}

// Cap returns the buffer capacity.
func (b *SampleBuffer) Cap() int {
	return len(b.data)
}

// Tail returns a copy of the most recent n samples in temporal order, or nil
// if fewer than n samples are buffered.
func (b *SampleBuffer) Tail(n int) []float64 {
	if n <= 0 || n > b.size {
		return nil
	}
	out := make([]float64, n)
	start := b.size - n
	for i := 0; i < n; i++ {
		out[i] = b.data[(b.head+start+i)%len(b.data)]
	}
	return out
}

// Samples returns a copy of the entire buffer contents in temporal order.
func (b *SampleBuffer) Samples() []float64 {
	out := make([]float64, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.data[(b.head+i)%len(b.data)]
	}
	return out
}

// Clear empties the buffer. Used on sensor disconnect; the channel identity
// survives for the session.
func (b *SampleBuffer) Clear() {
	b.head = 0
	b.size = 0
}
