package monitor

// RingBuffer is a fixed-capacity buffer of float64 samples. Once full, each
// new sample overwrites the oldest one.
type RingBuffer struct {
	data []float64
	next int
}

func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{data: make([]float64, 0, capacity)}
}

// Add appends a sample, overwriting the oldest when at capacity.
func (r *RingBuffer) Add(v float64) {
	if len(r.data) < cap(r.data) {
		r.data = append(r.data, v)
		return
	}
	r.data[r.next] = v
	r.next = (r.next + 1) % cap(r.data)
}

// Len returns the number of stored samples.
func (r *RingBuffer) Len() int {
	return len(r.data)
}

// Values returns a copy of the stored samples. Order is unspecified; callers
// that need order sort the copy themselves.
func (r *RingBuffer) Values() []float64 {
	out := make([]float64, len(r.data))
	copy(out, r.data)
	return out
}

// Mean returns the arithmetic mean of stored samples, 0 when empty.
func (r *RingBuffer) Mean() float64 {
	if len(r.data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range r.data {
		sum += v
	}
	return sum / float64(len(r.data))
}
