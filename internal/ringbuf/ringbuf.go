package ringbuf

// RingBuf is a fixed capacity queue.
// Push overwrites the oldest element once the buffer is full.
type RingBuf[T any] struct {
	buf        []T
	head, tail int
}

func New[T any](n int) RingBuf[T] {
	return RingBuf[T]{buf: make([]T, n)}
}

func (rb *RingBuf[T]) MaxLen() int {
	return len(rb.buf)
}

// Push appends val, dropping the oldest element if the buffer is full.
func (rb *RingBuf[T]) Push(val T) {
	if len(rb.buf) == 0 {
		return
	}
	if rb.Len() == len(rb.buf) {
		rb.head++
	}
	rb.buf[rb.tail%len(rb.buf)] = val
	rb.tail++
}

func (rb *RingBuf[T]) PopFront() T {
	val := rb.At(0)
	rb.head++
	return val
}

// At returns the i-th oldest element.
func (rb *RingBuf[T]) At(i int) T {
	if i < 0 || i >= rb.Len() {
		panic(i)
	}
	return rb.buf[(rb.head+i)%len(rb.buf)]
}

func (rb *RingBuf[T]) Len() int {
	return rb.tail - rb.head
}

// Slice appends the elements, oldest first, to out.
func (rb *RingBuf[T]) Slice(out []T) []T {
	for i := 0; i < rb.Len(); i++ {
		out = append(out, rb.At(i))
	}
	return out
}

func (rb *RingBuf[T]) Reset() {
	rb.head, rb.tail = 0, 0
	clear(rb.buf)
}
