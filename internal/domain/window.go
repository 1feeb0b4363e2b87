package domain

import "fmt"

// DigitWindow is a fixed-capacity FIFO of the most recent digits.
// It is owned by a single session and is not safe for concurrent use.
type DigitWindow struct {
	buf       []Digit
	head      int // index of the oldest digit
	size      int
	precision int
}

// NewDigitWindow creates an empty window.
func NewDigitWindow(capacity, precision int) (*DigitWindow, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: window size must be positive, got %d", ErrInvalidConfig, capacity)
	}
	if precision < 0 {
		return nil, fmt.Errorf("%w: precision must be >= 0, got %d", ErrInvalidConfig, precision)
	}
	return &DigitWindow{buf: make([]Digit, capacity), precision: precision}, nil
}

// Push extracts the tick's digit and appends it, evicting the oldest digit
// when full. A malformed tick leaves the window untouched.
func (w *DigitWindow) Push(t Tick) (Digit, error) {
	d, err := t.DigitOf(w.precision)
	if err != nil {
		return 0, err
	}
	if err := w.PushDigit(d); err != nil {
		return 0, err
	}
	return d, nil
}

// PushDigit appends an already extracted digit. Values outside 0-9 are
// rejected and leave the window untouched.
func (w *DigitWindow) PushDigit(d Digit) error {
	if !d.Valid() {
		return fmt.Errorf("%w: digit %d out of range", ErrMalformedTick, d)
	}
	if w.size < len(w.buf) {
		w.buf[(w.head+w.size)%len(w.buf)] = d
		w.size++
		return nil
	}
	w.buf[w.head] = d
	w.head = (w.head + 1) % len(w.buf)
	return nil
}

// Snapshot returns the digits oldest first. The slice is a copy.
func (w *DigitWindow) Snapshot() []Digit {
	out := make([]Digit, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}

// Len is the number of digits currently held.
func (w *DigitWindow) Len() int { return w.size }

// Cap is the configured capacity.
func (w *DigitWindow) Cap() int { return len(w.buf) }

// Full reports whether the window reached capacity.
func (w *DigitWindow) Full() bool { return w.size == len(w.buf) }

// Precision is the number of decimals used for digit extraction.
func (w *DigitWindow) Precision() int { return w.precision }

// Reset empties the window.
func (w *DigitWindow) Reset() {
	w.head = 0
	w.size = 0
}
