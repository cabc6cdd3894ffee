package analytics

import "math"

// slidingWindow keeps the last len(data) samples and their running sum.
type slidingWindow struct {
	data []float64
	head int

	length int
	sum    float64
}

func newSlidingWindow(capacity int) *slidingWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &slidingWindow{
		data: make([]float64, capacity),
	}
}

func (w *slidingWindow) push(n float64) {
	old := w.data[w.head]
	w.data[w.head] = n
	w.head = (w.head + 1) % len(w.data)
	if w.length < len(w.data) {
		w.length++
	} else {
		w.sum -= old
	}
	w.sum += n
}

func (w *slidingWindow) len() int {
	return w.length
}

func (w *slidingWindow) mean() float64 {
	if w.length == 0 {
		return 0
	}
	return w.sum / float64(w.length)
}

// stddev is the sample standard deviation, 0 below two samples.
func (w *slidingWindow) stddev() float64 {
	if w.length < 2 {
		return 0
	}
	mean := w.mean()
	sum := 0.0
	for i := 0; i < w.length; i++ {
		d := w.data[i] - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(w.length-1))
}
