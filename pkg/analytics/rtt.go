package analytics

import (
	"sync"
	"time"
)

// RTTStats tracks round-trip times: an exponentially weighted estimate plus
// the jitter over the most recent samples.
type RTTStats struct {
	mu       sync.Mutex
	weight   float64
	smoothed time.Duration
	samples  int
	window   *slidingWindow
}

// NewRTTStats weighs each new sample by weight (0 < weight <= 1) and measures
// jitter over the last windowSize samples.
func NewRTTStats(weight float64, windowSize int) *RTTStats {
	if weight <= 0 || weight > 1 {
		weight = 0.125
	}
	return &RTTStats{
		weight: weight,
		window: newSlidingWindow(windowSize),
	}
}

func (s *RTTStats) Add(rtt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window.push(float64(rtt))
	s.samples++
	if s.samples == 1 {
		s.smoothed = rtt
		return
	}
	s.smoothed = time.Duration(s.weight*float64(rtt) + (1-s.weight)*float64(s.smoothed))
}

// Smoothed is the current estimate; ok is false until the first sample.
func (s *RTTStats) Smoothed() (rtt time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.smoothed, s.samples > 0
}

func (s *RTTStats) Jitter() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.window.stddev())
}

func (s *RTTStats) Samples() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples
}
