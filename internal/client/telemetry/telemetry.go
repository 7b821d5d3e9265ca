// Package telemetry derives percentage, speed and ETA from progress samples.
package telemetry

import (
	"math"
	"sync"
	"time"
)

// Sample is a point-in-time byte count.
type Sample struct {
	Bytes int64
	At    time.Time
}

type Stats struct {
	Percentage int
	Speed      float64 // bytes per second
	ETASeconds float64 // -1 when unknown
}

// UnknownETA marks an ETA that cannot be estimated.
const UnknownETA = -1

// Percentage is round(100*b/total), 0 when total is 0.
func Percentage(b, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(b) / float64(total)))
}

// Compute derives stats for next given the previous sample. Speed is 0 when
// no time elapsed; ETA is unknown when speed is not positive and finite.
func Compute(prev, next Sample, total int64) Stats {
	s := Stats{Percentage: Percentage(next.Bytes, total), ETASeconds: UnknownETA}

	dt := next.At.Sub(prev.At).Seconds()
	if dt <= 0 {
		return s
	}
	s.Speed = float64(next.Bytes-prev.Bytes) / dt

	if s.Speed > 0 && !math.IsInf(s.Speed, 0) && !math.IsNaN(s.Speed) {
		remaining := total - next.Bytes
		if remaining < 0 {
			remaining = 0
		}
		s.ETASeconds = float64(remaining) / s.Speed
	}
	return s
}

// Calculator keeps the last sample per task.
type Calculator struct {
	mu   sync.Mutex
	last map[string]Sample
}

func NewCalculator() *Calculator {
	return &Calculator{last: make(map[string]Sample)}
}

// Observe records next for taskID and returns stats against the previous
// sample. The first observation has no speed.
func (c *Calculator) Observe(taskID string, next Sample, total int64) Stats {
	c.mu.Lock()
	prev, ok := c.last[taskID]
	c.last[taskID] = next
	c.mu.Unlock()

	if !ok || next.Bytes < prev.Bytes {
		prev = next
	}
	return Compute(prev, next, total)
}

func (c *Calculator) Forget(taskID string) {
	c.mu.Lock()
	delete(c.last, taskID)
	c.mu.Unlock()
}
