package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPercentage(t *testing.T) {
	tests := []struct {
		b, total int64
		want     int
	}{
		{0, 0, 0},
		{5, 0, 0},
		{0, 100, 0},
		{1, 3, 33},
		{2, 3, 67},
		{1, 200, 1},
		{100, 100, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Percentage(tt.b, tt.total), "b=%d total=%d", tt.b, tt.total)
	}
}

func TestCompute(t *testing.T) {
	t0 := time.Unix(1000, 0)

	t.Run("steady speed and eta", func(t *testing.T) {
		s := Compute(Sample{Bytes: 0, At: t0}, Sample{Bytes: 500, At: t0.Add(time.Second)}, 1500)
		assert.Equal(t, 33, s.Percentage)
		assert.InDelta(t, 500.0, s.Speed, 1e-9)
		assert.InDelta(t, 2.0, s.ETASeconds, 1e-9)
	})

	t.Run("zero elapsed", func(t *testing.T) {
		s := Compute(Sample{Bytes: 0, At: t0}, Sample{Bytes: 500, At: t0}, 1000)
		assert.Equal(t, 0.0, s.Speed)
		assert.Equal(t, float64(UnknownETA), s.ETASeconds)
		assert.Equal(t, 50, s.Percentage)
	})

	t.Run("negative elapsed", func(t *testing.T) {
		s := Compute(Sample{Bytes: 0, At: t0.Add(time.Second)}, Sample{Bytes: 10, At: t0}, 100)
		assert.Equal(t, 0.0, s.Speed)
		assert.Equal(t, float64(UnknownETA), s.ETASeconds)
	})

	t.Run("stalled", func(t *testing.T) {
		s := Compute(Sample{Bytes: 10, At: t0}, Sample{Bytes: 10, At: t0.Add(time.Second)}, 100)
		assert.Equal(t, 0.0, s.Speed)
		assert.Equal(t, float64(UnknownETA), s.ETASeconds)
	})

	t.Run("complete", func(t *testing.T) {
		s := Compute(Sample{Bytes: 90, At: t0}, Sample{Bytes: 100, At: t0.Add(time.Second)}, 100)
		assert.Equal(t, 100, s.Percentage)
		assert.Equal(t, 0.0, s.ETASeconds)
	})
}

func TestCalculator(t *testing.T) {
	c := NewCalculator()
	t0 := time.Unix(0, 0)

	first := c.Observe("t1", Sample{Bytes: 100, At: t0}, 1000)
	assert.Equal(t, 0.0, first.Speed)
	assert.Equal(t, float64(UnknownETA), first.ETASeconds)

	second := c.Observe("t1", Sample{Bytes: 300, At: t0.Add(2 * time.Second)}, 1000)
	assert.InDelta(t, 100.0, second.Speed, 1e-9)
	assert.InDelta(t, 7.0, second.ETASeconds, 1e-9)

	// a restarted transfer reports fewer bytes; no negative speed
	back := c.Observe("t1", Sample{Bytes: 0, At: t0.Add(3 * time.Second)}, 1000)
	assert.Equal(t, 0.0, back.Speed)

	c.Forget("t1")
	fresh := c.Observe("t1", Sample{Bytes: 500, At: t0.Add(4 * time.Second)}, 1000)
	assert.Equal(t, 0.0, fresh.Speed)
	assert.Equal(t, 50, fresh.Percentage)
}
