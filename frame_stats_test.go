package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrameStatsReportsOncePerInterval(t *testing.T) {
	start := time.Unix(100, 0)
	s := NewFrameStats(start, time.Second)

	now := start
	reports := 0
	for i := 0; i < 120; i++ {
		now = now.Add(10 * time.Millisecond)
		dt, report := s.Frame(now)
		assert.InDelta(t, 0.01, dt, 1e-6)
		if report {
			reports++
		}
	}
	assert.Equal(t, 1, reports)
	assert.InDelta(t, 100, s.FPS(), 0.01)
	assert.Equal(t, 10*time.Millisecond, s.WorstFrame())
}

func TestFrameStatsClampsLongFrames(t *testing.T) {
	start := time.Unix(100, 0)
	s := NewFrameStats(start, time.Second)

	dt, report := s.Frame(start.Add(3 * time.Second))
	assert.True(t, report)
	assert.InDelta(t, maxFrameTime.Seconds(), dt, 1e-6)
	assert.Equal(t, 3*time.Second, s.WorstFrame())

	dt, _ = s.Frame(start.Add(2 * time.Second))
	assert.Zero(t, dt)
}
