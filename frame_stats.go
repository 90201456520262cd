package main

import "time"

// maxFrameTime caps the update step after stalls such as a minimized window.
const maxFrameTime = 250 * time.Millisecond

// FrameStats counts frames and reports the rate once per interval.
type FrameStats struct {
	interval time.Duration

	last        time.Time
	windowStart time.Time
	frames      int
	worst       time.Duration

	fps        float64
	worstFrame time.Duration
}

func NewFrameStats(now time.Time, interval time.Duration) *FrameStats {
	return &FrameStats{interval: interval, last: now, windowStart: now}
}

// Frame records a frame finished at now. It returns the elapsed time since
// the previous frame in seconds and whether a new rate is ready.
func (s *FrameStats) Frame(now time.Time) (dt float32, report bool) {
	elapsed := now.Sub(s.last)
	s.last = now
	if elapsed < 0 {
		elapsed = 0
	}
	s.frames++
	if elapsed > s.worst {
		s.worst = elapsed
	}

	if window := now.Sub(s.windowStart); window >= s.interval {
		s.fps = float64(s.frames) / window.Seconds()
		s.worstFrame = s.worst
		s.frames = 0
		s.worst = 0
		s.windowStart = now
		report = true
	}
	return float32(min(elapsed, maxFrameTime).Seconds()), report
}

// FPS is the rate over the last full interval.
func (s *FrameStats) FPS() float64 { return s.fps }

// WorstFrame is the longest frame of the last full interval.
func (s *FrameStats) WorstFrame() time.Duration { return s.worstFrame }
