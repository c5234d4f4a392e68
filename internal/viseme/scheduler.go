package viseme

import (
	"sync"
	"time"
)

const (
	// perWordEstimate drives the fallback cadence until the real audio
	// duration is known.
	perWordEstimate = 350 * time.Millisecond
	// minFrameInterval keeps the fallback ticker from spinning on long
	// sequences with short estimates.
	minFrameInterval = 80 * time.Millisecond
)

// Scheduler replays a viseme frame sequence against wall-clock time and
// publishes each frame through the emit callback.
//
// Two timing strategies run concurrently: a fallback ticker paced by a
// word-count estimate, and an exact ticker started once the real audio
// duration is known via SetDuration. Both advance a shared cursor, so
// whichever fires first wins each frame. Stop cancels both strategies and
// guarantees that emit is never invoked afterwards; the emit callback runs
// under the scheduler lock and must not call back into the Scheduler.
type Scheduler struct {
	mu      sync.Mutex
	frames  []Code
	emit    func(Code)
	index   int
	stopped bool
	stopCh  chan struct{}
}

// NewScheduler creates a scheduler for one utterance's frame sequence.
func NewScheduler(frames []Code, emit func(Code)) *Scheduler {
	return &Scheduler{
		frames: frames,
		emit:   emit,
		stopCh: make(chan struct{}),
	}
}

// Start begins the fallback strategy. wordCount is the number of words in
// the utterance text; the estimate is ~0.35s per word spread across the
// frame sequence, clamped to a minimum per-frame interval.
func (s *Scheduler) Start(wordCount int) {
	if len(s.frames) == 0 {
		return
	}
	estimated := time.Duration(wordCount) * perWordEstimate
	interval := estimated / time.Duration(len(s.frames))
	if interval < minFrameInterval {
		interval = minFrameInterval
	}
	go s.run(interval)
}

// SetDuration switches to exact pacing: the remaining frames are spread
// evenly across the reported audio duration. Safe to call at most once,
// any time after Start, and a no-op once stopped.
func (s *Scheduler) SetDuration(d time.Duration) {
	s.mu.Lock()
	stopped := s.stopped
	n := len(s.frames)
	s.mu.Unlock()

	if stopped || n == 0 || d <= 0 {
		return
	}
	interval := d / time.Duration(n)
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	go s.run(interval)
}

// Stop cancels all pending frame updates, unconditionally. Idempotent.
// After Stop returns, emit will not be invoked again.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.stopCh)
}

// run drives one timing strategy until the sequence is exhausted or the
// scheduler is stopped.
func (s *Scheduler) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			if !s.step() {
				return
			}
		}
	}
}

// step emits the next frame. Returns false when there is nothing left to do.
func (s *Scheduler) step() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.index >= len(s.frames) {
		return false
	}
	code := s.frames[s.index]
	s.index++
	s.emit(code)
	return s.index < len(s.frames)
}
