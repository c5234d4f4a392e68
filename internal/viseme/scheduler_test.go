package viseme

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector records emitted codes thread-safely.
type collector struct {
	mu    sync.Mutex
	codes []Code
}

func (c *collector) emit(code Code) {
	c.mu.Lock()
	c.codes = append(c.codes, code)
	c.mu.Unlock()
}

func (c *collector) snapshot() []Code {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Code, len(c.codes))
	copy(out, c.codes)
	return out
}

func waitFor(t *testing.T, cond func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestScheduler_ExactPacingEmitsAllFramesInOrder(t *testing.T) {
	frames := Codes("hi") // AA IH IH IH IH
	c := &collector{}
	s := NewScheduler(frames, c.emit)
	defer s.Stop()

	// 50ms across 5 frames: 10ms per frame.
	s.SetDuration(50 * time.Millisecond)

	waitFor(t, func() bool { return len(c.snapshot()) == len(frames) }, 2*time.Second)
	assert.Equal(t, frames, c.snapshot())
}

func TestScheduler_FallbackTicksUntilExhausted(t *testing.T) {
	frames := []Code{AA, E, IH}
	c := &collector{}
	s := NewScheduler(frames, c.emit)
	defer s.Stop()

	s.Start(1) // ~350ms estimate clamps to the 80ms minimum interval

	waitFor(t, func() bool { return len(c.snapshot()) == len(frames) }, 2*time.Second)
	assert.Equal(t, frames, c.snapshot())
}

func TestScheduler_StopSuppressesFurtherEmits(t *testing.T) {
	frames := make([]Code, 100)
	for i := range frames {
		frames[i] = AA
	}
	c := &collector{}
	s := NewScheduler(frames, c.emit)

	s.SetDuration(time.Second)
	waitFor(t, func() bool { return len(c.snapshot()) > 0 }, 2*time.Second)

	s.Stop()
	seen := len(c.snapshot())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, seen, len(c.snapshot()), "emit fired after Stop")
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	s := NewScheduler(Codes("hello"), func(Code) {})
	s.Start(1)

	require.NotPanics(t, func() {
		s.Stop()
		s.Stop()
		s.Stop()
	})
}

func TestScheduler_SetDurationAfterStopIsNoOp(t *testing.T) {
	c := &collector{}
	s := NewScheduler(Codes("hello"), c.emit)
	s.Stop()
	s.SetDuration(10 * time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, c.snapshot())
}

func TestScheduler_BothStrategiesShareOneCursor(t *testing.T) {
	frames := []Code{AA, E, IH, OH, OU}
	c := &collector{}
	s := NewScheduler(frames, c.emit)
	defer s.Stop()

	s.Start(1)
	s.SetDuration(50 * time.Millisecond)

	waitFor(t, func() bool { return len(c.snapshot()) == len(frames) }, 2*time.Second)

	// Even with two tickers racing, each frame is delivered exactly once.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, frames, c.snapshot())
}
