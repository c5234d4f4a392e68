package avatar

import (
	"sync"
	"time"

	"github.com/voxpersona/voxpersona/internal/viseme"
)

// LipSync drives mouth animation for one utterance at a time. Begin tears
// down any previous utterance first, so frames from an abandoned reply can
// never reach the renderer.
type LipSync struct {
	mu    sync.Mutex
	av    *Controller
	sched *viseme.Scheduler
}

// NewLipSync creates a lip-sync driver for the controller.
func NewLipSync(av *Controller) *LipSync {
	return &LipSync{av: av}
}

// Begin builds the frame sequence for the text and starts the word-count
// fallback pacer.
func (l *LipSync) Begin(text string) {
	l.mu.Lock()
	if l.sched != nil {
		l.sched.Stop()
	}
	sched := viseme.NewScheduler(viseme.Codes(text), l.av.SetViseme)
	l.sched = sched
	l.mu.Unlock()

	sched.Start(viseme.WordCount(text))
}

// SetDuration switches the current utterance to exact pacing once the real
// audio length is known.
func (l *LipSync) SetDuration(d time.Duration) {
	l.mu.Lock()
	sched := l.sched
	l.mu.Unlock()
	if sched != nil {
		sched.SetDuration(d)
	}
}

// End stops animation and closes the mouth. Idempotent.
func (l *LipSync) End() {
	l.mu.Lock()
	sched := l.sched
	l.sched = nil
	l.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}
	l.av.SetViseme(viseme.Sil)
}
