package tts

import (
	"context"
	"sync"
)

// Exclusive serializes a set of speakers so at most one utterance plays at
// a time across all of them. Starting speech on any provider first cancels
// whatever another provider is still playing.
type Exclusive struct {
	mu       sync.Mutex
	speakers []Speaker
	current  Speaker
}

// NewExclusive creates an arbiter over the given speakers.
func NewExclusive(speakers ...Speaker) *Exclusive {
	return &Exclusive{speakers: speakers}
}

// Speak routes the utterance to the named speaker, cancelling any other
// speaker first. An unknown name falls back to the first speaker.
func (e *Exclusive) Speak(ctx context.Context, name, text string) error {
	target := e.pick(name)
	if target == nil {
		return nil
	}

	e.mu.Lock()
	prev := e.current
	e.current = target
	e.mu.Unlock()

	if prev != nil && prev != target {
		prev.Cancel()
	}

	err := target.Speak(ctx, text)

	e.mu.Lock()
	if e.current == target {
		e.current = nil
	}
	e.mu.Unlock()
	return err
}

// CancelAll stops every speaker. Idempotent.
func (e *Exclusive) CancelAll() {
	e.mu.Lock()
	e.current = nil
	speakers := e.speakers
	e.mu.Unlock()

	for _, s := range speakers {
		s.Cancel()
	}
}

func (e *Exclusive) pick(name string) Speaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.speakers {
		if s.Name() == name {
			return s
		}
	}
	if len(e.speakers) > 0 {
		return e.speakers[0]
	}
	return nil
}
