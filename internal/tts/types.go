// Package tts provides speech output providers for the persona.
package tts

import "context"

// Speaker turns one reply into audible speech. Speak blocks until the
// utterance finishes or is cancelled; Cancel is idempotent and a no-op when
// nothing is playing.
type Speaker interface {
	Name() string
	Speak(ctx context.Context, text string) error
	Cancel()
}
