package stt

import (
	"sync"

	"github.com/rs/zerolog"
)

// CommandSender pushes a recognition command ("start" or "stop") to the
// connected client.
type CommandSender func(cmd string) error

// Remote is a Recognizer whose actual capture runs in a connected client,
// typically a browser using its native speech recognition. Commands go out
// through a CommandSender and results come back through the Handle methods,
// which the transport calls as client events arrive.
//
// Remote enforces the single-terminal-event contract locally: whatever the
// client sends, at most one of result, error, or ended reaches Events per
// activation. A trailing "ended" after a result is dropped.
type Remote struct {
	mu     sync.Mutex
	send   CommandSender
	events Events
	logger zerolog.Logger

	running  bool
	terminal bool
}

// NewRemote creates a bridge-fed recognizer.
func NewRemote(events Events, logger zerolog.Logger) *Remote {
	return &Remote{
		events: events,
		logger: logger.With().Str("component", "stt").Logger(),
	}
}

// SetSender attaches the transport. A nil sender detaches it, after which
// Start fails with ErrNotConnected.
func (r *Remote) SetSender(send CommandSender) {
	r.mu.Lock()
	r.send = send
	r.mu.Unlock()
}

// Start begins one activation.
func (r *Remote) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	send := r.send
	if send == nil {
		r.mu.Unlock()
		return ErrNotConnected
	}
	r.running = true
	r.terminal = false
	r.mu.Unlock()

	if err := send("start"); err != nil {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return err
	}
	return nil
}

// Stop cancels the current activation, if any. Events from the cancelled
// activation are suppressed.
func (r *Remote) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.terminal = true
	send := r.send
	r.mu.Unlock()

	if send != nil {
		if err := send("stop"); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to send stop command")
		}
	}
}

// Running reports whether an activation is in flight.
func (r *Remote) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// HandleResult delivers a final transcript from the client.
func (r *Remote) HandleResult(text string) {
	if !r.claimTerminal() {
		return
	}
	if r.events.OnResult != nil {
		r.events.OnResult(text)
	}
}

// HandleError delivers a recognition failure from the client.
func (r *Remote) HandleError(kind ErrorKind, message string) {
	if !r.claimTerminal() {
		return
	}
	if r.events.OnError != nil {
		r.events.OnError(&RecognitionError{Kind: kind, Message: message})
	}
}

// HandleEnded delivers an end-without-result from the client. Clients that
// also report end after a result are tolerated; the event is dropped.
func (r *Remote) HandleEnded() {
	if !r.claimTerminal() {
		return
	}
	if r.events.OnEnded != nil {
		r.events.OnEnded()
	}
}

// claimTerminal marks the activation finished. It returns false when no
// activation is in flight or a terminal event was already delivered.
func (r *Remote) claimTerminal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running || r.terminal {
		return false
	}
	r.running = false
	r.terminal = true
	return true
}
