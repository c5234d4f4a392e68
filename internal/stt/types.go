// Package stt provides speech recognition sources for the session.
package stt

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrAlreadyRunning = errors.New("recognizer already running")
	ErrNotConnected   = errors.New("no recognition source connected")
)

// ErrorKind classifies recognition failures.
type ErrorKind string

const (
	KindNoSpeech     ErrorKind = "no-speech"
	KindAborted      ErrorKind = "aborted"
	KindAudioCapture ErrorKind = "audio-capture"
	KindNotAllowed   ErrorKind = "not-allowed"
	KindService      ErrorKind = "service-not-allowed"
	KindNetwork      ErrorKind = "network"
	KindUnknown      ErrorKind = "unknown"
)

// RecognitionError is a terminal failure for one activation.
type RecognitionError struct {
	Kind    ErrorKind
	Message string
}

func (e *RecognitionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("recognition error: %s", e.Kind)
	}
	return fmt.Sprintf("recognition error: %s: %s", e.Kind, e.Message)
}

// Fatal reports whether the failure means recognition cannot work at all,
// such as a denied microphone permission. Fatal errors end the session
// instead of scheduling a retry.
func (e *RecognitionError) Fatal() bool {
	switch e.Kind {
	case KindNotAllowed, KindService, KindAudioCapture:
		return true
	}
	return false
}

// Events receives the outcome of one activation. Exactly one of OnResult,
// OnError, or OnEnded fires per activation; OnEnded means recognition
// finished without producing a transcript.
type Events struct {
	OnResult func(text string)
	OnError  func(err *RecognitionError)
	OnEnded  func()
}

// Recognizer is a single-utterance speech source. Start begins one
// activation and fails if one is already in flight. Stop is idempotent and
// suppresses any event still on the wire.
type Recognizer interface {
	Start() error
	Stop()
	Running() bool
}
