package tts

import (
	"fmt"
	"net/http"
	"strings"
)

// FailureKind is a coarse classification of cloud synthesis failures.
type FailureKind string

const (
	FailureMissingKey  FailureKind = "missing-key"
	FailureAuth        FailureKind = "auth"
	FailureQuota       FailureKind = "quota"
	FailureUnavailable FailureKind = "unavailable"
)

// SpeechError is a synthesis failure carrying a message safe to show or
// speak to the user. The raw provider detail goes to the log only.
type SpeechError struct {
	Kind   FailureKind
	Status int
	Detail string
}

func (e *SpeechError) Error() string {
	return fmt.Sprintf("speech synthesis failed (%s, status %d): %s", e.Kind, e.Status, e.Detail)
}

// UserMessage is the non-technical text shown to the user, pointing at the
// text-only tabs as a fallback.
func (e *SpeechError) UserMessage() string {
	switch e.Kind {
	case FailureMissingKey:
		return "ElevenLabs API key is missing. You can use the Voice or Chat tab instead."
	case FailureQuota:
		return "ElevenLabs free credits are over. You can use the Voice or Chat tab instead."
	case FailureAuth:
		return "ElevenLabs API key is invalid. You can use the Voice or Chat tab instead."
	default:
		return "ElevenLabs service is unavailable. You can use the Voice or Chat tab instead."
	}
}

// classifyResponse maps an ElevenLabs error response to a SpeechError. The
// quota check runs first: exhausted free credits sometimes come back with
// odd status codes but a recognizable body.
func classifyResponse(status int, body string) *SpeechError {
	detail := strings.ToLower(body)

	kind := FailureUnavailable
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusPaymentRequired ||
		strings.Contains(detail, "quota") || strings.Contains(detail, "credit") ||
		strings.Contains(detail, "limit") || strings.Contains(detail, "subscription"):
		kind = FailureQuota
	case status == http.StatusUnauthorized:
		kind = FailureAuth
	}

	return &SpeechError{Kind: kind, Status: status, Detail: body}
}
