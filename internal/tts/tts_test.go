package tts

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxpersona/voxpersona/internal/audio"
)

func TestClassifyResponse(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   FailureKind
	}{
		{"rate limited", http.StatusTooManyRequests, "", FailureQuota},
		{"payment required", http.StatusPaymentRequired, "", FailureQuota},
		{"quota in body", http.StatusBadRequest, `{"detail":"quota_exceeded"}`, FailureQuota},
		{"credits in body", http.StatusForbidden, "free credits exhausted", FailureQuota},
		{"subscription in body", http.StatusForbidden, "subscription expired", FailureQuota},
		{"bad key", http.StatusUnauthorized, "invalid api key", FailureAuth},
		// Quota wins over the status code when the body names it.
		{"unauthorized with quota body", http.StatusUnauthorized, "character limit reached", FailureQuota},
		{"server error", http.StatusInternalServerError, "oops", FailureUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyResponse(tt.status, tt.body)
			assert.Equal(t, tt.want, got.Kind)
		})
	}
}

func TestSpeechErrorUserMessage(t *testing.T) {
	kinds := []FailureKind{FailureMissingKey, FailureAuth, FailureQuota, FailureUnavailable}
	seen := map[string]bool{}
	for _, k := range kinds {
		msg := (&SpeechError{Kind: k}).UserMessage()
		assert.Contains(t, msg, "You can use the Voice or Chat tab instead.", string(k))
		assert.False(t, seen[msg], "messages must be distinct")
		seen[msg] = true
	}
}

type fakePlayer struct {
	mu         sync.Mutex
	played     []audio.Clip
	interrupts int
}

func (f *fakePlayer) Play(clip audio.Clip) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, clip)
	return nil
}

func (f *fakePlayer) Interrupt() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interrupts++
}

func TestElevenLabsSpeakPlaysPCM(t *testing.T) {
	// One second of silence at 16kHz.
	pcm := make([]byte, 16000*2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret-key", r.Header.Get("xi-api-key"))
		assert.Contains(t, r.URL.RawQuery, "output_format=pcm_16000")
		w.Write(pcm)
	}))
	defer srv.Close()

	player := &fakePlayer{}
	cfg := DefaultElevenLabsConfig()
	cfg.APIKey = "secret-key"
	p := NewElevenLabs(cfg, player, zerolog.Nop())
	p.endpoint = srv.URL

	var gotDuration time.Duration
	p.OnAudioReady = func(d time.Duration) { gotDuration = d }

	require.NoError(t, p.Speak(context.Background(), "hello"))
	require.Len(t, player.played, 1)
	assert.Equal(t, time.Second, gotDuration)
	assert.Equal(t, 16000, player.played[0].SampleRate)
}

func TestElevenLabsSpeakClassifiesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("invalid key"))
	}))
	defer srv.Close()

	cfg := DefaultElevenLabsConfig()
	cfg.APIKey = "secret-key"
	p := NewElevenLabs(cfg, &fakePlayer{}, zerolog.Nop())
	p.endpoint = srv.URL

	err := p.Speak(context.Background(), "hello")
	var serr *SpeechError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, FailureAuth, serr.Kind)
}

func TestElevenLabsMissingKey(t *testing.T) {
	p := NewElevenLabs(ElevenLabsConfig{}, &fakePlayer{}, zerolog.Nop())
	err := p.Speak(context.Background(), "hello")
	var serr *SpeechError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, FailureMissingKey, serr.Kind)
}

func TestElevenLabsCancelIdempotent(t *testing.T) {
	player := &fakePlayer{}
	cfg := DefaultElevenLabsConfig()
	cfg.APIKey = "secret-key"
	p := NewElevenLabs(cfg, player, zerolog.Nop())

	assert.NotPanics(t, func() {
		p.Cancel()
		p.Cancel()
	})
	assert.Equal(t, 2, player.interrupts)
}

func TestLocalLatestUtteranceWins(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a shell stub on PATH")
	}

	l := NewLocal(DefaultLocalConfig(), zerolog.Nop())

	dir := t.TempDir()
	stub := filepath.Join(dir, l.binary())
	require.NoError(t, os.WriteFile(stub, []byte("#!/bin/sh\nsleep 0.5\n"), 0o755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))

	first := make(chan error, 1)
	go func() { first <- l.Speak(context.Background(), "first") }()
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	require.NoError(t, l.Speak(context.Background(), "second"))
	elapsed := time.Since(start)

	// The superseded utterance exiting must not tear down its successor.
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.NoError(t, <-first)
}

type scriptedSpeaker struct {
	name string
	mu   sync.Mutex

	speaks  []string
	cancels int
	err     error
}

func (s *scriptedSpeaker) Name() string { return s.name }

func (s *scriptedSpeaker) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaks = append(s.speaks, text)
	return s.err
}

func (s *scriptedSpeaker) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
}

func TestExclusiveRoutesByName(t *testing.T) {
	local := &scriptedSpeaker{name: "local"}
	cloud := &scriptedSpeaker{name: "elevenlabs"}
	ex := NewExclusive(local, cloud)

	require.NoError(t, ex.Speak(context.Background(), "elevenlabs", "hi"))
	assert.Empty(t, local.speaks)
	assert.Equal(t, []string{"hi"}, cloud.speaks)

	// Unknown name falls back to the first speaker.
	require.NoError(t, ex.Speak(context.Background(), "nope", "fallback"))
	assert.Equal(t, []string{"fallback"}, local.speaks)
}

func TestExclusiveCancelsOtherSpeaker(t *testing.T) {
	slow := &scriptedSpeaker{name: "local"}
	cloud := &scriptedSpeaker{name: "elevenlabs"}
	ex := NewExclusive(slow, cloud)

	// Pretend local is mid-utterance.
	ex.mu.Lock()
	ex.current = slow
	ex.mu.Unlock()

	require.NoError(t, ex.Speak(context.Background(), "elevenlabs", "hi"))
	assert.Equal(t, 1, slow.cancels)
}

func TestExclusiveCancelAll(t *testing.T) {
	a := &scriptedSpeaker{name: "a"}
	b := &scriptedSpeaker{name: "b"}
	ex := NewExclusive(a, b)

	ex.CancelAll()
	ex.CancelAll()
	assert.Equal(t, 2, a.cancels)
	assert.Equal(t, 2, b.cancels)
}

func TestExclusivePropagatesError(t *testing.T) {
	bad := &scriptedSpeaker{name: "local", err: errors.New("synth failed")}
	ex := NewExclusive(bad)
	assert.Error(t, ex.Speak(context.Background(), "local", "hi"))
}
