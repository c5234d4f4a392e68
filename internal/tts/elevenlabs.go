package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voxpersona/voxpersona/internal/audio"
)

const (
	ElevenLabsEndpoint     = "https://api.elevenlabs.io/v1"
	ElevenLabsDefaultVoice = "21m00Tcm4TlvDq8ikWAM" // Rachel
)

// ElevenLabsConfig holds cloud synthesis configuration.
type ElevenLabsConfig struct {
	APIKey       string  `json:"api_key"`
	VoiceID      string  `json:"voice_id"`
	ModelID      string  `json:"model_id"`
	Stability    float64 `json:"stability"`
	Similarity   float64 `json:"similarity_boost"`
	Style        float64 `json:"style"`
	SpeakerBoost bool    `json:"use_speaker_boost"`
	// SampleRate selects the PCM output rate. Requesting raw PCM lets us
	// compute the exact utterance duration from the sample count.
	SampleRate int `json:"sample_rate"`
}

// DefaultElevenLabsConfig returns sensible defaults.
func DefaultElevenLabsConfig() ElevenLabsConfig {
	return ElevenLabsConfig{
		VoiceID:      ElevenLabsDefaultVoice,
		ModelID:      "eleven_multilingual_v2",
		Stability:    0.5,
		Similarity:   0.75,
		Style:        0.0,
		SpeakerBoost: true,
		SampleRate:   16000,
	}
}

// PCMPlayer plays a synthesized clip. *audio.Player satisfies it.
type PCMPlayer interface {
	Play(clip audio.Clip) error
	Interrupt()
}

// ElevenLabs synthesizes speech through the ElevenLabs API and plays it
// locally.
type ElevenLabs struct {
	config   ElevenLabsConfig
	client   *http.Client
	player   PCMPlayer
	logger   zerolog.Logger
	endpoint string

	// OnAudioReady fires after synthesis, before playback, with the exact
	// clip duration. The session uses it to pace mouth animation.
	OnAudioReady func(d time.Duration)

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewElevenLabs creates a cloud speech provider.
func NewElevenLabs(config ElevenLabsConfig, player PCMPlayer, logger zerolog.Logger) *ElevenLabs {
	if config.VoiceID == "" {
		config.VoiceID = ElevenLabsDefaultVoice
	}
	if config.ModelID == "" {
		config.ModelID = "eleven_multilingual_v2"
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 16000
	}
	return &ElevenLabs{
		config:   config,
		client:   &http.Client{Timeout: 30 * time.Second},
		player:   player,
		logger:   logger.With().Str("provider", "elevenlabs-tts").Logger(),
		endpoint: ElevenLabsEndpoint,
	}
}

// Name returns the provider identifier.
func (p *ElevenLabs) Name() string { return "elevenlabs" }

// Available reports whether an API key is configured.
func (p *ElevenLabs) Available() bool {
	return len(p.config.APIKey) >= 10
}

// Speak synthesizes the text and blocks through playback. Failures come
// back as *SpeechError so callers can show the user message.
func (p *ElevenLabs) Speak(ctx context.Context, text string) error {
	if !p.Available() {
		return &SpeechError{Kind: FailureMissingKey, Detail: "API key not configured"}
	}
	if text == "" {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = cancel
	p.mu.Unlock()
	defer cancel()

	clip, err := p.synthesize(ctx, text)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}

	if p.OnAudioReady != nil {
		p.OnAudioReady(clip.Duration())
	}

	if p.player == nil {
		return nil
	}
	if err := p.player.Play(clip); err != nil {
		return fmt.Errorf("playback: %w", err)
	}
	return nil
}

func (p *ElevenLabs) synthesize(ctx context.Context, text string) (audio.Clip, error) {
	payload := map[string]any{
		"text":     text,
		"model_id": p.config.ModelID,
		"voice_settings": map[string]any{
			"stability":         p.config.Stability,
			"similarity_boost":  p.config.Similarity,
			"style":             p.config.Style,
			"use_speaker_boost": p.config.SpeakerBoost,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s?output_format=pcm_%d", p.endpoint, p.config.VoiceID, p.config.SampleRate)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return audio.Clip{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", p.config.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return audio.Clip{}, ctx.Err()
		}
		return audio.Clip{}, &SpeechError{Kind: FailureUnavailable, Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		serr := classifyResponse(resp.StatusCode, string(raw))
		p.logger.Error().Int("status", resp.StatusCode).Str("kind", string(serr.Kind)).Msg("Synthesis failed")
		return audio.Clip{}, serr
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("read audio: %w", err)
	}

	return audio.Clip{PCM16: pcm, SampleRate: p.config.SampleRate}, nil
}

// Cancel aborts synthesis and stops playback.
func (p *ElevenLabs) Cancel() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()
	if p.player != nil {
		p.player.Interrupt()
	}
}
