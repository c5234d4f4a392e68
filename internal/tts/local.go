package tts

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
)

// LocalConfig holds system speech configuration.
type LocalConfig struct {
	// Voice names a system voice, such as Samantha on macOS.
	Voice string
	// Rate is words per minute.
	Rate int
}

// DefaultLocalConfig returns sensible defaults.
func DefaultLocalConfig() LocalConfig {
	return LocalConfig{
		Voice: "Samantha",
		Rate:  175,
	}
}

// Local speaks through the system synthesizer, the say command on macOS and
// espeak elsewhere. It needs no API key, which makes it the default output.
type Local struct {
	config LocalConfig
	logger zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64
}

// NewLocal creates a system speech provider.
func NewLocal(config LocalConfig, logger zerolog.Logger) *Local {
	if config.Rate <= 0 {
		config.Rate = 175
	}
	return &Local{
		config: config,
		logger: logger.With().Str("provider", "local-tts").Logger(),
	}
}

// Name returns the provider identifier.
func (l *Local) Name() string { return "local" }

// Available reports whether a system synthesizer binary exists.
func (l *Local) Available() bool {
	_, err := exec.LookPath(l.binary())
	return err == nil
}

func (l *Local) binary() string {
	if runtime.GOOS == "darwin" {
		return "say"
	}
	return "espeak"
}

func (l *Local) args(text string) []string {
	if runtime.GOOS == "darwin" {
		args := []string{"-r", strconv.Itoa(l.config.Rate)}
		if l.config.Voice != "" {
			args = append(args, "-v", l.config.Voice)
		}
		return append(args, text)
	}
	// espeak takes rate in words per minute as well.
	return []string{"-s", strconv.Itoa(l.config.Rate), text}
}

// Speak runs the synthesizer and blocks until it exits or is cancelled.
func (l *Local) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.cancel = cancel
	l.gen++
	gen := l.gen
	l.mu.Unlock()

	defer func() {
		cancel()
		l.mu.Lock()
		// A newer utterance may own the slot by now. Only clear it if it
		// is still ours, so we never cancel a successor.
		if l.gen == gen {
			l.cancel = nil
		}
		l.mu.Unlock()
	}()

	cmd := exec.CommandContext(ctx, l.binary(), l.args(text)...)
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.Canceled {
			return nil
		}
		return fmt.Errorf("%s: %w", l.binary(), err)
	}
	return nil
}

// Cancel stops the current utterance, if any.
func (l *Local) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}
