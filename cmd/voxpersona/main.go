package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/voxpersona/voxpersona/internal/audio"
	"github.com/voxpersona/voxpersona/internal/avatar"
	"github.com/voxpersona/voxpersona/internal/bus"
	"github.com/voxpersona/voxpersona/internal/config"
	"github.com/voxpersona/voxpersona/internal/httpserver"
	"github.com/voxpersona/voxpersona/internal/llm"
	"github.com/voxpersona/voxpersona/internal/logging"
	"github.com/voxpersona/voxpersona/internal/session"
	"github.com/voxpersona/voxpersona/internal/stt"
	"github.com/voxpersona/voxpersona/internal/transcript"
	"github.com/voxpersona/voxpersona/internal/tts"
)

func main() {
	// Local development keys live in .env; absence is fine.
	_ = godotenv.Load()

	logger, err := logging.New(nil)
	if err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Close()
	log := logger.Component("main")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	eventBus := bus.NewEventBus()
	store := transcript.NewStore(transcript.Config{})

	responder := buildResponder(cfg, logger.Zerolog(), log)

	av := avatar.NewController(eventBus)
	av.Start()
	defer av.Stop()
	lipSync := avatar.NewLipSync(av)

	ctrl := session.NewController(cfg.Session, cfg.TTS.Provider, session.Deps{
		Voice:     nil, // attached below once the speakers exist
		Responder: responder,
		Store:     store,
		Avatar:    av,
		LipSync:   lipSync,
		Bus:       eventBus,
		Logger:    logger.Zerolog(),
	})

	voice := buildVoice(cfg, ctrl, logger.Zerolog(), log)
	ctrl.AttachVoice(voice)

	recognizer := stt.NewRemote(stt.Events{
		OnResult: ctrl.OnTranscript,
		OnError:  ctrl.OnInputError,
		OnEnded:  ctrl.OnInputEnded,
	}, logger.Zerolog())
	ctrl.AttachRecognizer(recognizer)

	config.Watch(func(fresh *config.Config) {
		log.Info().Msg("Configuration reloaded")
		ctrl.UpdateConfig(fresh.Session, fresh.TTS.Provider)
	})

	server := httpserver.New(httpserver.Deps{
		Controller: ctrl,
		Recognizer: recognizer,
		Store:      store,
		Bus:        eventBus,
		Persona:    cfg.Persona.Name,
		Logger:     logger.Zerolog(),
	})

	go func() {
		if err := server.Start(cfg.Server.Addr); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	ctrl.StopSession()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
}

// buildResponder picks the chat backend from configuration. Groq and OpenAI
// share one client with built-in fallback; ollama is the offline option.
func buildResponder(cfg *config.Config, zl zerolog.Logger, log zerolog.Logger) llm.Responder {
	llmCfg := llm.Config{
		GroqAPIKey:   cfg.LLM.GroqAPIKey,
		GroqModel:    cfg.LLM.GroqModel,
		OpenAIKey:    cfg.LLM.OpenAIKey,
		OpenAIModel:  cfg.LLM.OpenAIModel,
		Timeout:      cfg.LLM.Timeout,
		MaxTokens:    cfg.LLM.MaxTokens,
		Temperature:  cfg.LLM.Temperature,
		SystemPrompt: cfg.Persona.SystemPrompt,
		MaxTurns:     cfg.Session.MaxTurns,
	}

	if cfg.LLM.Provider == "ollama" {
		ollama, err := llm.NewOllamaClient(llm.OllamaConfig{
			Host:         cfg.LLM.OllamaHost,
			Model:        cfg.LLM.OllamaModel,
			SystemPrompt: cfg.Persona.SystemPrompt,
			Timeout:      cfg.LLM.Timeout,
			MaxTurns:     cfg.Session.MaxTurns,
			Temperature:  cfg.LLM.Temperature,
		}, zl)
		if err == nil {
			return ollama
		}
		log.Warn().Err(err).Msg("Ollama unavailable, using cloud providers")
	}
	return llm.NewClient(llmCfg, zl)
}

// buildVoice assembles the mutually exclusive speech output paths.
func buildVoice(cfg *config.Config, ctrl *session.Controller, zl zerolog.Logger, log zerolog.Logger) *tts.Exclusive {
	local := tts.NewLocal(tts.LocalConfig{
		Voice: cfg.TTS.LocalVoice,
		Rate:  cfg.TTS.LocalRate,
	}, zl)

	var player tts.PCMPlayer
	if p, err := audio.NewPlayer(cfg.Audio.BufferMs, zl); err == nil {
		player = p
	} else {
		log.Warn().Err(err).Msg("No playback device, cloud speech will be silent")
	}

	eleven := tts.NewElevenLabs(tts.ElevenLabsConfig{
		APIKey:       cfg.TTS.ElevenLabsAPIKey,
		VoiceID:      cfg.TTS.ElevenLabsVoiceID,
		ModelID:      cfg.TTS.ModelID,
		Stability:    cfg.TTS.Stability,
		Similarity:   cfg.TTS.Similarity,
		Style:        cfg.TTS.Style,
		SpeakerBoost: cfg.TTS.SpeakerBoost,
		SampleRate:   cfg.Audio.SampleRate,
	}, player, zl)
	eleven.OnAudioReady = ctrl.OnAudioDuration

	return tts.NewExclusive(local, eleven)
}
