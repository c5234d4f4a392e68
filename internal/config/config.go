// Package config provides configuration management for voxpersona
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Session SessionConfig `mapstructure:"session"`
	LLM     LLMConfig     `mapstructure:"llm"`
	TTS     TTSConfig     `mapstructure:"tts"`
	Audio   AudioConfig   `mapstructure:"audio"`
	Server  ServerConfig  `mapstructure:"server"`
	Persona PersonaConfig `mapstructure:"persona"`
}

// SessionConfig tunes the turn-taking state machine
type SessionConfig struct {
	// SettleDelay is the pause after output ends before input restarts,
	// so the microphone does not pick up trailing bot audio.
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	// ErrorSettleDelay is the shorter pause used after an output error.
	ErrorSettleDelay time.Duration `mapstructure:"error_settle_delay"`
	// ExitPhrases end the session when found in a transcript (substring,
	// case-insensitive).
	ExitPhrases []string `mapstructure:"exit_phrases"`
	// Farewell is spoken once before the session deactivates.
	Farewell string `mapstructure:"farewell"`
	// MaxTurns caps retained chat history (system prompt excluded).
	MaxTurns int `mapstructure:"max_turns"`
	// StartMuted controls whether speech output begins muted.
	StartMuted bool `mapstructure:"start_muted"`
}

// LLMConfig configures the chat-completion collaborators
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // groq, openai, ollama
	GroqAPIKey  string        `mapstructure:"groq_api_key"`
	GroqModel   string        `mapstructure:"groq_model"`
	OpenAIKey   string        `mapstructure:"openai_api_key"`
	OpenAIModel string        `mapstructure:"openai_model"`
	OllamaHost  string        `mapstructure:"ollama_host"`
	OllamaModel string        `mapstructure:"ollama_model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
}

// TTSConfig configures speech output
type TTSConfig struct {
	Provider          string  `mapstructure:"provider"` // local, elevenlabs
	ElevenLabsAPIKey  string  `mapstructure:"elevenlabs_api_key"`
	ElevenLabsVoiceID string  `mapstructure:"elevenlabs_voice_id"`
	ModelID           string  `mapstructure:"model_id"`
	Stability         float64 `mapstructure:"stability"`
	Similarity        float64 `mapstructure:"similarity_boost"`
	Style             float64 `mapstructure:"style"`
	SpeakerBoost      bool    `mapstructure:"use_speaker_boost"`
	LocalVoice        string  `mapstructure:"local_voice"`
	LocalRate         int     `mapstructure:"local_rate"` // words per minute
}

// AudioConfig configures the playback device
type AudioConfig struct {
	SampleRate int    `mapstructure:"sample_rate"`
	BufferMs   uint32 `mapstructure:"buffer_ms"`
}

// ServerConfig configures the HTTP/WebSocket front
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// PersonaConfig describes the scripted persona
type PersonaConfig struct {
	Name         string `mapstructure:"name"`
	SystemPrompt string `mapstructure:"system_prompt"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			SettleDelay:      800 * time.Millisecond,
			ErrorSettleDelay: 250 * time.Millisecond,
			ExitPhrases:      []string{"exit", "quit", "bye", "goodbye", "stop"},
			Farewell:         "Goodbye! It was nice talking with you.",
			MaxTurns:         19,
			StartMuted:       false,
		},
		LLM: LLMConfig{
			Provider:    "groq",
			GroqModel:   "llama-3.1-8b-instant",
			OpenAIModel: "gpt-3.5-turbo",
			OllamaHost:  "http://localhost:11434",
			OllamaModel: "gemma3:1b",
			Timeout:     30 * time.Second,
			MaxTokens:   400,
			Temperature: 0.7,
		},
		TTS: TTSConfig{
			Provider:          "local",
			ElevenLabsVoiceID: "21m00Tcm4TlvDq8ikWAM",
			ModelID:           "eleven_multilingual_v2",
			Stability:         0.5,
			Similarity:        0.75,
			Style:             0.0,
			SpeakerBoost:      true,
			LocalVoice:        "Samantha",
			LocalRate:         175,
		},
		Audio: AudioConfig{
			SampleRate: 16000,
			BufferMs:   100,
		},
		Server: ServerConfig{
			Addr: ":8086",
		},
		Persona: PersonaConfig{
			Name: "Avery",
			SystemPrompt: "You are a friendly AI persona. Speak in a natural, " +
				"conversational tone, in the first person, and keep answers to a few " +
				"sentences unless asked for detail. Return plain text only, with no " +
				"markdown, lists, or special symbols.",
		},
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configDir, err := Dir()
	if err != nil {
		return cfg, err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("VOXPERSONA")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	// API keys come from the environment when unset in the file
	if cfg.LLM.GroqAPIKey == "" {
		cfg.LLM.GroqAPIKey = os.Getenv("GROQ_API_KEY")
	}
	if cfg.LLM.OpenAIKey == "" {
		cfg.LLM.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.TTS.ElevenLabsAPIKey == "" {
		cfg.TTS.ElevenLabsAPIKey = os.Getenv("ELEVENLABS_API_KEY")
	}

	return cfg, nil
}

// Watch reloads the config file on change and invokes onReload with the
// fresh configuration. Timing parameters such as the settle delay take
// effect on the next turn.
func Watch(onReload func(*Config)) {
	viper.OnConfigChange(func(_ fsnotify.Event) {
		cfg := DefaultConfig()
		if err := viper.Unmarshal(cfg); err != nil {
			return
		}
		onReload(cfg)
	})
	viper.WatchConfig()
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	configDir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("session", cfg.Session)
	viper.Set("llm", cfg.LLM)
	viper.Set("tts", cfg.TTS)
	viper.Set("audio", cfg.Audio)
	viper.Set("server", cfg.Server)
	viper.Set("persona", cfg.Persona)

	return viper.WriteConfigAs(filepath.Join(configDir, "config.yaml"))
}

// Dir returns the configuration directory path
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".voxpersona"), nil
}
