package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"
)

// OllamaConfig holds local model configuration.
type OllamaConfig struct {
	Host         string
	Model        string
	SystemPrompt string
	Timeout      time.Duration
	MaxTurns     int
	Temperature  float64
}

// OllamaClient talks to a local Ollama server. It implements Responder so
// the session can run fully offline.
type OllamaClient struct {
	client *api.Client
	cfg    OllamaConfig
	logger zerolog.Logger

	mu      sync.Mutex
	history []api.Message
}

// NewOllamaClient creates a client for a local Ollama server.
func NewOllamaClient(cfg OllamaConfig, logger zerolog.Logger) (*OllamaClient, error) {
	if cfg.Host == "" {
		cfg.Host = "http://localhost:11434"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 19
	}

	parsed, err := url.Parse(strings.TrimSuffix(cfg.Host, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host: %w", err)
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &OllamaClient{
		client: api.NewClient(parsed, httpClient),
		cfg:    cfg,
		logger: logger.With().Str("component", "llm-ollama").Logger(),
	}, nil
}

// Respond sends the user turn with retained history and returns the reply.
func (c *OllamaClient) Respond(ctx context.Context, userText string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	c.mu.Lock()
	messages := make([]api.Message, 0, len(c.history)+2)
	messages = append(messages, api.Message{Role: "system", Content: c.cfg.SystemPrompt})
	messages = append(messages, c.history...)
	messages = append(messages, api.Message{Role: "user", Content: userText})
	c.mu.Unlock()

	stream := false
	var response api.ChatResponse
	err := c.client.Chat(ctx, &api.ChatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": c.cfg.Temperature,
			"num_predict": 400,
		},
	}, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}

	reply := strings.TrimSpace(response.Message.Content)

	c.mu.Lock()
	c.history = append(c.history,
		api.Message{Role: "user", Content: userText},
		api.Message{Role: "assistant", Content: reply},
	)
	if len(c.history) > c.cfg.MaxTurns {
		c.history = c.history[len(c.history)-c.cfg.MaxTurns:]
	}
	c.mu.Unlock()

	return reply, nil
}

// ResetHistory drops the conversation history, keeping the system prompt.
func (c *OllamaClient) ResetHistory() {
	c.mu.Lock()
	c.history = nil
	c.mu.Unlock()
}
