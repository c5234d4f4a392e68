// Package llm provides chat-completion clients for the persona.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	GroqEndpoint   = "https://api.groq.com/openai/v1/chat/completions"
	OpenAIEndpoint = "https://api.openai.com/v1/chat/completions"
)

// FallbackReply is surfaced to the user when every provider fails. Raw
// provider errors are logged, never spoken.
const FallbackReply = "I'm sorry, I encountered an error. Could you try again?"

// ErrNoAPIKey indicates no provider is configured.
var ErrNoAPIKey = errors.New("no LLM API key configured")

// Responder produces one assistant reply for the latest user turn.
type Responder interface {
	Respond(ctx context.Context, userText string) (string, error)
	// ResetHistory drops the conversation history, keeping the system prompt.
	ResetHistory()
}

// Message is one chat turn in provider wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config holds chat client configuration.
type Config struct {
	GroqAPIKey  string
	GroqModel   string
	OpenAIKey   string
	OpenAIModel string
	// Timeout bounds each completion call (default: 30s).
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
	// SystemPrompt is the persona prompt prepended to every request.
	SystemPrompt string
	// MaxTurns caps retained history: the system prompt plus the most
	// recent MaxTurns messages (default: 19).
	MaxTurns int
}

// Client calls OpenAI-compatible chat-completion APIs, preferring Groq and
// falling back to OpenAI when Groq fails or is not configured.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     zerolog.Logger

	groqURL   string
	openaiURL string

	mu      sync.Mutex
	history []Message
}

// NewClient creates a chat client.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 19
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 400
	}
	if cfg.GroqModel == "" {
		cfg.GroqModel = "llama-3.1-8b-instant"
	}
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-3.5-turbo"
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger.With().Str("component", "llm").Logger(),
		groqURL:    GroqEndpoint,
		openaiURL:  OpenAIEndpoint,
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream"`
}

type chatChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason"`
	Message      Message `json:"message"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Respond sends the user turn with retained history and returns the
// assistant reply. On success both turns are appended to history.
func (c *Client) Respond(ctx context.Context, userText string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	messages := c.buildMessages(userText)

	var reply string
	var err error

	if c.cfg.GroqAPIKey != "" {
		reply, err = c.complete(ctx, c.groqURL, c.cfg.GroqAPIKey, c.cfg.GroqModel, messages)
		if err != nil && c.cfg.OpenAIKey != "" {
			c.logger.Warn().Err(err).Msg("Groq completion failed, falling back to OpenAI")
			reply, err = c.complete(ctx, c.openaiURL, c.cfg.OpenAIKey, c.cfg.OpenAIModel, messages)
		}
	} else if c.cfg.OpenAIKey != "" {
		reply, err = c.complete(ctx, c.openaiURL, c.cfg.OpenAIKey, c.cfg.OpenAIModel, messages)
	} else {
		return "", ErrNoAPIKey
	}

	if err != nil {
		return "", err
	}

	c.remember(userText, reply)
	return reply, nil
}

// ResetHistory drops the conversation history, keeping the system prompt.
func (c *Client) ResetHistory() {
	c.mu.Lock()
	c.history = nil
	c.mu.Unlock()
}


func (c *Client) buildMessages(userText string) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	messages := make([]Message, 0, len(c.history)+2)
	messages = append(messages, Message{Role: "system", Content: c.cfg.SystemPrompt})
	messages = append(messages, c.history...)
	messages = append(messages, Message{Role: "user", Content: userText})
	return messages
}

func (c *Client) remember(userText, reply string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = append(c.history,
		Message{Role: "user", Content: userText},
		Message{Role: "assistant", Content: reply},
	)
	if len(c.history) > c.cfg.MaxTurns {
		c.history = c.history[len(c.history)-c.cfg.MaxTurns:]
	}
}

func (c *Client) complete(ctx context.Context, endpoint, apiKey, model string, messages []Message) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var ae apiError
		if json.Unmarshal(raw, &ae) == nil && ae.Error.Message != "" {
			return "", fmt.Errorf("completion API error %d: %s", resp.StatusCode, ae.Error.Message)
		}
		return "", fmt.Errorf("completion API error %d", resp.StatusCode)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}
