package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCompletionServer(t *testing.T, status int, reply string, got *[]chatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if got != nil {
			*got = append(*got, req)
		}
		w.WriteHeader(status)
		if status == http.StatusOK {
			json.NewEncoder(w).Encode(chatResponse{
				Choices: []chatChoice{{Message: Message{Role: "assistant", Content: reply}}},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"message": "boom"}})
	}))
}

func newTestClient(cfg Config) *Client {
	return NewClient(cfg, zerolog.Nop())
}

func TestRespondUsesGroqFirst(t *testing.T) {
	var groqReqs []chatRequest
	groq := newCompletionServer(t, http.StatusOK, "hello there", &groqReqs)
	defer groq.Close()

	c := newTestClient(Config{
		GroqAPIKey:   "gk",
		OpenAIKey:    "ok",
		SystemPrompt: "be brief",
	})
	c.groqURL = groq.URL
	c.openaiURL = "http://127.0.0.1:1" // must not be reached

	reply, err := c.Respond(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello there", reply)

	require.Len(t, groqReqs, 1)
	assert.Equal(t, "llama-3.1-8b-instant", groqReqs[0].Model)
	assert.Equal(t, 400, groqReqs[0].MaxTokens)
	require.Len(t, groqReqs[0].Messages, 2)
	assert.Equal(t, "system", groqReqs[0].Messages[0].Role)
	assert.Equal(t, "be brief", groqReqs[0].Messages[0].Content)
	assert.Equal(t, "user", groqReqs[0].Messages[1].Role)
}

func TestRespondFallsBackToOpenAI(t *testing.T) {
	groq := newCompletionServer(t, http.StatusInternalServerError, "", nil)
	defer groq.Close()
	openai := newCompletionServer(t, http.StatusOK, "from openai", nil)
	defer openai.Close()

	c := newTestClient(Config{GroqAPIKey: "gk", OpenAIKey: "ok"})
	c.groqURL = groq.URL
	c.openaiURL = openai.URL

	reply, err := c.Respond(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "from openai", reply)
}

func TestRespondAllProvidersFail(t *testing.T) {
	groq := newCompletionServer(t, http.StatusInternalServerError, "", nil)
	defer groq.Close()

	c := newTestClient(Config{GroqAPIKey: "gk"})
	c.groqURL = groq.URL

	_, err := c.Respond(context.Background(), "hi")
	assert.Error(t, err)
}

func TestRespondNoKeys(t *testing.T) {
	c := newTestClient(Config{})
	_, err := c.Respond(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestHistoryRetainedAndCapped(t *testing.T) {
	var reqs []chatRequest
	groq := newCompletionServer(t, http.StatusOK, "ok", &reqs)
	defer groq.Close()

	c := newTestClient(Config{GroqAPIKey: "gk", MaxTurns: 4})
	c.groqURL = groq.URL

	for i := 0; i < 5; i++ {
		_, err := c.Respond(context.Background(), "turn")
		require.NoError(t, err)
	}

	// Last request carries the system prompt, at most 4 history messages,
	// and the new user turn.
	last := reqs[len(reqs)-1]
	assert.Len(t, last.Messages, 1+4+1)
	assert.Equal(t, "system", last.Messages[0].Role)
	assert.Equal(t, "user", last.Messages[len(last.Messages)-1].Role)
}

func TestResetHistory(t *testing.T) {
	var reqs []chatRequest
	groq := newCompletionServer(t, http.StatusOK, "ok", &reqs)
	defer groq.Close()

	c := newTestClient(Config{GroqAPIKey: "gk"})
	c.groqURL = groq.URL

	_, err := c.Respond(context.Background(), "first")
	require.NoError(t, err)
	c.ResetHistory()
	_, err = c.Respond(context.Background(), "second")
	require.NoError(t, err)

	last := reqs[len(reqs)-1]
	assert.Len(t, last.Messages, 2)
}
