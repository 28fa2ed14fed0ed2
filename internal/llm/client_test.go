package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/duet/internal/config"
	"github.com/soyeahso/duet/internal/logging"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

// --- Registry tests ---

func TestRegistryRegisterAndResolve(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("test-provider", &MockClient{ProviderName: "test-provider"})

	client, err := reg.Resolve("test-provider")
	require.NoError(t, err)
	assert.Equal(t, "test-provider", client.Name())
}

func TestRegistryAlias(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("claude", &MockClient{ProviderName: "claude"})
	reg.Alias("sonnet", "claude")

	client, err := reg.Resolve("sonnet")
	require.NoError(t, err)
	assert.Equal(t, "claude", client.Name())
}

func TestRegistryFallback(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("default-llm", &MockClient{ProviderName: "default-llm"})
	reg.SetFallback("default-llm")

	client, err := reg.Resolve("unknown-model-xyz")
	require.NoError(t, err)
	assert.Equal(t, "default-llm", client.Name())
}

func TestRegistryResolveNotFound(t *testing.T) {
	_, err := NewRegistry(silentLog()).Resolve("nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no LLM provider")
}

func TestRegistryList(t *testing.T) {
	reg := NewRegistry(silentLog())
	reg.Register("a", &MockClient{ProviderName: "a"})
	reg.Register("b", &MockClient{ProviderName: "b"})
	assert.ElementsMatch(t, []string{"a", "b"}, reg.List())
}

func TestNewRegistryFromConfig(t *testing.T) {
	reg, err := NewRegistryFromConfig(config.TwinConfig{
		Provider:  "claude",
		APIKey:    "sk-test",
		Model:     "claude-sonnet-4-5",
		Fallbacks: []string{"ollama", "ollama:mistral", "gemini"},
	}, silentLog())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"claude", "ollama", "ollama:mistral"}, reg.List())

	c, err := reg.Resolve("haiku")
	require.NoError(t, err)
	assert.Equal(t, "claude", c.Name())

	c, err = reg.Resolve("ollama:mistral")
	require.NoError(t, err)
	require.IsType(t, &OllamaClient{}, c)
	assert.Equal(t, "mistral", c.(*OllamaClient).model)

	c, err = reg.Resolve("ollama")
	require.NoError(t, err)
	assert.Equal(t, DefaultOllamaModel, c.(*OllamaClient).model)
}

func TestNewRegistryFromConfigOpenAI(t *testing.T) {
	// Without a dedicated key the openai fallback is skipped.
	reg, err := NewRegistryFromConfig(config.TwinConfig{
		Provider:  "claude",
		APIKey:    "sk-claude",
		Fallbacks: []string{"openai"},
	}, silentLog())
	require.NoError(t, err)
	assert.Equal(t, []string{"claude"}, reg.List())

	reg, err = NewRegistryFromConfig(config.TwinConfig{
		Provider:     "claude",
		APIKey:       "sk-claude",
		OpenAIAPIKey: "sk-openai",
		Fallbacks:    []string{"openai", "openai:gpt-4o"},
	}, silentLog())
	require.NoError(t, err)
	c, err := reg.Resolve("openai")
	require.NoError(t, err)
	assert.Equal(t, DefaultOpenAIModel, c.(*OpenAIClient).model)
	c, err = reg.Resolve("openai:gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", c.(*OpenAIClient).model)

	reg, err = NewRegistryFromConfig(config.TwinConfig{
		Provider: "openai",
		APIKey:   "sk-openai",
		Model:    "gpt-4.1",
	}, silentLog())
	require.NoError(t, err)
	c, err = reg.Resolve("gpt")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", c.(*OpenAIClient).model)
}

func TestNewRegistryFromConfigErrors(t *testing.T) {
	_, err := NewRegistryFromConfig(config.TwinConfig{Provider: "claude", Model: "m"}, silentLog())
	assert.ErrorContains(t, err, "apiKey")

	_, err = NewRegistryFromConfig(config.TwinConfig{Provider: "gemini"}, silentLog())
	assert.ErrorContains(t, err, "unknown LLM provider")
}

// --- Mock tests ---

func TestMockClientComplete(t *testing.T) {
	mock := &MockClient{
		ProviderName: "test",
		CompleteFunc: func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
			return &CompletionResponse{Content: "The answer is 42", Usage: Usage{InputTokens: 10}}, nil
		},
	}
	resp, err := mock.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "What is the answer?"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "The answer is 42", resp.Content)
	assert.Equal(t, 10, resp.Usage.InputTokens)
}

func TestMockClientDefaultComplete(t *testing.T) {
	resp, err := (&MockClient{ProviderName: "default"}).Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "mock response", resp.Content)
}

// --- HTTP providers ---

func TestClaudeClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-test", body["model"])
		assert.Equal(t, "be brief", body["system"])
		assert.EqualValues(t, 64, body["max_tokens"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","model":"claude-test","stop_reason":"end_turn",
			"content":[{"type":"text","text":"See you "},{"type":"text","text":"Friday!"}],
			"usage":{"input_tokens":12,"output_tokens":4}}`))
	}))
	defer srv.Close()

	c := NewClaudeClient(srv.URL+"/", "sk-test", "claude-test")
	resp, err := c.Complete(context.Background(), CompletionRequest{
		System:    "be brief",
		Messages:  []Message{{Role: RoleUser, Content: "dinner?"}},
		MaxTokens: 64,
	})
	require.NoError(t, err)
	assert.Equal(t, "See you Friday!", resp.Content)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, 4, resp.Usage.OutputTokens)
}

func TestClaudeClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	_, err := NewClaudeClient(srv.URL, "sk", "m").Complete(context.Background(), CompletionRequest{})
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 429, perr.Code)
	assert.Equal(t, "slow down", perr.Message)
}

func TestOllamaClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama3.2", body["model"])
		assert.Equal(t, false, body["stream"])
		assert.Contains(t, body["prompt"], "user: hello")

		_, _ = w.Write([]byte(`{"model":"llama3.2","response":" hi there \n","done":true,"done_reason":"stop","eval_count":3}`))
	}))
	defer srv.Close()

	resp, err := NewOllamaClient(srv.URL, "llama3.2").Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, 3, resp.Usage.OutputTokens)
}

func TestOpenAIClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-openai", r.Header.Get("Authorization"))

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
			MaxTokens int `json:"max_tokens"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-test", body.Model)
		assert.Equal(t, 32, body.MaxTokens)
		if assert.Len(t, body.Messages, 2) {
			assert.Equal(t, "system", body.Messages[0].Role)
			assert.Equal(t, "be brief", body.Messages[0].Content)
			assert.Equal(t, "user", body.Messages[1].Role)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"gpt-test",
			"choices":[{"index":0,"message":{"role":"assistant","content":"Friday works."},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":9,"completion_tokens":3,"total_tokens":12}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(srv.URL+"/v1/", "sk-openai", "gpt-test")
	assert.Equal(t, "openai", c.Name())
	resp, err := c.Complete(context.Background(), CompletionRequest{
		System:    "be brief",
		Messages:  []Message{{Role: RoleUser, Content: "dinner?"}},
		MaxTokens: 32,
	})
	require.NoError(t, err)
	assert.Equal(t, "Friday works.", resp.Content)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, 9, resp.Usage.InputTokens)
	assert.Equal(t, 3, resp.Usage.OutputTokens)
}

func TestOpenAIClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit_exceeded"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIClient(srv.URL+"/v1", "sk", "m").Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "openai", perr.Provider)
	assert.Equal(t, 429, perr.Code)
	assert.Equal(t, "slow down", perr.Message)
}

func TestBuildPrompt(t *testing.T) {
	p := buildPrompt(CompletionRequest{Messages: []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hey"},
	}})
	assert.Equal(t, "user: hi\n\nassistant: hey\n\nassistant: ", p)
}

func TestProviderErrorFormat(t *testing.T) {
	tests := []struct {
		err  ProviderError
		want string
	}{
		{ProviderError{Provider: "a", Message: "fail", Code: 500}, "a: 500 fail"},
		{ProviderError{Provider: "b", Message: "oops"}, "b: oops"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}
