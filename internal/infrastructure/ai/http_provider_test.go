package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/autopilot/internal/domain"
	"github.com/doeshing/autopilot/internal/ports"
)

func captureServer(t *testing.T, status int, reply string, headers map[string]string, seen *map[string]interface{}, seenHeader *http.Header) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if seen != nil {
			_ = json.Unmarshal(body, seen)
		}
		if seenHeader != nil {
			*seenHeader = r.Header.Clone()
		}
		for k, v := range headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIProviderGenerate(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	var body map[string]interface{}
	var header http.Header
	srv := captureServer(t, http.StatusOK,
		`{"choices":[{"message":{"role":"assistant","content":" {\"cmd\":\"ls\"} "}}],"usage":{"prompt_tokens":120,"completion_tokens":30}}`,
		nil, &body, &header)

	model := domain.ModelDefinition{Name: "gpt", Endpoint: srv.URL, AuthEnvVar: "TEST_OPENAI_KEY", ModelID: "gpt-4o", Kind: "openai"}
	provider, err := NewFactoryWithClient(srv.Client()).ForModel(model)
	require.NoError(t, err)

	resp, err := provider.Generate(context.Background(), ports.ProviderRequest{System: "rules", User: "go", Temperature: 0.6, JSON: true})
	require.NoError(t, err)

	assert.Equal(t, `{"cmd":"ls"}`, resp.Text)
	assert.Equal(t, 120, resp.InputTokens)
	assert.Equal(t, 30, resp.OutputTokens)
	assert.Equal(t, "Bearer sk-test", header.Get("Authorization"))
	assert.Equal(t, "gpt-4o", body["model"])
	assert.Equal(t, 0.6, body["temperature"])
	assert.Equal(t, map[string]interface{}{"type": "json_object"}, body["response_format"])
	messages, ok := body["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
}

func TestAnthropicProviderRestoresPrefill(t *testing.T) {
	t.Setenv("TEST_ANTHROPIC_KEY", "ak-test")
	var body map[string]interface{}
	var header http.Header
	srv := captureServer(t, http.StatusOK,
		`{"content":[{"type":"text","text":"\"prompt\":\"next\"}"}],"usage":{"input_tokens":50,"output_tokens":8}}`,
		nil, &body, &header)

	model := domain.ModelDefinition{Name: "claude", Endpoint: srv.URL, AuthEnvVar: "TEST_ANTHROPIC_KEY", Kind: "anthropic"}
	provider, err := NewFactoryWithClient(srv.Client()).ForModel(model)
	require.NoError(t, err)

	resp, err := provider.Generate(context.Background(), ports.ProviderRequest{System: "rules", User: "go", JSON: true})
	require.NoError(t, err)

	assert.Equal(t, `{"prompt":"next"}`, resp.Text)
	assert.Equal(t, 50, resp.InputTokens)
	assert.Equal(t, 8, resp.OutputTokens)
	assert.Equal(t, "ak-test", header.Get("x-api-key"))
	assert.Equal(t, "2023-06-01", header.Get("anthropic-version"))
	assert.Equal(t, "rules", body["system"])
	assert.EqualValues(t, 4096, body["max_tokens"])
}

func TestProviderRateLimitError(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	srv := captureServer(t, http.StatusTooManyRequests,
		`{"error":{"message":"Rate limit reached. Please try again in 2.5s.","type":"tokens"}}`,
		map[string]string{"Retry-After": "3"}, nil, nil)

	model := domain.ModelDefinition{Name: "gpt", Endpoint: srv.URL, AuthEnvVar: "TEST_OPENAI_KEY", Kind: "openai"}
	provider, err := NewFactoryWithClient(srv.Client()).ForModel(model)
	require.NoError(t, err)

	_, err = provider.Generate(context.Background(), ports.ProviderRequest{User: "go"})
	var rateLimited *domain.RateLimitError
	require.True(t, errors.As(err, &rateLimited))
	assert.Equal(t, 3*time.Second, rateLimited.RetryAfter)
	assert.Contains(t, rateLimited.Message, "try again in 2.5s")
}

func TestProviderServerError(t *testing.T) {
	srv := captureServer(t, http.StatusInternalServerError, "upstream exploded", nil, nil, nil)

	model := domain.ModelDefinition{Name: "local", Endpoint: srv.URL, Kind: "ollama"}
	provider, err := NewFactoryWithClient(srv.Client()).ForModel(model)
	require.NoError(t, err)

	_, err = provider.Generate(context.Background(), ports.ProviderRequest{User: "go"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama: 500")
	assert.Contains(t, err.Error(), "upstream exploded")
}

func TestMissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	model := domain.ModelDefinition{Name: "gpt", Endpoint: "https://api.openai.com/v1/chat/completions", AuthEnvVar: "TEST_UNSET_KEY"}
	provider, err := NewFactory().ForModel(model)
	require.NoError(t, err)

	_, err = provider.Generate(context.Background(), ports.ProviderRequest{User: "go"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing API key")
}

func TestResolveKind(t *testing.T) {
	tests := []struct {
		model domain.ModelDefinition
		want  domain.ProviderKind
	}{
		{domain.ModelDefinition{Endpoint: "https://api.openai.com/v1/chat/completions"}, domain.ProviderKindOpenAI},
		{domain.ModelDefinition{Endpoint: "https://api.anthropic.com/v1/messages"}, domain.ProviderKindAnthropic},
		{domain.ModelDefinition{Name: "gemini-flash"}, domain.ProviderKindGemini},
		{domain.ModelDefinition{Endpoint: "http://localhost:11434/v1/chat/completions"}, domain.ProviderKindOllama},
		{domain.ModelDefinition{Endpoint: "https://llm.internal/v1", Kind: "OpenAI"}, domain.ProviderKindOpenAI},
		{domain.ModelDefinition{Endpoint: "https://llm.internal/v1"}, domain.ProviderKindUnknown},
		{domain.ModelDefinition{Endpoint: "https://api.openai.com", Kind: "bogus"}, domain.ProviderKindUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ResolveKind(tt.model), "model %+v", tt.model)
	}
}

func TestForModelRejectsUnknownKind(t *testing.T) {
	_, err := NewFactory().ForModel(domain.ModelDefinition{Name: "mystery", Endpoint: "https://llm.internal/v1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set kind explicitly")
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 2*time.Second, parseRetryAfter("2", now))
	assert.Equal(t, 1500*time.Millisecond, parseRetryAfter("1.5", now))
	assert.Equal(t, 30*time.Second, parseRetryAfter(now.Add(30*time.Second).Format(http.TimeFormat), now))
	assert.Zero(t, parseRetryAfter("", now))
	assert.Zero(t, parseRetryAfter("soon", now))
}
