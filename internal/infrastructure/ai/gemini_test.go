package ai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/doeshing/autopilot/internal/domain"
	"github.com/doeshing/autopilot/internal/ports"
)

func geminiServer(t *testing.T, status int, reply string, path *string, body *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		*path = r.URL.Path
		*body = string(raw)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGeminiProviderGenerate(t *testing.T) {
	t.Setenv("AUTOPILOT_TEST_GEMINI_KEY", "g-key")
	var path, body string
	srv := geminiServer(t, http.StatusOK, `{
		"candidates":[{"content":{"role":"model","parts":[{"text":"{\"prompt\":\"next\"}"}]}}],
		"usageMetadata":{"promptTokenCount":12,"candidatesTokenCount":4}
	}`, &path, &body)

	provider := newGeminiProvider(domain.ModelDefinition{
		Name:       "gemini",
		Endpoint:   srv.URL + "/v1beta/models/gemini-2.0-flash:generateContent",
		AuthEnvVar: "AUTOPILOT_TEST_GEMINI_KEY",
		ModelID:    "gemini-2.0-flash",
	}, srv.Client())

	resp, err := provider.Generate(context.Background(), ports.ProviderRequest{System: "rules", User: "do it", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"prompt":"next"}`, resp.Text)
	assert.Equal(t, 12, resp.InputTokens)
	assert.Equal(t, 4, resp.OutputTokens)
	assert.True(t, strings.HasSuffix(path, "/models/gemini-2.0-flash:generateContent"), path)
	assert.Contains(t, body, "do it")
	assert.Contains(t, body, "application/json")
}

func TestGeminiProviderRateLimited(t *testing.T) {
	t.Setenv("AUTOPILOT_TEST_GEMINI_KEY", "g-key")
	var path, body string
	srv := geminiServer(t, http.StatusTooManyRequests, `{"error":{
		"code":429,
		"message":"Quota exceeded for generate_content_free_tier_requests.",
		"status":"RESOURCE_EXHAUSTED",
		"details":[{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"20s"}]
	}}`, &path, &body)

	provider := newGeminiProvider(domain.ModelDefinition{
		Name:       "gemini",
		Endpoint:   srv.URL,
		AuthEnvVar: "AUTOPILOT_TEST_GEMINI_KEY",
	}, srv.Client())

	_, err := provider.Generate(context.Background(), ports.ProviderRequest{User: "hi"})
	var rateLimited *domain.RateLimitError
	require.True(t, errors.As(err, &rateLimited), "got %v", err)
	assert.Equal(t, 20*time.Second, rateLimited.RetryAfter)
	assert.Contains(t, rateLimited.Message, "Quota exceeded")
}

func TestClassifyGeminiError(t *testing.T) {
	plain := classifyGeminiError(errors.New("dial tcp: connection refused"))
	var rateLimited *domain.RateLimitError
	assert.False(t, errors.As(plain, &rateLimited))

	// A message mentioning 429 is not a quota error by itself.
	assert.False(t, errors.As(classifyGeminiError(errors.New("read 429 bytes")), &rateLimited))

	badRequest := classifyGeminiError(genai.APIError{Code: 400, Status: "INVALID_ARGUMENT", Message: "bad"})
	assert.False(t, errors.As(badRequest, &rateLimited))

	quota := classifyGeminiError(genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "slow down"})
	require.True(t, errors.As(quota, &rateLimited))
	assert.Zero(t, rateLimited.RetryAfter)
}

func TestGeminiBaseURL(t *testing.T) {
	assert.Equal(t, "", geminiBaseURL(""))
	assert.Equal(t, "http://127.0.0.1:8080/", geminiBaseURL("http://127.0.0.1:8080/v1beta/models/x:generateContent"))
	assert.Equal(t, "", geminiBaseURL("not a url"))
}
