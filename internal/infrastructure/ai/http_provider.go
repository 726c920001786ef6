package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/doeshing/autopilot/internal/domain"
	"github.com/doeshing/autopilot/internal/ports"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 8 << 20

// maxErrorDetail bounds the body excerpt carried in errors.
const maxErrorDetail = 500

type httpProvider struct {
	name       string
	model      domain.ModelDefinition
	httpClient *http.Client
	adapter    providerAdapter
}

type providerAdapter struct {
	buildRequest  func(domain.ModelDefinition, ports.ProviderRequest) ([]byte, error)
	parseResponse func([]byte, ports.ProviderRequest) (ports.ProviderResponse, error)
	setHeaders    func(*http.Request, domain.ModelDefinition) error
}

func newHTTPProvider(name string, model domain.ModelDefinition, client *http.Client, adapter providerAdapter) ports.Provider {
	return &httpProvider{
		name:       name,
		model:      model,
		httpClient: client,
		adapter:    adapter,
	}
}

func (p *httpProvider) Name() string {
	return p.name
}

func (p *httpProvider) Model() domain.ModelDefinition {
	return p.model
}

func (p *httpProvider) Generate(ctx context.Context, req ports.ProviderRequest) (ports.ProviderResponse, error) {
	requestBody, err := p.adapter.buildRequest(p.model, req)
	if err != nil {
		return ports.ProviderResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.model.Endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return ports.ProviderResponse{}, err
	}

	httpReq.Header.Set("content-type", "application/json")
	if err := p.adapter.setHeaders(httpReq, p.model); err != nil {
		return ports.ProviderResponse{}, err
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return ports.ProviderResponse{}, fmt.Errorf("%s: %w", p.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return ports.ProviderResponse{}, fmt.Errorf("%s: read response: %w", p.name, err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return ports.ProviderResponse{}, &domain.RateLimitError{
			Provider:   p.name,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			Message:    errorDetail(body),
		}
	}
	if resp.StatusCode >= 400 {
		return ports.ProviderResponse{}, fmt.Errorf("%s: %s: %s", p.name, resp.Status, errorDetail(body))
	}

	return p.adapter.parseResponse(body, req)
}

func anthropicAdapter() providerAdapter {
	return providerAdapter{
		buildRequest:  buildAnthropicRequest,
		parseResponse: parseAnthropicResponse,
		setHeaders:    setAnthropicHeaders,
	}
}

func openaiAdapter() providerAdapter {
	return providerAdapter{
		buildRequest:  buildChatCompletionRequest,
		parseResponse: parseChatCompletionResponse,
		setHeaders:    setOpenAIHeaders,
	}
}

func ollamaAdapter() providerAdapter {
	return providerAdapter{
		buildRequest:  buildChatCompletionRequest,
		parseResponse: parseChatCompletionResponse,
		setHeaders:    setOllamaHeaders,
	}
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
}

// jsonPrefill starts the assistant turn so the reply continues a JSON object.
const jsonPrefill = "{"

func buildAnthropicRequest(model domain.ModelDefinition, req ports.ProviderRequest) ([]byte, error) {
	messages := []anthropicMessage{
		{Role: "user", Content: []anthropicContent{{Type: "text", Text: req.User}}},
	}
	if req.JSON {
		messages = append(messages, anthropicMessage{
			Role:    "assistant",
			Content: []anthropicContent{{Type: "text", Text: jsonPrefill}},
		})
	}

	request := anthropicRequest{
		Model:       defaultString(model.ModelID, "claude-3-5-sonnet-20240620"),
		MaxTokens:   defaultInt(model.MaxTokens, 4096),
		System:      strings.TrimSpace(req.System),
		Messages:    messages,
		Temperature: req.Temperature,
	}
	return json.Marshal(request)
}

func parseAnthropicResponse(body []byte, req ports.ProviderRequest) (ports.ProviderResponse, error) {
	var response struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}

	if err := json.Unmarshal(body, &response); err != nil {
		return ports.ProviderResponse{}, fmt.Errorf("anthropic: decode response: %w", err)
	}

	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	out := strings.TrimSpace(text.String())
	if req.JSON && !strings.HasPrefix(out, jsonPrefill) {
		out = jsonPrefill + out
	}
	return ports.ProviderResponse{
		Text:         out,
		InputTokens:  response.Usage.InputTokens,
		OutputTokens: response.Usage.OutputTokens,
	}, nil
}

func setAnthropicHeaders(req *http.Request, model domain.ModelDefinition) error {
	apiKey := getEnv(model.AuthEnvVar, "ANTHROPIC_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("missing API key: set %s or ANTHROPIC_API_KEY", model.AuthEnvVar)
	}
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	return nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream"`
}

func buildChatCompletionRequest(model domain.ModelDefinition, req ports.ProviderRequest) ([]byte, error) {
	messages := make([]chatMessage, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.User})

	request := chatCompletionRequest{
		Model:       defaultString(model.ModelID, model.Name),
		Messages:    messages,
		MaxTokens:   model.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.JSON {
		request.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return json.Marshal(request)
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func parseChatCompletionResponse(body []byte, _ ports.ProviderRequest) (ports.ProviderResponse, error) {
	var response chatCompletionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ports.ProviderResponse{}, fmt.Errorf("chat completion: decode response: %w", err)
	}
	if len(response.Choices) == 0 {
		return ports.ProviderResponse{}, fmt.Errorf("chat completion: response has no choices")
	}
	return ports.ProviderResponse{
		Text:         strings.TrimSpace(response.Choices[0].Message.Content),
		InputTokens:  response.Usage.PromptTokens,
		OutputTokens: response.Usage.CompletionTokens,
	}, nil
}

func setOpenAIHeaders(req *http.Request, model domain.ModelDefinition) error {
	apiKey := getEnv(model.AuthEnvVar, "OPENAI_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("missing API key: set %s or OPENAI_API_KEY", model.AuthEnvVar)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if org := getEnv(model.OrgEnvVar, ""); org != "" {
		req.Header.Set("OpenAI-Organization", org)
	}
	return nil
}

func setOllamaHeaders(req *http.Request, model domain.ModelDefinition) error {
	if apiKey := getEnv(model.AuthEnvVar, ""); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	return nil
}

// parseRetryAfter reads a Retry-After header in either seconds or HTTP-date form.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds * float64(time.Second))
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := at.Sub(now); wait > 0 {
			return wait
		}
	}
	return 0
}

// errorDetail prefers the API's error message over the raw body.
func errorDetail(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	detail := strings.TrimSpace(string(body))
	if len(detail) > maxErrorDetail {
		detail = detail[:maxErrorDetail] + "..."
	}
	return detail
}

func getEnv(primary, fallback string) string {
	if primary != "" {
		if value := os.Getenv(primary); value != "" {
			return value
		}
	}
	if fallback != "" {
		return os.Getenv(fallback)
	}
	return ""
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func defaultInt(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}
