package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/doeshing/autopilot/internal/domain"
	"github.com/doeshing/autopilot/internal/ports"
)

const defaultGeminiModel = "gemini-2.0-flash"

type geminiProvider struct {
	model      domain.ModelDefinition
	httpClient *http.Client

	mu     sync.Mutex
	client *genai.Client
}

func newGeminiProvider(model domain.ModelDefinition, httpClient *http.Client) ports.Provider {
	return &geminiProvider{model: model, httpClient: httpClient}
}

func (p *geminiProvider) Name() string {
	return "gemini"
}

func (p *geminiProvider) Model() domain.ModelDefinition {
	return p.model
}

func (p *geminiProvider) connect(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	apiKey := getEnv(p.model.AuthEnvVar, "GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("missing API key: set %s or GEMINI_API_KEY", p.model.AuthEnvVar)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  p.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: geminiBaseURL(p.model.Endpoint)},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	p.client = client
	return client, nil
}

func (p *geminiProvider) Generate(ctx context.Context, req ports.ProviderRequest) (ports.ProviderResponse, error) {
	client, err := p.connect(ctx)
	if err != nil {
		return ports.ProviderResponse{}, err
	}

	config := &genai.GenerateContentConfig{
		Temperature: ptr(float32(req.Temperature)),
	}
	if system := strings.TrimSpace(req.System); system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}
	if p.model.MaxTokens > 0 {
		config.MaxOutputTokens = int32(p.model.MaxTokens)
	}

	resp, err := client.Models.GenerateContent(ctx, defaultString(p.model.ModelID, defaultGeminiModel), genai.Text(req.User), config)
	if err != nil {
		return ports.ProviderResponse{}, classifyGeminiError(err)
	}

	out := ports.ProviderResponse{Text: strings.TrimSpace(resp.Text())}
	if usage := resp.UsageMetadata; usage != nil {
		out.InputTokens = int(usage.PromptTokenCount)
		out.OutputTokens = int(usage.CandidatesTokenCount)
	}
	return out, nil
}

// geminiBaseURL keeps only the scheme and host of a configured endpoint; the
// SDK appends the API version and method path itself. Empty means the default.
func geminiBaseURL(endpoint string) string {
	if strings.TrimSpace(endpoint) == "" {
		return ""
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/"
}

// classifyGeminiError turns quota failures into rate-limit errors.
func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("gemini: %w", err)
	}
	if apiErr.Code != http.StatusTooManyRequests && apiErr.Status != "RESOURCE_EXHAUSTED" {
		return fmt.Errorf("gemini: %w", err)
	}
	return &domain.RateLimitError{
		Provider:   "gemini",
		RetryAfter: geminiRetryDelay(apiErr.Details),
		Message:    apiErr.Message,
	}
}

// geminiRetryDelay reads google.rpc.RetryInfo from the error details.
func geminiRetryDelay(details []map[string]any) time.Duration {
	for _, detail := range details {
		kind, _ := detail["@type"].(string)
		if !strings.HasSuffix(kind, "google.rpc.RetryInfo") {
			continue
		}
		raw, _ := detail["retryDelay"].(string)
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return 0
}

func ptr[T any](v T) *T {
	return &v
}
