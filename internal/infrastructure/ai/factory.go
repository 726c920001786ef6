package ai

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/doeshing/autopilot/internal/domain"
	"github.com/doeshing/autopilot/internal/ports"
)

type Factory struct {
	httpClient *http.Client
}

func NewFactory() *Factory {
	return &Factory{
		httpClient: &http.Client{Timeout: domain.DefaultHTTPClientTimeout},
	}
}

// NewFactoryWithClient lets callers supply their own transport.
func NewFactoryWithClient(client *http.Client) *Factory {
	if client == nil {
		return NewFactory()
	}
	return &Factory{httpClient: client}
}

func (f *Factory) ForModel(model domain.ModelDefinition) (ports.Provider, error) {
	providerKind := ResolveKind(model)

	switch providerKind {
	case domain.ProviderKindAnthropic:
		return newHTTPProvider("anthropic", model, f.httpClient, anthropicAdapter()), nil
	case domain.ProviderKindOpenAI:
		return newHTTPProvider("openai", model, f.httpClient, openaiAdapter()), nil
	case domain.ProviderKindOllama:
		return newHTTPProvider("ollama", model, f.httpClient, ollamaAdapter()), nil
	case domain.ProviderKindGemini:
		return newGeminiProvider(model, f.httpClient), nil
	default:
		return nil, fmt.Errorf("model %q: cannot infer provider from endpoint %q; set kind explicitly", model.Name, model.Endpoint)
	}
}

// ResolveKind honours an explicit kind before inferring one from the endpoint.
func ResolveKind(model domain.ModelDefinition) domain.ProviderKind {
	if kind := domain.ProviderKind(strings.ToLower(strings.TrimSpace(model.Kind))); kind != "" {
		switch kind {
		case domain.ProviderKindOpenAI, domain.ProviderKindAnthropic, domain.ProviderKindOllama, domain.ProviderKindGemini:
			return kind
		}
		return domain.ProviderKindUnknown
	}
	return inferProviderKind(model.Endpoint, model.Name)
}

func inferProviderKind(endpoint string, name string) domain.ProviderKind {
	nameLower := strings.ToLower(name)

	switch {
	case strings.Contains(endpoint, "anthropic.com"):
		return domain.ProviderKindAnthropic
	case strings.Contains(endpoint, "openai.com"):
		return domain.ProviderKindOpenAI
	case strings.Contains(endpoint, "generativelanguage.googleapis.com"), strings.Contains(nameLower, "gemini"):
		return domain.ProviderKindGemini
	case strings.Contains(nameLower, "ollama"), strings.Contains(endpoint, "11434"), strings.Contains(endpoint, "localhost"):
		return domain.ProviderKindOllama
	default:
		return domain.ProviderKindUnknown
	}
}

var _ ports.ProviderFactory = (*Factory)(nil)
