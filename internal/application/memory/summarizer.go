package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/doeshing/autopilot/internal/application/budget"
	"github.com/doeshing/autopilot/internal/domain"
	"github.com/doeshing/autopilot/internal/ports"
)

// summaryTemperature keeps summaries close to the source text.
const summaryTemperature = 0.2

// GenerationSummarizer summarizes through the generation backend under the daily budget.
type GenerationSummarizer struct {
	Provider ports.Provider
	Governor *budget.Governor
}

// NewGenerationSummarizer wires a provider and the shared governor.
func NewGenerationSummarizer(provider ports.Provider, governor *budget.Governor) (*GenerationSummarizer, error) {
	if provider == nil || governor == nil {
		return nil, errors.New("memory.GenerationSummarizer dependencies not satisfied")
	}
	return &GenerationSummarizer{Provider: provider, Governor: governor}, nil
}

// Summarize implements ports.Summarizer.
func (s *GenerationSummarizer) Summarize(ctx context.Context, instruction, text string) (string, error) {
	prompt := instruction + " " + text
	if !s.Governor.CanAfford(s.Governor.EstimateCost(budget.EstimateTokens(prompt))) {
		return "", fmt.Errorf("summarize: %w", domain.ErrBudgetExhausted)
	}
	resp, err := s.Provider.Generate(ctx, ports.ProviderRequest{
		System:      instruction,
		User:        text,
		Temperature: summaryTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	s.Governor.RecordSpend(s.Governor.UsageCost(resp.InputTokens, resp.OutputTokens, prompt, resp.Text))
	return resp.Text, nil
}

var _ ports.Summarizer = (*GenerationSummarizer)(nil)
