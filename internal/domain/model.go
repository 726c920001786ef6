// Package domain defines core entities and value objects for autopilot.
//
// This file contains generation backend definitions. The domain layer is independent
// of infrastructure concerns.
package domain

// ModelDefinition describes a generation backend declared in the config file.
// Cost rates are expressed in currency units per 1000 tokens.
type ModelDefinition struct {
	Name            string  `yaml:"name" mapstructure:"name"`
	Endpoint        string  `yaml:"endpoint" mapstructure:"endpoint"`
	AuthEnvVar      string  `yaml:"auth_env_var" mapstructure:"auth_env_var"`
	OrgEnvVar       string  `yaml:"org_env_var,omitempty" mapstructure:"org_env_var"`
	ModelID         string  `yaml:"model_id" mapstructure:"model_id"`
	MaxTokens       int     `yaml:"max_tokens,omitempty" mapstructure:"max_tokens"`
	Temperature     float64 `yaml:"temperature" mapstructure:"temperature"`
	InputCostPer1K  float64 `yaml:"input_cost_per_1k" mapstructure:"input_cost_per_1k"`
	OutputCostPer1K float64 `yaml:"output_cost_per_1k" mapstructure:"output_cost_per_1k"`
	Kind            string  `yaml:"kind,omitempty" mapstructure:"kind"`
}

// ProviderKind identifies the API family behind a model endpoint.
type ProviderKind string

const (
	ProviderKindOpenAI    ProviderKind = "openai"
	ProviderKindAnthropic ProviderKind = "anthropic"
	ProviderKindOllama    ProviderKind = "ollama"
	ProviderKindGemini    ProviderKind = "gemini"
	ProviderKindUnknown   ProviderKind = "unknown"
)

// Pricing returns the per-token rates of the model.
func (m ModelDefinition) Pricing() Pricing {
	return Pricing{
		InputPerToken:  m.InputCostPer1K / 1000,
		OutputPerToken: m.OutputCostPer1K / 1000,
	}
}

// Pricing holds per-token generation rates.
type Pricing struct {
	InputPerToken  float64
	OutputPerToken float64
}

// PerToken is the summed cost of one input and one output token.
func (p Pricing) PerToken() float64 {
	return p.InputPerToken + p.OutputPerToken
}
