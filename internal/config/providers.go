// Provider configuration - LLM providers used for generation.
//
// Providers are declared once and referenced by name (generation.provider).
package config

import (
	"fmt"
	"sort"
)

// ProviderConfig configures one LLM provider.
type ProviderConfig struct {
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Endpoint string `yaml:"endpoint,omitempty"` // overrides the resolved endpoint
	Region   string `yaml:"region,omitempty"`   // bedrock only
}

// ProvidersConfig maps provider name ("anthropic", "openai", "gemini", "bedrock", ...) to its config.
type ProvidersConfig map[string]ProviderConfig

// ResolvedProvider is a provider with its endpoint filled in.
type ResolvedProvider struct {
	Provider string
	APIKey   string
	Model    string
	Endpoint string
	Region   string
}

// ResolveProviderEndpoint returns the default endpoint for a provider and model.
// Unknown providers are assumed to speak the OpenAI Chat Completions API.
func ResolveProviderEndpoint(provider, model string) string {
	switch provider {
	case "anthropic":
		return "https://api.anthropic.com/v1/messages"
	case "gemini":
		return fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", model)
	default:
		return "https://api.openai.com/v1/chat/completions"
	}
}

// GetEndpoint returns the configured endpoint or the resolved default.
func (p ProviderConfig) GetEndpoint(providerName string) string {
	if p.Endpoint != "" {
		return p.Endpoint
	}
	if providerName == "bedrock" {
		region := p.Region
		if region == "" {
			region = "us-east-1"
		}
		return fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com/model/%s/invoke", region, p.Model)
	}
	return ResolveProviderEndpoint(providerName, p.Model)
}

// Validate checks every provider entry.
func (pc ProvidersConfig) Validate() error {
	for _, name := range pc.names() {
		if pc[name].Model == "" {
			return fmt.Errorf("providers.%s.model is required", name)
		}
	}
	return nil
}

func (pc ProvidersConfig) names() []string {
	names := make([]string, 0, len(pc))
	for n := range pc {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ResolveProvider looks up a provider by name.
func (c *Config) ResolveProvider(name string) (*ResolvedProvider, error) {
	if name == "" {
		return nil, fmt.Errorf("provider name is required")
	}
	p, ok := c.Providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q is not defined in providers", name)
	}
	return &ResolvedProvider{
		Provider: name,
		APIKey:   p.APIKey,
		Model:    p.Model,
		Endpoint: p.GetEndpoint(name),
		Region:   p.Region,
	}, nil
}

// GetUsedProviderNames returns the provider names the config references.
func GetUsedProviderNames(cfg *Config) []string {
	var names []string
	if cfg.Generation.Strategy == GenerationProvider && cfg.Generation.Provider != "" {
		names = append(names, cfg.Generation.Provider)
	}
	return names
}

// ValidateUsedProviders checks that every referenced provider is defined.
func (c *Config) ValidateUsedProviders() error {
	for _, name := range GetUsedProviderNames(c) {
		p, ok := c.Providers[name]
		if !ok {
			return fmt.Errorf("generation.provider %q is not defined in providers", name)
		}
		if p.APIKey == "" && name != "bedrock" {
			return fmt.Errorf("providers.%s.api_key is required when used for generation", name)
		}
	}
	return nil
}
