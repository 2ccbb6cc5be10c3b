package model

import "fmt"

// Provider identifies an external AI service whose API key is managed.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGoogle    Provider = "google"
	ProviderQwen      Provider = "qwen"
)

// providerEnvVars maps each supported provider to the environment variable
// consulted when no stored credential exists.
var providerEnvVars = map[Provider]string{
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderOpenAI:    "OPENAI_API_KEY",
	ProviderGoogle:    "GOOGLE_API_KEY",
	ProviderQwen:      "QWEN_API_KEY",
}

// SupportedProviders returns every supported provider in a stable order.
func SupportedProviders() []Provider {
	return []Provider{ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderQwen}
}

// Valid reports whether p belongs to the supported provider set.
func (p Provider) Valid() bool {
	_, ok := providerEnvVars[p]
	return ok
}

// EnvVar returns the fallback environment variable name for p, or "" when p
// is not supported.
func (p Provider) EnvVar() string {
	return providerEnvVars[p]
}

// ParseProvider validates s and returns it as a Provider.
func ParseProvider(s string) (Provider, error) {
	p := Provider(s)
	if !p.Valid() {
		return "", &ValidationError{Field: "provider", Message: fmt.Sprintf("unsupported provider %q", s)}
	}
	return p, nil
}

// ProviderNames returns the supported provider identifiers as strings.
func ProviderNames() []string {
	providers := SupportedProviders()
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = string(p)
	}
	return names
}
