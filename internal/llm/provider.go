package llm

import (
	"fmt"

	"github.com/praxislabs/tenet/internal/domain"
)

// Provider constants
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// NewAnalyzer creates a trace analyzer based on the provider name.
// Returns an error if the provider is unknown or the API key is empty (except for mock).
func NewAnalyzer(provider, apiKey string) (domain.TraceAnalyzer, error) {
	switch provider {
	case ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI provider")
		}
		return NewOpenAIAnalyzer(apiKey), nil

	case ProviderAnthropic:
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for Anthropic provider")
		}
		return NewAnthropicAnalyzer(apiKey), nil

	case ProviderMock:
		return NewMockAnalyzer(), nil

	default:
		return nil, fmt.Errorf("unknown analyzer provider: %s (valid options: openai, anthropic, mock)", provider)
	}
}
