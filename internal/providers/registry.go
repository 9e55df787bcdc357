package providers

import (
	"github.com/modelgate/modelgate/internal/models"
)

// Constructor builds a client from a credential secret.
type Constructor func(apiKey string) Client

// registry maps each provider code to its client constructor. The
// provider set is closed and resolved statically, no runtime class
// loading is involved.
var registry = map[models.ProviderCode]Constructor{
	models.ProviderOpenAI:    NewOpenAIClient,
	models.ProviderAnthropic: NewAnthropicClient,
	models.ProviderGoogle:    NewGoogleClient,
	models.ProviderMistral:   NewMistralClient,
}

// constructorFor returns the registered constructor for a provider code.
func constructorFor(code models.ProviderCode) (Constructor, bool) {
	ctor, ok := registry[code]
	return ctor, ok
}
