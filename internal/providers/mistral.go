package providers

import (
	"net/http"

	"github.com/modelgate/modelgate/internal/models"
)

const mistralBaseURL = "https://api.mistral.ai/v1"

// NewMistralClient builds a client for the Mistral API, which speaks
// the OpenAI chat-completions format.
func NewMistralClient(apiKey string) Client {
	return &chatClient{
		code: models.ProviderMistral,
		transport: newTransport(mistralBaseURL, func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}),
	}
}
