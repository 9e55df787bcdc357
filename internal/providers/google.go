package providers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/modelgate/modelgate/internal/models"
	"github.com/modelgate/modelgate/internal/pricing"
)

const googleBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// googleClient talks to the Gemini generateContent API.
type googleClient struct {
	transport *transport
}

// NewGoogleClient builds a client for the Gemini API.
func NewGoogleClient(apiKey string) Client {
	return &googleClient{
		transport: newTransport(googleBaseURL, func(req *http.Request) {
			req.Header.Set("x-goog-api-key", apiKey)
		}),
	}
}

func (c *googleClient) Code() models.ProviderCode { return models.ProviderGoogle }

type googlePart struct {
	Text string `json:"text"`
}

type googleContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []googlePart `json:"parts"`
}

type googleRequest struct {
	Contents          []googleContent `json:"contents"`
	SystemInstruction *googleContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  struct {
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
		Temperature     float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type googleResponse struct {
	Candidates []struct {
		Content googleContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// googleBody converts a request to the Gemini shape. Gemini uses the
// role "model" for assistant turns and a separate systemInstruction.
func googleBody(req Request, messages []Message) googleRequest {
	var body googleRequest
	body.GenerationConfig.MaxOutputTokens = req.MaxTokens
	body.GenerationConfig.Temperature = req.Temperature
	if req.SystemPrompt != "" {
		body.SystemInstruction = &googleContent{Parts: []googlePart{{Text: req.SystemPrompt}}}
	}
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			if body.SystemInstruction == nil {
				body.SystemInstruction = &googleContent{Parts: []googlePart{{Text: m.Content}}}
			}
		case models.RoleAssistant:
			body.Contents = append(body.Contents, googleContent{Role: "model", Parts: []googlePart{{Text: m.Content}}})
		default:
			body.Contents = append(body.Contents, googleContent{Role: "user", Parts: []googlePart{{Text: m.Content}}})
		}
	}
	return body
}

func (c *googleClient) Generate(ctx context.Context, req Request) (*Result, *ClientError) {
	return c.complete(ctx, req, []Message{{Role: models.RoleUser, Content: req.Prompt}})
}

// GenerateConversation sends the full ordered context as Gemini turns.
func (c *googleClient) GenerateConversation(ctx context.Context, req Request) (*Result, *ClientError) {
	return c.complete(ctx, req, req.Messages)
}

func (c *googleClient) complete(ctx context.Context, req Request, messages []Message) (*Result, *ClientError) {
	endpoint := fmt.Sprintf("/models/%s:generateContent", req.Model)
	var resp googleResponse
	if errCall := c.transport.postJSON(ctx, endpoint, googleBody(req, messages), &resp); errCall != nil {
		return nil, errCall
	}
	if len(resp.Candidates) == 0 {
		return nil, &ClientError{Type: ErrorAPI, Message: "empty candidates in response"}
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		text += part.Text
	}
	var tokens TokenUsage
	if resp.UsageMetadata != nil {
		tokens = TokenUsage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	} else {
		tokens = estimateUsage(c, messages, text, req.Model)
	}
	return &Result{
		Text:     text,
		Tokens:   tokens,
		Cost:     c.Cost(tokens.PromptTokens, tokens.CompletionTokens, req.Model),
		Model:    req.Model,
		Provider: models.ProviderGoogle,
	}, nil
}

func (c *googleClient) Stream(ctx context.Context, req Request) (<-chan StreamChunk, *ClientError) {
	return c.stream(ctx, req, []Message{{Role: models.RoleUser, Content: req.Prompt}})
}

func (c *googleClient) StreamConversation(ctx context.Context, req Request) (<-chan StreamChunk, *ClientError) {
	return c.stream(ctx, req, req.Messages)
}

func (c *googleClient) stream(ctx context.Context, req Request, messages []Message) (<-chan StreamChunk, *ClientError) {
	endpoint := fmt.Sprintf("/models/%s:streamGenerateContent?alt=sse", req.Model)
	raw, errOpen := c.transport.postStream(ctx, endpoint, googleBody(req, messages))
	if errOpen != nil {
		return nil, errOpen
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer func() { _ = raw.Close() }()

		var usage TokenUsage
		scanner := bufio.NewScanner(raw)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			data, ok := sseData(scanner.Text())
			if !ok {
				continue
			}
			var event googleResponse
			if errDecode := json.Unmarshal([]byte(data), &event); errDecode != nil {
				continue
			}
			if event.UsageMetadata != nil {
				usage = TokenUsage{
					PromptTokens:     event.UsageMetadata.PromptTokenCount,
					CompletionTokens: event.UsageMetadata.CandidatesTokenCount,
					TotalTokens:      event.UsageMetadata.TotalTokenCount,
				}
			}
			if len(event.Candidates) == 0 {
				continue
			}
			var delta string
			for _, part := range event.Candidates[0].Content.Parts {
				delta += part.Text
			}
			if delta == "" {
				continue
			}
			if !emitChunk(ctx, out, StreamChunk{Delta: delta}) {
				return
			}
		}
		if errScan := scanner.Err(); errScan != nil && ctx.Err() == nil {
			emitChunk(ctx, out, StreamChunk{Done: true, Err: &ClientError{Type: ErrorAPI, Message: errScan.Error()}})
			return
		}
		emitChunk(ctx, out, StreamChunk{
			Done:   true,
			Tokens: &usage,
			Cost:   c.Cost(usage.PromptTokens, usage.CompletionTokens, req.Model),
		})
	}()
	return out, nil
}

func (c *googleClient) CountTokens(text, model string) TokenCount {
	return countTokens(text, model)
}

func (c *googleClient) Cost(promptTokens, completionTokens int, model string) float64 {
	return pricing.BuiltinCost(models.ProviderGoogle, model, promptTokens, completionTokens)
}
