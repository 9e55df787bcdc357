package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/modelgate/modelgate/internal/models"
)

func newTestGoogleClient(serverURL string) *googleClient {
	return &googleClient{
		transport: newTransport(serverURL, func(req *http.Request) {
			req.Header.Set("x-goog-api-key", "AIza-test")
		}),
	}
}

func TestGoogleBodyRoleMapping(t *testing.T) {
	body := googleBody(Request{}, []Message{
		{Role: models.RoleSystem, Content: "be terse"},
		{Role: models.RoleUser, Content: "question"},
		{Role: models.RoleAssistant, Content: "answer"},
	})

	if body.SystemInstruction == nil || body.SystemInstruction.Parts[0].Text != "be terse" {
		t.Fatalf("expected system instruction, got %+v", body.SystemInstruction)
	}
	if len(body.Contents) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(body.Contents))
	}
	if body.Contents[0].Role != "user" {
		t.Fatalf("expected user role, got %q", body.Contents[0].Role)
	}
	if body.Contents[1].Role != "model" {
		t.Fatalf("assistant must map to model role, got %q", body.Contents[1].Role)
	}
}

func TestGoogleGenerate(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "four"}]}}],
			"usageMetadata": {"promptTokenCount": 6, "candidatesTokenCount": 1, "totalTokenCount": 7}
		}`))
	}))
	defer server.Close()

	client := newTestGoogleClient(server.URL)
	result, errGen := client.Generate(context.Background(), Request{
		Model:  "gemini-1.5-flash",
		Prompt: "2+2",
	})
	if errGen != nil {
		t.Fatalf("generate: %v", errGen)
	}
	if gotPath != "/models/gemini-1.5-flash:generateContent" {
		t.Fatalf("unexpected endpoint %q", gotPath)
	}
	if result.Text != "four" {
		t.Fatalf("unexpected text %q", result.Text)
	}
	if result.Tokens.TotalTokens != 7 {
		t.Fatalf("expected usage metadata passthrough, got %+v", result.Tokens)
	}
}

func TestGoogleGenerateEmptyCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": []}`))
	}))
	defer server.Close()

	client := newTestGoogleClient(server.URL)
	_, errGen := client.Generate(context.Background(), Request{Model: "gemini-1.5-flash", Prompt: "hi"})
	if errGen == nil || errGen.Type != ErrorAPI {
		t.Fatalf("expected api_error for empty candidates, got %v", errGen)
	}
}

func TestGoogleStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "alt=sse" {
			t.Errorf("expected alt=sse query, got %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"fo\"}]}}]}\n\n"))
		_, _ = w.Write([]byte("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"ur\"}]}}],\"usageMetadata\":{\"promptTokenCount\":6,\"candidatesTokenCount\":1,\"totalTokenCount\":7}}\n\n"))
	}))
	defer server.Close()

	client := newTestGoogleClient(server.URL)
	stream, errOpen := client.Stream(context.Background(), Request{Model: "gemini-1.5-flash", Prompt: "2+2"})
	if errOpen != nil {
		t.Fatalf("stream: %v", errOpen)
	}

	var text string
	var terminal *StreamChunk
	for chunk := range stream {
		if chunk.Done {
			c := chunk
			terminal = &c
			continue
		}
		text += chunk.Delta
	}
	if text != "four" {
		t.Fatalf("expected %q, got %q", "four", text)
	}
	if terminal == nil || terminal.Tokens == nil || terminal.Tokens.TotalTokens != 7 {
		t.Fatalf("expected usage on terminal chunk, got %+v", terminal)
	}
}
