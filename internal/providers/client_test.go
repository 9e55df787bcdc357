package providers

import (
	"net/http"
	"testing"

	"github.com/modelgate/modelgate/internal/models"
)

func TestAPIErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		want   ErrorType
	}{
		{http.StatusTooManyRequests, ErrorRateLimit},
		{http.StatusPaymentRequired, ErrorBilling},
		{http.StatusForbidden, ErrorBilling},
		{http.StatusBadRequest, ErrorInvalidContext},
		{http.StatusRequestEntityTooLarge, ErrorInvalidContext},
		{http.StatusGatewayTimeout, ErrorTimeout},
		{http.StatusRequestTimeout, ErrorTimeout},
		{http.StatusInternalServerError, ErrorAPI},
		{http.StatusNotFound, ErrorAPI},
	}
	for _, tc := range cases {
		got := apiError(tc.status, "boom")
		if got.Type != tc.want {
			t.Fatalf("status %d: expected %s, got %s", tc.status, tc.want, got.Type)
		}
		if got.Message != "boom" {
			t.Fatalf("status %d: message lost: %q", tc.status, got.Message)
		}
	}
}

func TestCountTokensNonEmptyText(t *testing.T) {
	count := countTokens("The quick brown fox jumps over the lazy dog.", "gpt-3.5-turbo")
	if count.Count <= 0 {
		t.Fatalf("expected positive token count, got %d", count.Count)
	}
}

func TestClientCacheInvalidate(t *testing.T) {
	cache := NewClientCache()
	client := NewOpenAIClient("sk-test")

	cache.Put(7, client)
	if cached, ok := cache.Get(7); !ok || cached != client {
		t.Fatalf("expected cached client back")
	}

	cache.Invalidate(7)
	if _, ok := cache.Get(7); ok {
		t.Fatalf("expected entry dropped after invalidate")
	}
}

func TestClientCacheClear(t *testing.T) {
	cache := NewClientCache()
	cache.Put(1, NewOpenAIClient("sk-a"))
	cache.Put(2, NewMistralClient("mis-b"))

	cache.Clear()

	if _, ok := cache.Get(1); ok {
		t.Fatalf("expected cache emptied")
	}
	if _, ok := cache.Get(2); ok {
		t.Fatalf("expected cache emptied")
	}
}

func TestRegistryCoversKnownProviders(t *testing.T) {
	for _, code := range models.KnownProviderCodes {
		ctor, ok := constructorFor(code)
		if !ok {
			t.Fatalf("no constructor for %s", code)
		}
		client := ctor("test-key")
		if client.Code() != code {
			t.Fatalf("constructor for %s built client reporting %s", code, client.Code())
		}
	}
}
