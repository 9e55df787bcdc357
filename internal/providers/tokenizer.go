package providers

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// fallbackEncoding is used when a model has no exact tokenizer.
const fallbackEncoding = "cl100k_base"

var (
	encodingMu    sync.Mutex
	encodingCache = map[string]*tiktoken.Tiktoken{}
)

// encodingForModel returns a cached tokenizer for the model, trying the
// model-specific encoding first and the generic one second. Returns nil
// when neither can be loaded.
func encodingForModel(model string) (enc *tiktoken.Tiktoken, exact bool) {
	encodingMu.Lock()
	defer encodingMu.Unlock()
	if cached, ok := encodingCache[model]; ok {
		return cached, true
	}
	if loaded, err := tiktoken.EncodingForModel(model); err == nil {
		encodingCache[model] = loaded
		return loaded, true
	}
	if cached, ok := encodingCache[fallbackEncoding]; ok {
		return cached, false
	}
	if loaded, err := tiktoken.GetEncoding(fallbackEncoding); err == nil {
		encodingCache[fallbackEncoding] = loaded
		return loaded, false
	}
	return nil, false
}

// countTokens counts tokens in text, preferring the model's exact
// tokenizer, then the generic encoding, then a length/4 heuristic
// flagged as estimated.
func countTokens(text, model string) TokenCount {
	if enc, _ := encodingForModel(model); enc != nil {
		return TokenCount{Count: len(enc.Encode(text, nil, nil))}
	}
	return TokenCount{Count: len(text) / 4, Estimated: true}
}
