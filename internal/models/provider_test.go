package models

import "testing"

func TestParseProviderCode(t *testing.T) {
	code, errParse := ParseProviderCode("  OpenAI ")
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if code != ProviderOpenAI {
		t.Fatalf("expected openai, got %s", code)
	}

	if _, errUnknown := ParseProviderCode("aws"); errUnknown == nil {
		t.Fatalf("expected error for unknown code")
	}
}

func TestValidateModelCode(t *testing.T) {
	valid := []struct {
		provider ProviderCode
		code     string
	}{
		{ProviderOpenAI, "gpt-4o"},
		{ProviderOpenAI, "o1-preview"},
		{ProviderAnthropic, "claude-3-opus"},
		{ProviderGoogle, "gemini-1.5-pro"},
		{ProviderMistral, "open-mixtral-8x7b"},
		{ProviderMistral, "codestral-latest"},
	}
	for _, tc := range valid {
		if errValidate := ValidateModelCode(tc.provider, tc.code); errValidate != nil {
			t.Fatalf("%s/%s should validate: %v", tc.provider, tc.code, errValidate)
		}
	}

	invalid := []struct {
		provider ProviderCode
		code     string
	}{
		{ProviderOpenAI, "claude-3-opus"},
		{ProviderAnthropic, "gpt-4"},
		{ProviderGoogle, ""},
		{ProviderCode("aws"), "titan"},
	}
	for _, tc := range invalid {
		if errValidate := ValidateModelCode(tc.provider, tc.code); errValidate == nil {
			t.Fatalf("%s/%q should not validate", tc.provider, tc.code)
		}
	}
}

func TestValidateParameters(t *testing.T) {
	model := AIModel{MaxContextLength: 8192}

	if errValidate := model.ValidateParameters(4096, 0.7); errValidate != nil {
		t.Fatalf("in-range parameters should validate: %v", errValidate)
	}
	if errValidate := model.ValidateParameters(9000, 0.7); errValidate == nil {
		t.Fatalf("max_tokens beyond context must fail")
	}
	if errValidate := model.ValidateParameters(100, 1.5); errValidate == nil {
		t.Fatalf("temperature above 1 must fail")
	}
	if errValidate := model.ValidateParameters(100, -0.1); errValidate == nil {
		t.Fatalf("negative temperature must fail")
	}
	if errValidate := model.ValidateParameters(0, 0); errValidate != nil {
		t.Fatalf("zero values are unset, not invalid: %v", errValidate)
	}
}

func TestDetectProviderCode(t *testing.T) {
	cases := []struct {
		secret string
		want   ProviderCode
	}{
		{"sk-ant-api03-xyz", ProviderAnthropic},
		{"sk-proj-0123456789012345678901234567890123456789012345678", ProviderOpenAI},
		{"AIzaSyExample", ProviderGoogle},
		{"mis-example", ProviderMistral},
		{"sk-short", ""},
		{"", ""},
		{"random", ""},
	}
	for _, tc := range cases {
		if got := DetectProviderCode(tc.secret); got != tc.want {
			t.Fatalf("secret %q: expected %q, got %q", tc.secret, tc.want, got)
		}
	}
}

func TestMessageValidate(t *testing.T) {
	ok := Message{Role: RoleUser, Content: "hi"}
	if errValidate := ok.Validate(); errValidate != nil {
		t.Fatalf("valid message rejected: %v", errValidate)
	}

	badRole := Message{Role: "robot", Content: "hi"}
	if errValidate := badRole.Validate(); errValidate == nil {
		t.Fatalf("unknown role must fail")
	}

	empty := Message{Role: RoleUser}
	if errValidate := empty.Validate(); errValidate == nil {
		t.Fatalf("empty content must fail")
	}
}

func TestValidEmail(t *testing.T) {
	if !ValidEmail("user@example.com") {
		t.Fatalf("plain address should validate")
	}
	for _, bad := range []string{"", "user", "user@", "@example.com", "a b@example.com"} {
		if ValidEmail(bad) {
			t.Fatalf("%q should not validate", bad)
		}
	}
}

func TestProviderUsable(t *testing.T) {
	inactive := Provider{IsActive: false, Models: []AIModel{{IsActive: true}}}
	if inactive.Usable() {
		t.Fatalf("inactive provider is not usable")
	}
	noModels := Provider{IsActive: true}
	if noModels.Usable() {
		t.Fatalf("provider without active models is not usable")
	}
	usable := Provider{IsActive: true, Models: []AIModel{{IsActive: false}, {IsActive: true}}}
	if !usable.Usable() {
		t.Fatalf("provider with an active model is usable")
	}
}
