package security

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateParseRoundTrip(t *testing.T) {
	token, errGen := GenerateToken("secret", 42, "alice", "alice@example.com", time.Hour)
	if errGen != nil {
		t.Fatalf("generate: %v", errGen)
	}

	claims, errParse := ParseToken("secret", token)
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if claims.UserID != 42 || claims.Username != "alice" || claims.Email != "alice@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseTokenWrongSecret(t *testing.T) {
	token, errGen := GenerateToken("secret", 1, "bob", "bob@example.com", time.Hour)
	if errGen != nil {
		t.Fatalf("generate: %v", errGen)
	}

	_, errParse := ParseToken("other-secret", token)
	if !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", errParse)
	}
}

func TestParseTokenExpired(t *testing.T) {
	token, errGen := GenerateToken("secret", 1, "bob", "bob@example.com", -time.Minute)
	if errGen != nil {
		t.Fatalf("generate: %v", errGen)
	}

	_, errParse := ParseToken("secret", token)
	if !errors.Is(errParse, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", errParse)
	}
}

func TestParseTokenGarbage(t *testing.T) {
	_, errParse := ParseToken("secret", "not.a.token")
	if !errors.Is(errParse, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", errParse)
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, errHash := HashPassword("correct horse battery staple")
	if errHash != nil {
		t.Fatalf("hash: %v", errHash)
	}
	if hash == "correct horse battery staple" {
		t.Fatalf("hash must not equal plaintext")
	}
	if !CheckPassword(hash, "correct horse battery staple") {
		t.Fatalf("expected password to verify")
	}
	if CheckPassword(hash, "wrong password") {
		t.Fatalf("wrong password must not verify")
	}
}
