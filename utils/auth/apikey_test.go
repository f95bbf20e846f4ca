package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerateAPIKeyRoundTrip(t *testing.T) {
	plaintext, prefix, hash, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey failed: %v", err)
	}

	if !strings.HasPrefix(plaintext, "sk_") {
		t.Errorf("plaintext = %q, want sk_ prefix", plaintext)
	}
	if len(prefix) != KeyPrefixLen || !strings.HasPrefix(plaintext, prefix) {
		t.Errorf("prefix = %q, not a %d-char prefix of the key", prefix, KeyPrefixLen)
	}
	if hash == plaintext {
		t.Error("hash must not equal the plaintext key")
	}

	if err := VerifyAPIKey(hash, plaintext); err != nil {
		t.Errorf("VerifyAPIKey rejected the original key: %v", err)
	}
	if err := VerifyAPIKey(hash, "sk_definitely_not_the_key"); !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("VerifyAPIKey(wrong key) = %v, want ErrInvalidAPIKey", err)
	}

	got, err := KeyPrefix(plaintext)
	if err != nil || got != prefix {
		t.Errorf("KeyPrefix = %q, %v, want %q", got, err, prefix)
	}
}

func TestKeyPrefixMalformed(t *testing.T) {
	for _, key := range []string{"", "sk_short", "pk_0123456789abcdef"} {
		if _, err := KeyPrefix(key); !errors.Is(err, ErrMalformedKey) {
			t.Errorf("KeyPrefix(%q) err = %v, want ErrMalformedKey", key, err)
		}
	}
}
