package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidAPIKey = errors.New("invalid API key")
	ErrMalformedKey  = errors.New("malformed API key")
	ErrKeyGeneration = errors.New("failed to generate API key")
)

const (
	// KeyPrefixLen is the number of plaintext characters stored for lookup
	KeyPrefixLen = 12

	// bcryptCost for hashing the key secret
	bcryptCost = 12
)

// GenerateAPIKey creates a new tenant API key. Returns the full plaintext key
// (shown to the caller exactly once), its lookup prefix and the bcrypt hash
// stored in the database.
func GenerateAPIKey() (plaintext, prefix, hash string, err error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}

	plaintext = "sk_" + hex.EncodeToString(buf)
	prefix = plaintext[:KeyPrefixLen]

	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcryptCost)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}

	return plaintext, prefix, string(hashedBytes), nil
}

// KeyPrefix extracts the lookup prefix from a presented key.
func KeyPrefix(key string) (string, error) {
	if !strings.HasPrefix(key, "sk_") || len(key) < KeyPrefixLen {
		return "", ErrMalformedKey
	}
	return key[:KeyPrefixLen], nil
}

// VerifyAPIKey checks a presented key against the stored bcrypt hash.
func VerifyAPIKey(hash, key string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidAPIKey
		}
		return err
	}
	return nil
}
