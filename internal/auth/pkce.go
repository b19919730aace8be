package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

const (
	verifierLength   = 64
	verifierAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// NewVerifier returns a random PKCE code verifier of 64 alphanumeric characters.
func NewVerifier() (string, error) {
	// 248 is the largest multiple of len(verifierAlphabet) below 256
	const limit = 256 - 256%len(verifierAlphabet)

	out := make([]byte, 0, verifierLength)
	buf := make([]byte, verifierLength)
	for len(out) < verifierLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate code verifier: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, verifierAlphabet[int(b)%len(verifierAlphabet)])
			if len(out) == verifierLength {
				break
			}
		}
	}
	return string(out), nil
}

// Challenge derives the S256 code challenge: unpadded base64url of SHA-256(verifier).
func Challenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

func newState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
