package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

const (
	// pkceVerifierBytes gives a 43 character verifier, the RFC 7636 minimum.
	pkceVerifierBytes = 32

	// stateBytes is the entropy of the CSRF state value.
	stateBytes = 16

	// PKCEMethodS256 is the only challenge method this client sends.
	PKCEMethodS256 = "S256"
)

// randReader is the secure random source. Tests swap it to simulate failure.
var randReader io.Reader = rand.Reader

// PKCEChallenge represents a PKCE (Proof Key for Code Exchange) challenge.
type PKCEChallenge struct {
	// CodeVerifier is kept secret and only sent to the token endpoint.
	CodeVerifier string

	// CodeChallenge is base64url(SHA256(CodeVerifier)), sent in the authorization URL.
	CodeChallenge string

	// CodeChallengeMethod is always "S256".
	CodeChallengeMethod string
}

// GeneratePKCE generates a new PKCE code verifier and challenge.
func GeneratePKCE() (*PKCEChallenge, error) {
	verifierBytes := make([]byte, pkceVerifierBytes)
	if _, err := io.ReadFull(randReader, verifierBytes); err != nil {
		return nil, randomSourceError(fmt.Errorf("failed to generate random bytes for PKCE: %w", err))
	}

	verifier := base64.RawURLEncoding.EncodeToString(verifierBytes)

	return &PKCEChallenge{
		CodeVerifier:        verifier,
		CodeChallenge:       challengeFor(verifier),
		CodeChallengeMethod: PKCEMethodS256,
	}, nil
}

// challengeFor derives the S256 challenge of a verifier.
func challengeFor(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// GenerateState generates the opaque CSRF state value for one attempt.
func GenerateState() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := io.ReadFull(randReader, b); err != nil {
		return "", randomSourceError(fmt.Errorf("failed to generate state: %w", err))
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func randomSourceError(err error) error {
	return &AuthError{
		Kind:   KindRandom,
		Detail: "cannot start secure authentication",
		Err:    err,
	}
}
