// Package auth verifies tenant bearer credentials and enforces per-credential scopes.
//
// A credential handed to a tenant has the form "<publicId>.<secret>". Only the public id,
// a per-credential salt and hex(SHA-256(salt || secret || globalSalt)) are stored; the
// secret itself is shown once at issuance and never persisted. The global salt lives in
// configuration, so a leaked credentials table alone is not enough to brute-force secrets.
//
// See internal/middleware/auth.go for the request-time wiring of Gate.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// PublicIDRandomBytes is the random part of a public id (12 hex chars).
	PublicIDRandomBytes = 6

	// SecretBytes is the secret length in bytes (64 hex chars).
	SecretBytes = 32

	// SaltBytes is the per-credential salt length in bytes (32 hex chars).
	SaltBytes = 16
)

// Credential is a freshly generated tenant credential.
// APIKey and Secret must only be shown to the caller once; persist PublicID, Salt and Hash.
type Credential struct {
	APIKey   string
	PublicID string
	Secret   string
	Salt     string
	Hash     string
}

// GenerateCredential creates a new random credential whose public id starts with prefix.
func GenerateCredential(prefix, globalSalt string) (*Credential, error) {
	idPart, err := randomHex(PublicIDRandomBytes)
	if err != nil {
		return nil, err
	}
	secret, err := randomHex(SecretBytes)
	if err != nil {
		return nil, err
	}
	salt, err := randomHex(SaltBytes)
	if err != nil {
		return nil, err
	}

	publicID := prefix + idPart
	return &Credential{
		APIKey:   publicID + "." + secret,
		PublicID: publicID,
		Secret:   secret,
		Salt:     salt,
		Hash:     HashSecret(secret, salt, globalSalt),
	}, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashSecret returns hex(SHA-256(salt || secret || globalSalt)).
func HashSecret(secret, salt, globalSalt string) string {
	h := sha256.New()
	h.Write([]byte(salt))
	h.Write([]byte(secret))
	h.Write([]byte(globalSalt))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySecret recomputes the hash and compares it with storedHash in constant time.
func VerifySecret(secret, salt, globalSalt, storedHash string) bool {
	computed := HashSecret(secret, salt, globalSalt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// ParseBearer extracts the public id and secret from an Authorization header of the form
// "Bearer <publicId>.<secret>". The scheme is matched case-insensitively and the token is
// split on its first '.'. Any malformed header yields ErrUnauthenticated.
func ParseBearer(header string) (publicID, secret string, err error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "", fmt.Errorf("%w: missing bearer scheme", ErrUnauthenticated)
	}

	publicID, secret, ok = strings.Cut(strings.TrimSpace(token), ".")
	if !ok || publicID == "" || secret == "" {
		return "", "", fmt.Errorf("%w: malformed credential", ErrUnauthenticated)
	}
	return publicID, secret, nil
}
