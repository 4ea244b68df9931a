package service

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/allisson/go-pwdhash"

	apperrors "github.com/allisson/billingsync/internal/errors"
)

// adminTokenService implements AdminTokenService using Argon2id hashing.
type adminTokenService struct {
	hasher *pwdhash.PasswordHasher
}

// GenerateToken creates a 32-byte random token encoded as URL-safe base64.
func (s *adminTokenService) GenerateToken() (string, string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", apperrors.Wrap(err, "failed to generate random token")
	}

	plainToken := base64.URLEncoding.EncodeToString(randomBytes)

	tokenHash, err := s.HashToken(plainToken)
	if err != nil {
		return "", "", err
	}

	return plainToken, tokenHash, nil
}

// HashToken hashes a plain token using Argon2id.
func (s *adminTokenService) HashToken(plainToken string) (string, error) {
	tokenHash, err := s.hasher.Hash([]byte(plainToken))
	if err != nil {
		return "", apperrors.Wrap(err, "failed to hash token")
	}
	return tokenHash, nil
}

// CompareToken performs a constant-time comparison between a plain token and its hash.
// Malformed hashes never match.
func (s *adminTokenService) CompareToken(plainToken string, tokenHash string) bool {
	ok, err := s.hasher.Verify([]byte(plainToken), tokenHash)
	if err != nil {
		return false
	}
	return ok
}

// NewAdminTokenService creates an AdminTokenService using the Moderate Argon2id policy.
func NewAdminTokenService() AdminTokenService {
	hasher, err := pwdhash.New(
		pwdhash.WithPolicy(pwdhash.PolicyModerate),
	)
	if err != nil {
		// Only reachable with an invalid policy.
		panic(err)
	}

	return &adminTokenService{
		hasher: hasher,
	}
}
