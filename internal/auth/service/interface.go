// Package service provides the operator credential services used to protect the admin API.
package service

// AdminTokenService generates and verifies operator bearer tokens. Only the Argon2id hash
// of a token is ever configured on the server.
type AdminTokenService interface {
	// GenerateToken creates a new random token and returns it with its hash. The plain
	// token is shown once and never stored.
	GenerateToken() (plainToken string, tokenHash string, err error)

	// HashToken hashes a plain token.
	HashToken(plainToken string) (tokenHash string, err error)

	// CompareToken reports whether plainToken matches tokenHash.
	CompareToken(plainToken string, tokenHash string) bool
}
