// Package http provides the operator authentication and rate limiting middleware.
package http

import (
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	authService "github.com/allisson/billingsync/internal/auth/service"
	apperrors "github.com/allisson/billingsync/internal/errors"
	"github.com/allisson/billingsync/internal/httputil"
)

// AdminAuthenticationMiddleware guards the operator API with a bearer token checked against
// the configured Argon2id hash.
//
// Authorization header format: "Bearer <token>" (case-insensitive "bearer").
//
// Error handling:
//   - Operator API disabled (empty tokenHash) → 403 Forbidden
//   - Missing, malformed or empty Authorization header → 401 Unauthorized
//   - Token does not match the hash → 401 Unauthorized
func AdminAuthenticationMiddleware(
	tokenHash string,
	tokenService authService.AdminTokenService,
	logger *slog.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenHash == "" {
			logger.Debug("admin authentication failed: operator api disabled")
			httputil.HandleErrorGin(c, apperrors.ErrForbidden, logger)
			c.Abort()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Debug("admin authentication failed: missing authorization header")
			httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, logger)
			c.Abort()
			return
		}

		const bearerPrefix = "bearer "
		if len(authHeader) < len(bearerPrefix) ||
			!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
			logger.Debug("admin authentication failed: malformed authorization header")
			httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, logger)
			c.Abort()
			return
		}

		plainToken := authHeader[len(bearerPrefix):]
		if plainToken == "" {
			logger.Debug("admin authentication failed: empty bearer token")
			httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, logger)
			c.Abort()
			return
		}

		if !tokenService.CompareToken(plainToken, tokenHash) {
			logger.Debug("admin authentication failed: token mismatch",
				slog.String("client_ip", c.ClientIP()))
			httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, logger)
			c.Abort()
			return
		}

		c.Next()
	}
}
