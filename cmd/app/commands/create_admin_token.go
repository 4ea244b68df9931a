package commands

import (
	"fmt"
	"log/slog"

	authService "github.com/allisson/billingsync/internal/auth/service"
)

// RunCreateAdminToken generates an operator token and prints it with the Argon2id hash
// to put in ADMIN_TOKEN_HASH. The plain token is shown only once.
func RunCreateAdminToken(
	tokenService authService.AdminTokenService,
	logger *slog.Logger,
	format string,
	io IOTuple,
) error {
	plainToken, tokenHash, err := tokenService.GenerateToken()
	if err != nil {
		return fmt.Errorf("failed to generate admin token: %w", err)
	}

	if format == "json" {
		if err := writeJSON(io.Writer, map[string]string{
			"token":      plainToken,
			"token_hash": tokenHash,
		}); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintln(io.Writer, "Admin token created successfully!")
		_, _ = fmt.Fprintf(io.Writer, "Token: %s\n", plainToken)
		_, _ = fmt.Fprintf(io.Writer, "ADMIN_TOKEN_HASH=%s\n", tokenHash)
		_, _ = fmt.Fprintln(io.Writer, "\nWARNING: Save this token securely. It will not be shown again.")
	}

	logger.Info("admin token created")
	return nil
}
