package processor

import (
	"context"
	"encoding/base64"
	"fmt"

	"gocloud.dev/secrets"

	// Register KMS provider drivers
	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

// DecryptSecrets decrypts base64-encoded KMS ciphertexts with the keeper at keyURI.
// Empty values are returned unchanged. When keyURI is empty the values are treated as
// plaintext. Supports: gcpkms://, awskms://, azurekeyvault://, hashivault://, base64key://
func DecryptSecrets(ctx context.Context, keyURI string, values ...string) ([]string, error) {
	if keyURI == "" {
		return values, nil
	}

	keeper, err := secrets.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	defer func() {
		_ = keeper.Close()
	}()

	out := make([]string, len(values))
	for i, value := range values {
		if value == "" {
			continue
		}

		ciphertext, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return nil, fmt.Errorf("failed to decode secret %d: %w", i, err)
		}

		plaintext, err := keeper.Decrypt(ctx, ciphertext)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt secret %d: %w", i, err)
		}
		out[i] = string(plaintext)
	}
	return out, nil
}
