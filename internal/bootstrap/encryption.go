package bootstrap

import (
	"log/slog"

	"github.com/target/bulkmailer/internal/data/cryptoutil"
)

// CreateEncryptor builds the sender token encryptor from SECRETS_ENCRYPTION_KEY.
// It returns nil when no key is configured, in which case tokens are stored as plain JSON.
//
//nolint:ireturn // Returning interface is intentional for encryptor abstraction
func CreateEncryptor(key string, logger *slog.Logger) cryptoutil.Encryptor {
	if logger == nil {
		logger = slog.Default()
	}
	if key == "" {
		logger.Warn("SECRETS_ENCRYPTION_KEY is empty; sender tokens are stored unencrypted")
		return nil
	}

	keyBytes, err := cryptoutil.KeyFromString(key)
	if err != nil {
		logger.Warn("invalid encryption key; sender tokens are stored unencrypted", "error", err)
		return nil
	}
	enc, err := cryptoutil.NewAESGCMEncryptor(keyBytes)
	if err != nil {
		logger.Warn("failed to create encryptor; sender tokens are stored unencrypted", "error", err)
		return nil
	}
	return enc
}
