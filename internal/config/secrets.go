package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Secrets read by mazephases. Each may also be given as NAME_FILE.
const (
	SecretPlaygroundToken = "MAZEPHASES_PLAYGROUND_TOKEN"
	SecretMQTTPassword    = "MAZEPHASES_MQTT_PASSWORD"
	SecretAdminUser       = "MAZEPHASES_ADMIN_USER"
	SecretAdminPass       = "MAZEPHASES_ADMIN_PASS"
	SecretOperatorUser    = "MAZEPHASES_OPERATOR_USER"
	SecretOperatorPass    = "MAZEPHASES_OPERATOR_PASS"
)

// ErrSecretMissing is returned by RequireSecret when nothing is configured.
var ErrSecretMissing = errors.New("secret not set")

// ResolveSecret returns the secret named envName. NAME_FILE, when set,
// points at a file holding the value and wins over NAME. Surrounding
// whitespace is trimmed. An unset secret is "" with no error.
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	if path := os.Getenv(fileEnv); path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from %s=%s: %w", fileEnv, path, err)
		}
		return strings.TrimSpace(string(content)), nil
	}
	return strings.TrimSpace(os.Getenv(envName)), nil
}

// RequireSecret is ResolveSecret for secrets that must be present.
func RequireSecret(envName string) (string, error) {
	value, err := ResolveSecret(envName)
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", fmt.Errorf("%s: %w", envName, ErrSecretMissing)
	}
	return value, nil
}
