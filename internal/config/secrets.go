package config

import (
	"fmt"
	"os"
	"strings"
)

// applySecretFiles overrides AuthConfig.ClientSecret and AuthConfig.Password
// with the contents of the file named by SUPERVISOR_AUTH_CLIENT_SECRET_FILE
// / SUPERVISOR_AUTH_PASSWORD_FILE, when set, so deployments can mount a
// secret as a file instead of placing it in the process environment.
func applySecretFiles(cfg *Config) error {
	if v, err := readSecretFile("SUPERVISOR_AUTH_CLIENT_SECRET_FILE"); err != nil {
		return err
	} else if v != "" {
		cfg.Auth.ClientSecret = v
	}
	if v, err := readSecretFile("SUPERVISOR_AUTH_PASSWORD_FILE"); err != nil {
		return err
	} else if v != "" {
		cfg.Auth.Password = v
	}
	return nil
}

func readSecretFile(envVar string) (string, error) {
	path := os.Getenv(envVar)
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: reading secret file %s=%s: %w", envVar, path, err)
	}
	return strings.TrimSpace(string(data)), nil
}
