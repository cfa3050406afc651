package gcp

import (
	"strings"

	"google.golang.org/api/option"
)

// ClientOptions turns explicit credentials into client options. Inline JSON
// wins over a file path; with neither, application default credentials apply.
func ClientOptions(cfg ObjectStorageConfig) []option.ClientOption {
	if creds := strings.TrimSpace(cfg.CredentialsJSON); creds != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	if path := strings.TrimSpace(cfg.CredentialsFile); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}
