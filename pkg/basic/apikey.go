// Package basic provides the api_key value type for the basic authentication
// scheme. Basic credentials are creatable and retrievable through the key
// server; verifying them at the auth server is a future extension.
package basic

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// APIKey is an opaque key identifying a principal under the basic scheme.
type APIKey string

// GenerateAPIKey creates a new random API key. Generated keys are 32 url-safe
// characters with at least 128 bits of entropy.
func GenerateAPIKey() APIKey {
	return APIKey(strings.ReplaceAll(uuid.New().String(), "-", ""))
}

// ParseAPIKey validates an API key received from the wire. Keys are opaque;
// any non-empty value is accepted.
func ParseAPIKey(value string) (APIKey, error) {
	if value == "" {
		return "", fmt.Errorf("api key must be non-empty")
	}
	return APIKey(value), nil
}
