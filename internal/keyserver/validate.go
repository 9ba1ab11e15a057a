package keyserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"

	"yar/pkg/models"
)

// jsonUTF8ContentTypeRegex matches the JSON utf8 content types the service
// accepts, e.g. "application/json; charset=utf8" and
// "application/json; charset=utf-8" in any casing.
var jsonUTF8ContentTypeRegex = regexp.MustCompile(`(?i)^\s*application/json;\s*charset=utf-?8\s*$`)

func isJSONUTF8ContentType(contentType string) bool {
	return jsonUTF8ContentTypeRegex.MatchString(contentType)
}

// parseCreateRequest validates a POST /v1.0/creds request: the content type,
// the body's shape (no unknown properties), a non-empty owner and a known
// auth scheme. The auth scheme defaults to hmac.
func parseCreateRequest(r *http.Request) (*models.CreateCredsRequest, error) {
	if !isJSONUTF8ContentType(r.Header.Get("Content-Type")) {
		return nil, fmt.Errorf("content type must be application/json; charset=utf8")
	}

	var req models.CreateCredsRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return nil, fmt.Errorf("body is not a valid create request: %w", err)
	}

	if req.Owner == "" {
		return nil, fmt.Errorf("owner is required and must be non-empty")
	}

	switch req.AuthScheme {
	case "":
		req.AuthScheme = models.AuthSchemeHMAC
	case models.AuthSchemeHMAC, models.AuthSchemeBasic:
		// known scheme
	default:
		return nil, fmt.Errorf("auth scheme must be %q or %q", models.AuthSchemeHMAC, models.AuthSchemeBasic)
	}

	return &req, nil
}
