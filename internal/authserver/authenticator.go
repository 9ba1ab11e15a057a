// Package authserver implements the auth proxy: a reverse proxy that
// authenticates every inbound request with the MAC scheme and forwards
// authenticated requests to the protected app server on behalf of the
// authenticated principal.
package authserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"yar/pkg/mac"
	"yar/pkg/models"
	"yar/pkg/nonce"

	"github.com/rs/zerolog/log"
)

// FailureDetailHeader carries the stable detail code on 401 responses.
const FailureDetailHeader = "X-Yar-Auth-Failure-Detail"

// PrincipalHeader carries the authenticated owner on forwarded requests.
const PrincipalHeader = "X-Yar-Principal"

// Authentication failure detail codes.
const (
	DetailNoAuthHeader      = "NO_AUTH_HEADER"
	DetailInvalidAuthHeader = "INVALID_AUTH_HEADER"
	DetailTSOld             = "TS_OLD"
	DetailTSInFuture        = "TS_IN_FUTURE"
	DetailNonceReused       = "NONCE_REUSED"
	DetailCredsNotFound     = "CREDS_NOT_FOUND"
	DetailMACsDoNotMatch    = "MACS_DO_NOT_MATCH"
)

// Authenticator runs the request authentication pipeline:
// parse, freshness, nonce, credentials fetch, MAC verification.
type Authenticator struct {
	keyServer      string // host:port of the key server
	maxAge         int64  // freshness window in seconds
	nonces         nonce.Checker
	client         *http.Client
	hostIfNotFound string
	portIfNotFound string

	// now is the clock; replaced in tests
	now func() int64
}

// NewAuthenticator creates an authenticator talking to the key server at the
// given address, with the given freshness window and nonce checker.
func NewAuthenticator(keyServer string, maxAge int64, nonces nonce.Checker, timeout time.Duration, hostIfNotFound, portIfNotFound string) *Authenticator {
	return &Authenticator{
		keyServer:      keyServer,
		maxAge:         maxAge,
		nonces:         nonces,
		client:         &http.Client{Timeout: timeout},
		hostIfNotFound: hostIfNotFound,
		portIfNotFound: portIfNotFound,
		now:            func() int64 { return time.Now().Unix() },
	}
}

// Authenticate runs the pipeline over a request whose body has already been
// buffered. On success it returns the authenticated principal. A non-empty
// detail means the request must be rejected with 401 and that detail code; a
// non-nil error means the key server could not be reached and the request
// must be rejected with 500.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request, body []byte) (principal, detail string, err error) {
	// PARSE
	rawHeader := r.Header.Get("Authorization")
	if rawHeader == "" {
		return "", DetailNoAuthHeader, nil
	}
	header := mac.ParseAuthHeaderValue(rawHeader)
	if header == nil {
		return "", DetailInvalidAuthHeader, nil
	}

	// FRESHNESS
	now := a.now()
	ts := header.Timestamp.Unix()
	if now-ts > a.maxAge {
		return "", DetailTSOld, nil
	}
	if ts-now > a.maxAge {
		return "", DetailTSInFuture, nil
	}

	// NONCE
	fresh, err := a.nonces.CheckAndRemember(string(header.KeyIdentifier), string(header.Timestamp), string(header.Nonce))
	if err != nil {
		return "", "", fmt.Errorf("nonce check failed: %w", err)
	}
	if !fresh {
		return "", DetailNonceReused, nil
	}

	// CREDS
	creds, found, err := a.fetchCreds(ctx, header.KeyIdentifier)
	if err != nil {
		return "", "", err
	}
	if !found {
		return "", DetailCredsNotFound, nil
	}

	// VERIFY
	key, err := mac.ParseKey(creds.HMAC.MACKey)
	if err != nil {
		log.Error().Err(err).
			Str("mac_key_identifier", string(header.KeyIdentifier)).
			Msg("Key server returned an invalid mac key")
		return "", DetailCredsNotFound, nil
	}

	host, port := a.hostAndPort(r)
	var contentType *string
	if values, exists := r.Header["Content-Type"]; exists && len(values) > 0 {
		contentType = &values[0]
	}
	var extBody []byte
	if len(body) > 0 {
		extBody = body
	}

	nrs := mac.NormalizedRequestString(
		header.Timestamp,
		header.Nonce,
		r.Method,
		r.URL.RequestURI(),
		host,
		port,
		mac.GenerateExt(contentType, extBody))

	if !header.MAC.Verify(key, creds.HMAC.MACAlgorithm, nrs) {
		return "", DetailMACsDoNotMatch, nil
	}

	return creds.Owner, "", nil
}

// fetchCreds retrieves the credentials for a key identifier from the key
// server. Deleted credentials and credentials without an hmac sub-record are
// reported as not found; transport failures are returned as errors.
func (a *Authenticator) fetchCreds(ctx context.Context, id mac.KeyIdentifier) (*models.Credentials, bool, error) {
	u := fmt.Sprintf("http://%s/v1.0/creds/%s?deleted=true", a.keyServer, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create key server request: %w", err)
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("key server request failed: %w", err)
	}
	defer resp.Body.Close()

	log.Debug().
		Str("mac_key_identifier", string(id)).
		Int("code", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Key server responded")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, nil
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("key server responded %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read key server response: %w", err)
	}

	var creds models.Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, false, fmt.Errorf("failed to decode key server response: %w", err)
	}

	if creds.IsDeleted || creds.HMAC == nil {
		return nil, false, nil
	}
	return &creds, true, nil
}

// hostAndPort splits the request's Host header, falling back to the
// configured defaults when the header or its port is missing.
func (a *Authenticator) hostAndPort(r *http.Request) (string, int) {
	host := a.hostIfNotFound
	portValue := a.portIfNotFound

	if r.Host != "" {
		if h, p, found := strings.Cut(r.Host, ":"); found {
			host, portValue = h, p
		} else {
			host = r.Host
		}
	}

	port, err := strconv.Atoi(portValue)
	if err != nil {
		port = 80
	}
	return host, port
}
