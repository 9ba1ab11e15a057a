package authserver

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Proxy is the auth server's HTTP handler. Every inbound request runs the
// authentication pipeline; authenticated requests are forwarded verbatim to
// the app server with the principal header added, and the app server's
// response is streamed back unchanged.
type Proxy struct {
	auth      *Authenticator
	appServer string // host:port of the protected app server
	client    *http.Client
}

// NewProxy creates a proxy forwarding authenticated requests to the app
// server at the given address.
func NewProxy(auth *Authenticator, appServer string, timeout time.Duration) *Proxy {
	return &Proxy{
		auth:      auth,
		appServer: appServer,
		client: &http.Client{
			Timeout: timeout,
			// the app server's redirects are the client's business
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}

	// the body is covered by the MAC and replayed on forward
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("Failed to read request body")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	principal, detail, err := p.auth.Authenticate(r.Context(), r, body)
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("Authentication failed against the key server")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if detail != "" {
		log.Info().
			Str("request_id", requestID).
			Str("detail", detail).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Request rejected")
		w.Header().Set(FailureDetailHeader, detail)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	status, err := p.forward(w, r, body, principal)
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("Failed to forward request to app server")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	log.Info().
		Str("request_id", requestID).
		Str("principal", principal).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Dur("duration", time.Since(start)).
		Msg("Request forwarded")
}

// forward relays the request to the app server and streams the response back.
func (p *Proxy) forward(w http.ResponseWriter, r *http.Request, body []byte, principal string) (int, error) {
	u := fmt.Sprintf("http://%s%s", p.appServer, r.URL.RequestURI())

	req, err := http.NewRequestWithContext(r.Context(), r.Method, u, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create app server request: %w", err)
	}
	for name, values := range r.Header {
		req.Header[name] = values
	}
	req.Header.Set(PrincipalHeader, principal)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("app server request failed: %w", err)
	}
	defer resp.Body.Close()

	for name, values := range resp.Header {
		w.Header()[name] = values
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
	return resp.StatusCode, nil
}
