// Package keystore is a thin client for the HTTP/JSON document database
// holding credential documents. It shapes logical operations into per-document
// GET/PUT calls and design-document view queries, and decodes responses into
// an (ok, code, body) result the caller interprets.
//
// The service assumes two views are installed in the database, each emitting
// the full document as the view value:
//
//	_design/by_identifier/_view/by_identifier   keyed on the credential identifier
//	_design/by_principal/_view/by_principal     keyed on the owner
//
// Installing the design documents is the responsibility of an external admin
// tool; see ByIdentifierDesignDoc and ByPrincipalDesignDoc.
package keystore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

// Design documents expected by the key server. Shipped here so operators can
// install them with any CouchDB admin tooling.
const (
	ByIdentifierDesignDoc = `{
	"language": "javascript",
	"views": {
		"by_identifier": {
			"map": "function(doc) { if (doc.type.match(/^creds_v\\d+\\.\\d+/i)) emit(doc._id, doc) }"
		}
	}
}`

	ByPrincipalDesignDoc = `{
	"language": "javascript",
	"views": {
		"by_principal": {
			"map": "function(doc) { if (doc.type.match(/^creds_v\\d+\\.\\d+/i)) emit(doc.owner, doc) }"
		}
	}
}`
)

// Result is the outcome of a key store call. OK is false when transport
// failed or the response body could not be parsed as JSON; the caller
// interprets the HTTP code.
type Result struct {
	OK   bool
	Code int
	Body json.RawMessage
}

// Client issues requests against one database of one document store.
type Client struct {
	host     string // host:port of the document store
	database string
	client   *http.Client
}

// New creates a key store client for http://{host}/{database} with the given
// per-request timeout.
func New(host, database string, timeout time.Duration) *Client {
	return &Client{
		host:     host,
		database: database,
		client:   &http.Client{Timeout: timeout},
	}
}

// DocPath returns the request path for the document with the given id.
func DocPath(id string) string {
	return url.PathEscape(id)
}

// ViewPath returns the request path for a design document view query. An
// empty key selects every row in the view.
func ViewPath(design, view, key string) string {
	path := fmt.Sprintf("_design/%s/_view/%s", url.PathEscape(design), url.PathEscape(view))
	if key != "" {
		path += "?key=" + url.QueryEscape(fmt.Sprintf("%q", key))
	}
	return path
}

// Get issues a GET for the given path.
func (c *Client) Get(ctx context.Context, path string) Result {
	return c.fetch(ctx, http.MethodGet, path, nil)
}

// Put issues a PUT for the given path with doc as the JSON body.
func (c *Client) Put(ctx context.Context, path string, doc interface{}) Result {
	body, err := json.Marshal(doc)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to encode key store document")
		return Result{}
	}
	return c.fetch(ctx, http.MethodPut, path, body)
}

func (c *Client) fetch(ctx context.Context, method, path string, body []byte) Result {
	u := fmt.Sprintf("http://%s/%s/%s", c.host, url.PathEscape(c.database), path)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		log.Error().Err(err).Str("url", u).Msg("Failed to create key store request")
		return Result{}
	}
	req.Header.Set("Content-Type", "application/json; charset=utf8")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("url", u).Msg("Key store request failed")
		return Result{}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().Err(err).Str("url", u).Msg("Failed to read key store response")
		return Result{Code: resp.StatusCode}
	}
	if len(raw) > 0 && !json.Valid(raw) {
		log.Error().Str("url", u).Int("code", resp.StatusCode).Msg("Key store response is not JSON")
		return Result{Code: resp.StatusCode}
	}

	return Result{OK: true, Code: resp.StatusCode, Body: raw}
}

// viewResponse is the envelope the document store wraps view rows in.
type viewResponse struct {
	Rows []struct {
		Value json.RawMessage `json:"value"`
	} `json:"rows"`
}

// Query runs a view query and unwraps the row values into raw documents.
// ok is false on transport failure, a non-200 response or an undecodable body.
func (c *Client) Query(ctx context.Context, design, view, key string) ([]json.RawMessage, bool) {
	result := c.Get(ctx, ViewPath(design, view, key))
	if !result.OK || result.Code != http.StatusOK {
		return nil, false
	}

	var envelope viewResponse
	if err := json.Unmarshal(result.Body, &envelope); err != nil {
		log.Error().Err(err).Str("view", view).Msg("Failed to decode view response")
		return nil, false
	}

	docs := make([]json.RawMessage, 0, len(envelope.Rows))
	for _, row := range envelope.Rows {
		docs = append(docs, row.Value)
	}
	return docs, true
}
