// Package models defines the data structures shared by the key server and the
// auth server: the credential record and its key store document form, plus the
// request and response bodies of the key server's HTTP API.
package models

// Supported authentication schemes.
const (
	AuthSchemeHMAC  = "hmac"
	AuthSchemeBasic = "basic"
)

// DocType tags credential documents in the key store so the views can filter
// on them.
const DocType = "creds_v1.0"

// HMACCredentials is the hmac sub-record of a credential.
type HMACCredentials struct {
	MACKeyIdentifier string `json:"mac_key_identifier"` // 32 url-safe characters
	MACKey           string `json:"mac_key"`            // 43 base64url characters
	MACAlgorithm     string `json:"mac_algorithm"`      // e.g. "hmac-sha-1"
}

// BasicCredentials is the basic sub-record of a credential.
type BasicCredentials struct {
	APIKey string `json:"api_key"`
}

// Credentials is the externally visible credential record. Exactly one of
// HMAC and Basic is populated, selected by AuthScheme. Owner is immutable
// after creation and IsDeleted only ever transitions false to true.
type Credentials struct {
	Owner      string            `json:"owner"`
	AuthScheme string            `json:"auth_scheme"`
	IsDeleted  bool              `json:"is_deleted"`
	HMAC       *HMACCredentials  `json:"hmac,omitempty"`
	Basic      *BasicCredentials `json:"basic,omitempty"`
}

// Identifier returns the credential's externally visible identifier: the mac
// key identifier for the hmac scheme, the api key for the basic scheme.
func (c *Credentials) Identifier() string {
	switch c.AuthScheme {
	case AuthSchemeHMAC:
		if c.HMAC != nil {
			return c.HMAC.MACKeyIdentifier
		}
	case AuthSchemeBasic:
		if c.Basic != nil {
			return c.Basic.APIKey
		}
	}
	return ""
}

// Document is the key store form of a credential record. The document id is
// the credential identifier; _rev and type never leave the store boundary.
type Document struct {
	ID   string `json:"_id"`
	Rev  string `json:"_rev,omitempty"`
	Type string `json:"type"`
	Credentials
}

// NewDocument wraps a credential record as a key store document.
func NewDocument(creds Credentials) *Document {
	return &Document{
		ID:          creds.Identifier(),
		Type:        DocType,
		Credentials: creds,
	}
}

// Model projects the document onto the external credential model, dropping
// the store-internal properties.
func (d *Document) Model() *Credentials {
	creds := d.Credentials
	return &creds
}

// CreateCredsRequest is the body of POST /v1.0/creds.
type CreateCredsRequest struct {
	Owner      string `json:"owner"`
	AuthScheme string `json:"auth_scheme,omitempty"` // defaults to "hmac"
}

// CredsResponse is the body returned for a single credential. Location is
// populated on create responses only.
type CredsResponse struct {
	Credentials
	Location string `json:"location,omitempty"`
}

// CredsListResponse is the body of GET /v1.0/creds.
type CredsListResponse struct {
	Creds []*Credentials `json:"creds"`
}

// ErrorResponse is the standardized JSON error body.
type ErrorResponse struct {
	Error ErrorDetails `json:"error"`
}

// ErrorDetails carries structured error information with a request ID for
// tracing.
type ErrorDetails struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}
