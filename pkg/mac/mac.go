// Package mac implements the MAC request authentication primitives shared by
// the auth server, the key server and client integrations. It provides the
// value types carried in the Authorization header (key, key identifier, nonce,
// timestamp, ext and MAC), the normalized request string they sign, and
// constant-time MAC verification. The scheme is derived from OAuth 2 MAC tokens.
package mac

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	// AlgorithmSHA1 is the default MAC algorithm.
	AlgorithmSHA1 = "hmac-sha-1"
	// AlgorithmSHA256 is accepted as an alternative MAC algorithm.
	AlgorithmSHA256 = "hmac-sha-256"

	// DefaultAlgorithm names the algorithm assigned to newly created credentials.
	DefaultAlgorithm = AlgorithmSHA1
)

const (
	generatedKeyLength   = 43 // base64url of 32 random bytes, no padding
	maxKeyLength         = 52
	generatedNonceLength = 16
	minNonceLength       = 8
)

const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

const nonceAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Key is a shared MAC key. The underlying bytes are opaque; generated keys are
// 43 characters of the base64url alphabet encoding 32 uniformly random bytes.
type Key string

// GenerateKey creates a new random MAC key.
func GenerateKey() Key {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("failed to read random bytes: %v", err))
	}
	return Key(base64.RawURLEncoding.EncodeToString(raw))
}

// ParseKey validates a MAC key received from the wire or the key store.
// Keys must be 1 to 52 characters drawn from the base64url alphabet.
func ParseKey(value string) (Key, error) {
	if len(value) == 0 || len(value) > maxKeyLength {
		return "", fmt.Errorf("mac key must be 1 to %d characters, got %d", maxKeyLength, len(value))
	}
	for i := 0; i < len(value); i++ {
		if !strings.ContainsRune(keyAlphabet, rune(value[i])) {
			return "", fmt.Errorf("mac key contains invalid character %q", value[i])
		}
	}
	return Key(value), nil
}

// KeyIdentifier identifies a set of credentials. Generated identifiers are
// 32 url-safe characters with at least 128 bits of entropy.
type KeyIdentifier string

// GenerateKeyIdentifier creates a new random key identifier.
func GenerateKeyIdentifier() KeyIdentifier {
	return KeyIdentifier(strings.ReplaceAll(uuid.New().String(), "-", ""))
}

// ParseKeyIdentifier validates a key identifier received from the wire.
// Identifiers are opaque; any non-empty value is accepted.
func ParseKeyIdentifier(value string) (KeyIdentifier, error) {
	if value == "" {
		return "", fmt.Errorf("mac key identifier must be non-empty")
	}
	return KeyIdentifier(value), nil
}

// Nonce is a per-request random token preventing replay within the freshness
// window. Generated nonces are 16 lowercase alphanumeric characters.
type Nonce string

// GenerateNonce creates a new random nonce.
func GenerateNonce() Nonce {
	raw := make([]byte, generatedNonceLength)
	if _, err := rand.Read(raw); err != nil {
		panic(fmt.Sprintf("failed to read random bytes: %v", err))
	}
	b := make([]byte, generatedNonceLength)
	for i, v := range raw {
		b[i] = nonceAlphabet[int(v)%len(nonceAlphabet)]
	}
	return Nonce(b)
}

// ParseNonce validates a nonce received from the wire. At least 8 characters
// are required.
func ParseNonce(value string) (Nonce, error) {
	if len(value) < minNonceLength {
		return "", fmt.Errorf("nonce must be at least %d characters, got %d", minNonceLength, len(value))
	}
	return Nonce(value), nil
}

// Timestamp is the decimal string representation of an integer number of
// seconds since the epoch.
type Timestamp string

// GenerateTimestamp returns a timestamp for the given clock reading.
func GenerateTimestamp(nowUnix int64) Timestamp {
	return Timestamp(strconv.FormatInt(nowUnix, 10))
}

// ParseTimestamp validates a timestamp received from the wire. Values that do
// not represent an integer are rejected.
func ParseTimestamp(value string) (Timestamp, error) {
	if _, err := strconv.ParseInt(value, 10, 64); err != nil {
		return "", fmt.Errorf("timestamp %q does not represent an integer", value)
	}
	return Timestamp(value), nil
}

// Unix returns the timestamp as seconds since the epoch.
func (t Timestamp) Unix() int64 {
	v, _ := strconv.ParseInt(string(t), 10, 64)
	return v
}

// Ext binds the request's content type and body into the MAC input.
type Ext string

// GenerateExt computes the ext value for a request. A nil contentType or body
// is absent; an empty-but-present value still contributes to the hash. When
// both are absent the ext is the empty string, otherwise it is the SHA-1 hex
// digest of the concatenation of whichever values are present.
func GenerateExt(contentType *string, body []byte) Ext {
	if contentType == nil && body == nil {
		return ""
	}
	h := sha1.New()
	if contentType != nil {
		h.Write([]byte(*contentType))
	}
	if body != nil {
		h.Write(body)
	}
	return Ext(fmt.Sprintf("%x", h.Sum(nil)))
}

// NormalizedRequestString builds the canonical serialization of the request
// fields covered by the MAC. Fields are newline separated in fixed order with
// a trailing newline; the method and URI are not case folded.
func NormalizedRequestString(ts Timestamp, nonce Nonce, method, uri, host string, port int, ext Ext) string {
	return strings.Join([]string{
		string(ts),
		string(nonce),
		method,
		uri,
		host,
		strconv.Itoa(port),
		string(ext),
	}, "\n") + "\n"
}

// MAC is the message authentication code over a normalized request string,
// base64 encoded.
type MAC string

func newHash(algorithm string) (func() hash.Hash, error) {
	switch algorithm {
	case AlgorithmSHA1:
		return sha1.New, nil
	case AlgorithmSHA256:
		return sha256.New, nil
	default:
		return nil, fmt.Errorf("unsupported mac algorithm %q", algorithm)
	}
}

// Generate computes the MAC of a normalized request string with the given key
// and algorithm.
func Generate(key Key, algorithm, normalizedRequestString string) (MAC, error) {
	newH, err := newHash(algorithm)
	if err != nil {
		return "", err
	}
	h := hmac.New(newH, []byte(key))
	h.Write([]byte(normalizedRequestString))
	return MAC(base64.StdEncoding.EncodeToString(h.Sum(nil))), nil
}

// Verify recomputes the MAC and compares it against m in constant time.
func (m MAC) Verify(key Key, algorithm, normalizedRequestString string) bool {
	expected, err := Generate(key, algorithm, normalizedRequestString)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(m))
}
