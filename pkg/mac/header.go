package mac

import (
	"fmt"
	"regexp"
)

// AuthHeaderValue is the parsed form of a MAC Authorization header:
//
//	MAC id="...", ts="...", nonce="...", ext="...", mac="..."
//
// Fields may appear in any order on parse; String emits the canonical order.
type AuthHeaderValue struct {
	KeyIdentifier KeyIdentifier
	Timestamp     Timestamp
	Nonce         Nonce
	Ext           Ext
	MAC           MAC
}

// NewAuthHeaderValue assembles a header value from its five fields.
func NewAuthHeaderValue(id KeyIdentifier, ts Timestamp, nonce Nonce, ext Ext, m MAC) *AuthHeaderValue {
	return &AuthHeaderValue{
		KeyIdentifier: id,
		Timestamp:     ts,
		Nonce:         nonce,
		Ext:           ext,
		MAC:           m,
	}
}

// String serializes the header value in canonical field order.
func (v *AuthHeaderValue) String() string {
	return fmt.Sprintf(
		`MAC id="%s", ts="%s", nonce="%s", ext="%s", mac="%s"`,
		v.KeyIdentifier,
		v.Timestamp,
		v.Nonce,
		v.Ext,
		v.MAC)
}

var (
	authHeaderSchemeRegex = regexp.MustCompile(`^\s*MAC\s+`)
	authHeaderFieldRegex  = regexp.MustCompile(`([a-z]+)\s*=\s*"([^"]*)"`)
)

// ParseAuthHeaderValue parses an Authorization header value. The five fields
// may appear in any order; every field except ext must be non-empty. Returns
// nil if the value is missing, malformed, duplicates a field, or carries an
// out-of-range value.
func ParseAuthHeaderValue(value string) *AuthHeaderValue {
	scheme := authHeaderSchemeRegex.FindString(value)
	if scheme == "" {
		return nil
	}

	fields := make(map[string]string)
	for _, match := range authHeaderFieldRegex.FindAllStringSubmatch(value[len(scheme):], -1) {
		name := match[1]
		if _, dup := fields[name]; dup {
			return nil
		}
		fields[name] = match[2]
	}
	if len(fields) != 5 {
		return nil
	}
	for _, name := range []string{"id", "ts", "nonce", "ext", "mac"} {
		if _, ok := fields[name]; !ok {
			return nil
		}
	}

	id, err := ParseKeyIdentifier(fields["id"])
	if err != nil {
		return nil
	}
	ts, err := ParseTimestamp(fields["ts"])
	if err != nil {
		return nil
	}
	nonce, err := ParseNonce(fields["nonce"])
	if err != nil {
		return nil
	}
	if fields["mac"] == "" {
		return nil
	}

	return NewAuthHeaderValue(id, ts, nonce, Ext(fields["ext"]), MAC(fields["mac"]))
}
