package mac

import (
	"fmt"
	"testing"
)

func newTestHeaderValue(t *testing.T) *AuthHeaderValue {
	t.Helper()

	ts := GenerateTimestamp(1640995200)
	nonce := GenerateNonce()
	ext := GenerateExt(nil, nil)
	key := GenerateKey()
	nrs := NormalizedRequestString(ts, nonce, "GET", "/whatever", "127.0.0.1", 8080, ext)
	m, err := Generate(key, AlgorithmSHA1, nrs)
	if err != nil {
		t.Fatalf("failed to generate mac: %v", err)
	}
	return NewAuthHeaderValue(GenerateKeyIdentifier(), ts, nonce, ext, m)
}

func TestAuthHeaderValueRoundTrip(t *testing.T) {
	value := newTestHeaderValue(t)

	parsed := ParseAuthHeaderValue(value.String())
	if parsed == nil {
		t.Fatalf("failed to parse serialized header %q", value.String())
	}
	if *parsed != *value {
		t.Errorf("expected %+v, got %+v", value, parsed)
	}
}

func TestAuthHeaderValueRoundTripWithExt(t *testing.T) {
	contentType := "application/json; charset=utf8"
	value := newTestHeaderValue(t)
	value.Ext = GenerateExt(&contentType, []byte(`{"dave": "was here"}`))

	parsed := ParseAuthHeaderValue(value.String())
	if parsed == nil {
		t.Fatalf("failed to parse serialized header %q", value.String())
	}
	if parsed.Ext != value.Ext {
		t.Errorf("expected ext %q, got %q", value.Ext, parsed.Ext)
	}
}

func TestParseAuthHeaderValueFieldOrderInsensitive(t *testing.T) {
	value := newTestHeaderValue(t)
	reordered := fmt.Sprintf(
		`MAC mac="%s", ext="%s", nonce="%s", ts="%s", id="%s"`,
		value.MAC,
		value.Ext,
		value.Nonce,
		value.Timestamp,
		value.KeyIdentifier)

	parsed := ParseAuthHeaderValue(reordered)
	if parsed == nil {
		t.Fatalf("failed to parse reordered header %q", reordered)
	}
	if *parsed != *value {
		t.Errorf("expected %+v, got %+v", value, parsed)
	}
}

func TestParseAuthHeaderValueRejects(t *testing.T) {
	value := newTestHeaderValue(t)

	malformed := map[string]string{
		"Empty":          "",
		"WrongScheme":    "DAVE WAS HERE",
		"Basic":          "Basic dXNlcjpwYXNz",
		"NoFields":       "MAC ",
		"MissingMAC":     fmt.Sprintf(`MAC id="%s", ts="%s", nonce="%s", ext=""`, value.KeyIdentifier, value.Timestamp, value.Nonce),
		"EmptyID":        fmt.Sprintf(`MAC id="", ts="%s", nonce="%s", ext="", mac="%s"`, value.Timestamp, value.Nonce, value.MAC),
		"EmptyTS":        fmt.Sprintf(`MAC id="%s", ts="", nonce="%s", ext="", mac="%s"`, value.KeyIdentifier, value.Nonce, value.MAC),
		"EmptyNonce":     fmt.Sprintf(`MAC id="%s", ts="%s", nonce="", ext="", mac="%s"`, value.KeyIdentifier, value.Timestamp, value.MAC),
		"EmptyMAC":       fmt.Sprintf(`MAC id="%s", ts="%s", nonce="%s", ext="", mac=""`, value.KeyIdentifier, value.Timestamp, value.Nonce),
		"NonIntegerTS":   fmt.Sprintf(`MAC id="%s", ts="dave", nonce="%s", ext="", mac="%s"`, value.KeyIdentifier, value.Nonce, value.MAC),
		"ShortNonce":     fmt.Sprintf(`MAC id="%s", ts="%s", nonce="abc", ext="", mac="%s"`, value.KeyIdentifier, value.Timestamp, value.MAC),
		"DuplicateField": value.String() + fmt.Sprintf(`, id="%s"`, value.KeyIdentifier),
		"Unquoted":       fmt.Sprintf(`MAC id=%s, ts=%s, nonce=%s, ext=, mac=%s`, value.KeyIdentifier, value.Timestamp, value.Nonce, value.MAC),
	}

	for name, header := range malformed {
		t.Run(name, func(t *testing.T) {
			if parsed := ParseAuthHeaderValue(header); parsed != nil {
				t.Errorf("expected nil for %q, got %+v", header, parsed)
			}
		})
	}
}

func TestParseAuthHeaderValueAllowsEmptyExt(t *testing.T) {
	value := newTestHeaderValue(t)
	value.Ext = ""
	if parsed := ParseAuthHeaderValue(value.String()); parsed == nil {
		t.Errorf("header with empty ext rejected: %q", value.String())
	}
}
