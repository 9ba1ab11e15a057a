package keyserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"yar/pkg/keystore"
	"yar/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ── Fake key store ──────────────────────────────────────

// fakeKeyStore emulates the document store's HTTP surface: document PUT and
// the by_identifier/by_principal view queries.
type fakeKeyStore struct {
	mu   sync.Mutex
	docs map[string]models.Document
	down bool // simulate a store outage
}

func newFakeKeyStore() *fakeKeyStore {
	return &fakeKeyStore{docs: make(map[string]models.Document)}
}

func (f *fakeKeyStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.down {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "internal"}`))
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/creds/")
	switch {
	case r.Method == http.MethodPut:
		var doc models.Document
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": "bad_request"}`))
			return
		}
		f.docs[path] = doc
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"ok": true, "id": %q, "rev": "1-abc"}`, path)

	case strings.HasPrefix(path, "_design/"):
		key := strings.Trim(r.URL.Query().Get("key"), `"`)
		var rows []string
		for id, doc := range f.docs {
			match := false
			switch {
			case strings.Contains(path, "by_identifier"):
				match = key == "" || id == key
			case strings.Contains(path, "by_principal"):
				match = doc.Owner == key
			}
			if match {
				raw, _ := json.Marshal(doc)
				rows = append(rows, fmt.Sprintf(`{"id": %q, "key": %q, "value": %s}`, id, key, raw))
			}
		}
		fmt.Fprintf(w, `{"total_rows": %d, "rows": [%s]}`, len(rows), strings.Join(rows, ","))

	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "not_found"}`))
	}
}

func newTestService(t *testing.T) (*Service, *fakeKeyStore) {
	t.Helper()
	fake := newFakeKeyStore()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	host := strings.TrimPrefix(server.URL, "http://")
	return NewService(keystore.New(host, "creds", 5*time.Second)), fake
}

func doJSON(t *testing.T, service *Service, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json; charset=utf8")
	}
	w := httptest.NewRecorder()
	service.Router().ServeHTTP(w, req)
	return w
}

func createCreds(t *testing.T, service *Service, owner, scheme string) models.CredsResponse {
	t.Helper()
	body := fmt.Sprintf(`{"owner": %q}`, owner)
	if scheme != "" {
		body = fmt.Sprintf(`{"owner": %q, "auth_scheme": %q}`, owner, scheme)
	}
	w := doJSON(t, service, http.MethodPost, "/v1.0/creds", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp models.CredsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// ── Tests ──────────────────────────────────────

func TestCreateThenRetrieveByID(t *testing.T) {
	service, _ := newTestService(t)

	resp := createCreds(t, service, "dave@example.com", "")
	require.NotNil(t, resp.HMAC)
	assert.Equal(t, models.AuthSchemeHMAC, resp.AuthScheme)
	assert.Len(t, resp.HMAC.MACKeyIdentifier, 32)
	assert.Len(t, resp.HMAC.MACKey, 43)
	assert.Equal(t, "hmac-sha-1", resp.HMAC.MACAlgorithm)
	assert.Equal(t, "/v1.0/creds/"+resp.HMAC.MACKeyIdentifier, resp.Location)

	w := doJSON(t, service, http.MethodGet, resp.Location, "")
	require.Equal(t, http.StatusOK, w.Code)

	var got models.Credentials
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "dave@example.com", got.Owner)
	assert.False(t, got.IsDeleted)
	assert.NotContains(t, w.Body.String(), `"_id"`)
	assert.NotContains(t, w.Body.String(), `"_rev"`)
	assert.NotContains(t, w.Body.String(), `"type"`)
}

func TestCreateBasicCreds(t *testing.T) {
	service, _ := newTestService(t)

	resp := createCreds(t, service, "dave@example.com", "basic")
	require.NotNil(t, resp.Basic)
	assert.Nil(t, resp.HMAC)
	assert.Equal(t, models.AuthSchemeBasic, resp.AuthScheme)
	assert.NotEmpty(t, resp.Basic.APIKey)
	assert.Equal(t, "/v1.0/creds/"+resp.Basic.APIKey, resp.Location)
}

func TestCreateLocationHeader(t *testing.T) {
	service, _ := newTestService(t)

	w := doJSON(t, service, http.MethodPost, "/v1.0/creds", `{"owner": "dave@example.com"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "/v1.0/creds/"))
}

func TestCreateRejectsBadRequests(t *testing.T) {
	service, _ := newTestService(t)

	t.Run("MissingContentType", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1.0/creds", strings.NewReader(`{"owner": "a"}`))
		w := httptest.NewRecorder()
		service.Router().ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("WrongContentType", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1.0/creds", strings.NewReader(`{"owner": "a"}`))
		req.Header.Set("Content-Type", "text/plain")
		w := httptest.NewRecorder()
		service.Router().ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		w := doJSON(t, service, http.MethodPost, "/v1.0/creds", `{"owner": `)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("EmptyOwner", func(t *testing.T) {
		w := doJSON(t, service, http.MethodPost, "/v1.0/creds", `{"owner": ""}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("UnknownScheme", func(t *testing.T) {
		w := doJSON(t, service, http.MethodPost, "/v1.0/creds", `{"owner": "a", "auth_scheme": "digest"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("UnknownProperty", func(t *testing.T) {
		w := doJSON(t, service, http.MethodPost, "/v1.0/creds", `{"owner": "a", "is_deleted": true}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCreateContentTypeVariants(t *testing.T) {
	service, _ := newTestService(t)

	for _, contentType := range []string{
		"application/json; charset=utf8",
		"application/json; charset=utf-8",
		"Application/JSON; Charset=UTF8",
		"application/json;charset=utf8",
	} {
		req := httptest.NewRequest(http.MethodPost, "/v1.0/creds", strings.NewReader(`{"owner": "a"}`))
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		service.Router().ServeHTTP(w, req)
		assert.Equal(t, http.StatusCreated, w.Code, "content type %q", contentType)
	}
}

func TestGetUnknownIdentifier(t *testing.T) {
	service, _ := newTestService(t)

	w := doJSON(t, service, http.MethodGet, "/v1.0/creds/nosuchidentifier", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListByOwner(t *testing.T) {
	service, _ := newTestService(t)

	for i := 0; i < 10; i++ {
		createCreds(t, service, "A", "")
	}
	for i := 0; i < 3; i++ {
		createCreds(t, service, "B", "")
	}

	w := doJSON(t, service, http.MethodGet, "/v1.0/creds?owner=A", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.CredsListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Creds, 10)
	for _, creds := range resp.Creds {
		assert.Equal(t, "A", creds.Owner)
	}
}

func TestListAll(t *testing.T) {
	service, _ := newTestService(t)

	createCreds(t, service, "A", "")
	createCreds(t, service, "B", "")

	w := doJSON(t, service, http.MethodGet, "/v1.0/creds", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.CredsListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Creds, 2)
}

func TestListUnknownOwnerIsEmptyArray(t *testing.T) {
	service, _ := newTestService(t)

	w := doJSON(t, service, http.MethodGet, "/v1.0/creds?owner=nobody", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"creds": []}`, w.Body.String())
}

func TestSoftDelete(t *testing.T) {
	service, _ := newTestService(t)

	resp := createCreds(t, service, "dave@example.com", "")
	location := resp.Location

	w := doJSON(t, service, http.MethodDelete, location, "")
	require.Equal(t, http.StatusOK, w.Code)

	t.Run("HiddenByDefault", func(t *testing.T) {
		w := doJSON(t, service, http.MethodGet, location, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("VisibleOnOptIn", func(t *testing.T) {
		w := doJSON(t, service, http.MethodGet, location+"?deleted=true", "")
		require.Equal(t, http.StatusOK, w.Code)

		var got models.Credentials
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.True(t, got.IsDeleted)
	})

	t.Run("HiddenFromListing", func(t *testing.T) {
		w := doJSON(t, service, http.MethodGet, "/v1.0/creds?owner=dave@example.com", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"creds": []}`, w.Body.String())
	})

	t.Run("Idempotent", func(t *testing.T) {
		w := doJSON(t, service, http.MethodDelete, location, "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("UnknownIdentifier", func(t *testing.T) {
		w := doJSON(t, service, http.MethodDelete, "/v1.0/creds/nosuchidentifier", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestDisallowedMethods(t *testing.T) {
	service, _ := newTestService(t)
	resp := createCreds(t, service, "dave@example.com", "")

	cases := []struct {
		method string
		target string
	}{
		{http.MethodPut, "/v1.0/creds"},
		{http.MethodDelete, "/v1.0/creds"},
		{http.MethodPost, resp.Location},
		{http.MethodPut, resp.Location},
	}
	for _, c := range cases {
		t.Run(c.method+" "+c.target, func(t *testing.T) {
			w := doJSON(t, service, c.method, c.target, "")
			assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		})
	}
}

func TestStoreFailureIs500(t *testing.T) {
	service, fake := newTestService(t)
	resp := createCreds(t, service, "dave@example.com", "")

	fake.mu.Lock()
	fake.down = true
	fake.mu.Unlock()

	t.Run("Create", func(t *testing.T) {
		w := doJSON(t, service, http.MethodPost, "/v1.0/creds", `{"owner": "a"}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("Get", func(t *testing.T) {
		w := doJSON(t, service, http.MethodGet, resp.Location, "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("List", func(t *testing.T) {
		w := doJSON(t, service, http.MethodGet, "/v1.0/creds", "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("Delete", func(t *testing.T) {
		w := doJSON(t, service, http.MethodDelete, resp.Location, "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
