// Package keyserver implements the credential service: a RESTful front-end
// over the key store exposing /v1.0/creds for creating, retrieving, listing
// and soft-deleting credentials.
package keyserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"yar/pkg/keystore"
	"yar/pkg/models"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// ErrNotFound reports that no credential document exists for an identifier.
var ErrNotFound = errors.New("credentials not found")

// Service handles the credential service's HTTP API. It is stateless apart
// from the key store behind it.
type Service struct {
	store *keystore.Client
}

// NewService creates a credential service backed by the given key store.
func NewService(store *keystore.Client) *Service {
	return &Service{store: store}
}

// Router builds the service's route table.
func (s *Service) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestLogging)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	collection := "/v1.0/creds"
	r.HandleFunc(collection, s.handleCreate).Methods(http.MethodPost)
	r.HandleFunc(collection, s.handleList).Methods(http.MethodGet)
	r.HandleFunc(collection, s.handleMethodNotAllowed).Methods(http.MethodPut, http.MethodDelete)

	member := collection + "/{id}"
	r.HandleFunc(member, s.handleGet).Methods(http.MethodGet)
	r.HandleFunc(member, s.handleDelete).Methods(http.MethodDelete)
	r.HandleFunc(member, s.handleMethodNotAllowed).Methods(http.MethodPost, http.MethodPut)

	return r
}

func (s *Service) handleCreate(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	req, err := parseCreateRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_CREATE_REQUEST", err.Error(), requestID)
		return
	}

	doc, err := s.createCreds(r.Context(), req.Owner, req.AuthScheme)
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("Failed to create credentials")
		s.writeError(w, http.StatusInternalServerError, "KEY_STORE_FAILURE", "Failed to create credentials", requestID)
		return
	}

	location := "/v1.0/creds/" + doc.ID
	w.Header().Set("Location", location)
	s.writeJSON(w, http.StatusCreated, models.CredsResponse{
		Credentials: *doc.Model(),
		Location:    location,
	})
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	identifier := mux.Vars(r)["id"]
	includeDeleted := r.URL.Query().Get("deleted") == "true"

	doc, err := s.fetchByIdentifier(r.Context(), identifier)
	switch {
	case errors.Is(err, ErrNotFound):
		s.writeError(w, http.StatusNotFound, "CREDS_NOT_FOUND", "No credentials for identifier", requestID)
		return
	case err != nil:
		log.Error().Err(err).Str("request_id", requestID).Msg("Failed to retrieve credentials")
		s.writeError(w, http.StatusInternalServerError, "KEY_STORE_FAILURE", "Failed to retrieve credentials", requestID)
		return
	}

	if doc.IsDeleted && !includeDeleted {
		s.writeError(w, http.StatusNotFound, "CREDS_NOT_FOUND", "No credentials for identifier", requestID)
		return
	}

	s.writeJSON(w, http.StatusOK, doc.Model())
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	owner := r.URL.Query().Get("owner")

	docs, err := s.fetchByOwner(r.Context(), owner)
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("Failed to list credentials")
		s.writeError(w, http.StatusInternalServerError, "KEY_STORE_FAILURE", "Failed to list credentials", requestID)
		return
	}

	creds := make([]*models.Credentials, 0, len(docs))
	for _, doc := range docs {
		if doc.IsDeleted {
			continue
		}
		creds = append(creds, doc.Model())
	}

	s.writeJSON(w, http.StatusOK, models.CredsListResponse{Creds: creds})
}

func (s *Service) handleDelete(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	identifier := mux.Vars(r)["id"]

	err := s.deleteCreds(r.Context(), identifier)
	switch {
	case errors.Is(err, ErrNotFound):
		s.writeError(w, http.StatusNotFound, "CREDS_NOT_FOUND", "No credentials for identifier", requestID)
	case err != nil:
		log.Error().Err(err).Str("request_id", requestID).Msg("Failed to delete credentials")
		s.writeError(w, http.StatusInternalServerError, "KEY_STORE_FAILURE", "Failed to delete credentials", requestID)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Service) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	s.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed on this resource", requestID)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestLogging logs HTTP request start and completion with timing.
// Automatically generates request IDs and tracks response status codes.
func (s *Service) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
			r.Header.Set("X-Request-ID", requestID)
		}

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		log.Debug().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Msg("Request started")

		next.ServeHTTP(wrapped, r)

		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Msg("Request completed")
	})
}

func (s *Service) writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf8")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeError sends a standardized JSON error response to the client.
func (s *Service) writeError(w http.ResponseWriter, statusCode int, code, message, requestID string) {
	s.writeJSON(w, statusCode, models.ErrorResponse{
		Error: models.ErrorDetails{
			Code:      code,
			Message:   message,
			RequestID: requestID,
		},
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
