package keyserver

import (
	"context"
	"encoding/json"
	"fmt"

	"yar/pkg/models"

	"github.com/rs/zerolog/log"
)

// View names installed in the key store.
const (
	byIdentifierView = "by_identifier"
	byPrincipalView  = "by_principal"
)

// fetchByIdentifier retrieves the credential document for an identifier
// through the by_identifier view. Deleted documents are returned; filtering
// them is the caller's concern. Returns ErrNotFound when no document exists.
func (s *Service) fetchByIdentifier(ctx context.Context, identifier string) (*models.Document, error) {
	raws, ok := s.store.Query(ctx, byIdentifierView, byIdentifierView, identifier)
	if !ok {
		return nil, fmt.Errorf("key store query for identifier %q failed", identifier)
	}

	switch len(raws) {
	case 0:
		return nil, ErrNotFound
	case 1:
		// fall through to decode
	default:
		// either the view or the data in the key store is corrupt
		log.Error().
			Str("mac_key_identifier", identifier).
			Int("docs", len(raws)).
			Msg("Got multiple docs from key store for one identifier; expected 1 or 0")
		return nil, ErrNotFound
	}

	var doc models.Document
	if err := json.Unmarshal(raws[0], &doc); err != nil {
		return nil, fmt.Errorf("failed to decode credential document: %w", err)
	}
	return &doc, nil
}

// fetchByOwner retrieves every credential document for an owner through the
// by_principal view. An empty owner selects all documents (an unkeyed query
// of the by_identifier view).
func (s *Service) fetchByOwner(ctx context.Context, owner string) ([]*models.Document, error) {
	var raws []json.RawMessage
	var ok bool
	if owner == "" {
		raws, ok = s.store.Query(ctx, byIdentifierView, byIdentifierView, "")
	} else {
		raws, ok = s.store.Query(ctx, byPrincipalView, byPrincipalView, owner)
	}
	if !ok {
		return nil, fmt.Errorf("key store query for owner %q failed", owner)
	}

	docs := make([]*models.Document, 0, len(raws))
	for _, raw := range raws {
		var doc models.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode credential document: %w", err)
		}
		docs = append(docs, &doc)
	}
	return docs, nil
}
