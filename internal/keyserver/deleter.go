package keyserver

import (
	"context"
	"fmt"

	"yar/pkg/keystore"

	"github.com/rs/zerolog/log"
)

// deleteCreds soft-deletes the credentials for an identifier. Deleting
// already-deleted credentials succeeds without re-writing the document;
// ErrNotFound is returned for identifiers the store has never known.
func (s *Service) deleteCreds(ctx context.Context, identifier string) error {
	doc, err := s.fetchByIdentifier(ctx, identifier)
	if err != nil {
		return err
	}

	if doc.IsDeleted {
		return nil
	}

	doc.IsDeleted = true
	result := s.store.Put(ctx, keystore.DocPath(doc.ID), doc)
	if !result.OK || result.Code < 200 || result.Code > 299 {
		return fmt.Errorf("key store write failed (ok=%t code=%d)", result.OK, result.Code)
	}

	log.Info().Str("identifier", identifier).Msg("Soft-deleted credentials")
	return nil
}
