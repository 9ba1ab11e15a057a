package keyserver

import (
	"context"
	"fmt"

	"yar/pkg/basic"
	"yar/pkg/keystore"
	"yar/pkg/mac"
	"yar/pkg/models"

	"github.com/rs/zerolog/log"
)

// createCreds generates credential material for the given owner and scheme
// and writes the document to the key store.
func (s *Service) createCreds(ctx context.Context, owner, authScheme string) (*models.Document, error) {
	creds := models.Credentials{
		Owner:      owner,
		AuthScheme: authScheme,
	}

	switch authScheme {
	case models.AuthSchemeHMAC:
		creds.HMAC = &models.HMACCredentials{
			MACKeyIdentifier: string(mac.GenerateKeyIdentifier()),
			MACKey:           string(mac.GenerateKey()),
			MACAlgorithm:     mac.DefaultAlgorithm,
		}
	case models.AuthSchemeBasic:
		creds.Basic = &models.BasicCredentials{
			APIKey: string(basic.GenerateAPIKey()),
		}
	default:
		return nil, fmt.Errorf("unsupported auth scheme %q", authScheme)
	}

	doc := models.NewDocument(creds)
	result := s.store.Put(ctx, keystore.DocPath(doc.ID), doc)
	if !result.OK || result.Code < 200 || result.Code > 299 {
		return nil, fmt.Errorf("key store write failed (ok=%t code=%d)", result.OK, result.Code)
	}

	log.Info().
		Str("owner", owner).
		Str("auth_scheme", authScheme).
		Str("identifier", doc.ID).
		Msg("Created credentials")

	return doc, nil
}
