package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/libsync/internal/server/models"
	"github.com/dmitrijs2005/libsync/internal/server/storage"
)

// SignedAccessIssuer hands out short-lived read links for single files.
// A missing object is reported as common.ErrorNotFound.
type SignedAccessIssuer struct {
	store  storage.ObjectStore
	layout storage.Layout
	ttl    time.Duration
}

// NewSignedAccessIssuer returns an issuer whose links expire after ttl.
func NewSignedAccessIssuer(store storage.ObjectStore, layout storage.Layout, ttl time.Duration) *SignedAccessIssuer {
	return &SignedAccessIssuer{store: store, layout: layout, ttl: ttl}
}

// Issue signs a read link for relativePath on the given branch. The path is
// validated the same way as for uploads.
func (s *SignedAccessIssuer) Issue(ctx context.Context, ownerID, libraryID string, branch storage.Branch, relativePath string) (*models.SignedFile, error) {
	key, err := s.layout.ObjectKey(ownerID, libraryID, branch, relativePath)
	if err != nil {
		return nil, err
	}

	u, err := s.store.SignedReadURL(ctx, key, s.ttl)
	if err != nil {
		return nil, err
	}
	return &models.SignedFile{
		URL:         u.URL,
		ExpiresAt:   u.ExpiresAt,
		ContentType: u.ContentType,
		FileName:    u.FileName,
	}, nil
}
