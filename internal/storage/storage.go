package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// BlobStore persists bytes under a logical key and returns a retrievable URL.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Name() string
}

// FallbackStore writes to the primary store and, if that fails, makes exactly
// one attempt on the secondary store. There are no further retries.
type FallbackStore struct {
	primary   BlobStore
	secondary BlobStore
}

func NewFallbackStore(primary, secondary BlobStore) *FallbackStore {
	return &FallbackStore{primary: primary, secondary: secondary}
}

func (s *FallbackStore) Name() string {
	return s.primary.Name() + "+" + s.secondary.Name()
}

func (s *FallbackStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	url, err := s.primary.Put(ctx, key, contentType, data)
	if err == nil {
		return url, nil
	}

	log.Warn().Err(err).Str("store", s.primary.Name()).Str("key", key).Msg("primary blob store failed, using fallback")

	url, fbErr := s.secondary.Put(ctx, key, contentType, data)
	if fbErr != nil {
		return "", fmt.Errorf("blob upload failed on %s (%v) and %s: %w",
			s.primary.Name(), err, s.secondary.Name(), fbErr)
	}
	return url, nil
}
