package snapshot

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/dropvault/internal/common"
	"github.com/dmitrijs2005/dropvault/internal/cryptox"
)

// SealedSink encrypts every blob before it reaches the inner sink, so
// payload codes and grant state never leave the box in the clear.
type SealedSink struct {
	inner BlobSink
	key   []byte
}

func NewSealedSink(inner BlobSink, key []byte) *SealedSink {
	return &SealedSink{inner: inner, key: key}
}

func (s *SealedSink) Upload(ctx context.Context, label string, data []byte) (string, error) {
	sealed, err := cryptox.Seal(data, s.key)
	if err != nil {
		return "", fmt.Errorf("seal %s: %w", label, err)
	}
	return s.inner.Upload(ctx, label, sealed)
}

func (s *SealedSink) Download(ctx context.Context, remoteKey string) ([]byte, error) {
	sealed, err := s.inner.Download(ctx, remoteKey)
	if err != nil {
		return nil, err
	}
	data, err := cryptox.Open(sealed, s.key)
	if err != nil {
		// An undecryptable object is as unusable as an unparsable one.
		return nil, fmt.Errorf("%w: %s: %v", common.ErrCorruptSnapshot, remoteKey, err)
	}
	return data, nil
}
