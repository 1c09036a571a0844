package core

import (
	"context"
	"fmt"
	"io"

	"raceview/internal/blob"
)

// BlobSource reads the dataset from one key of a blob store.
type BlobSource struct {
	Store blob.Store
	Key   string
}

// NewBlobSource returns a Source for key in store.
func NewBlobSource(store blob.Store, key string) *BlobSource {
	return &BlobSource{Store: store, Key: key}
}

// Open returns the blob contents.
func (s *BlobSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if s.Store == nil {
		return nil, fmt.Errorf("blob store not configured")
	}
	_, rc, err := s.Store.Get(ctx, s.Key)
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// Describe identifies the source in logs and status output.
func (s *BlobSource) Describe() string {
	if s.Store == nil {
		return "blob:" + s.Key
	}
	return fmt.Sprintf("%s:%s", s.Store.Driver(), s.Key)
}
