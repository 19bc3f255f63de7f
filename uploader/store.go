package uploader

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// ObjectStore is the subset of bucket operations the uploader needs.
type ObjectStore interface {
	Write(ctx context.Context, object string, data []byte) error
	Compose(ctx context.Context, object string, sources []string) error
	Size(ctx context.Context, object string) (int64, error)
	Delete(ctx context.Context, object string) error
	Close() error
}

// gcsStore implements ObjectStore on one GCS bucket.
type gcsStore struct {
	client    *storage.Client
	bucket    *storage.BucketHandle
	chunkSize int
}

func newGCSStore(ctx context.Context, config GCSUploadConfig) (*gcsStore, error) {
	var opts []option.ClientOption
	if config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(config.Endpoint), option.WithoutAuthentication())
	}

	var (
		client *storage.Client
		err    error
	)
	if config.UseGRPC {
		opts = append(opts, option.WithGRPCConnectionPool(config.GRPCPoolSize))
		client, err = storage.NewGRPCClient(ctx, opts...)
	} else {
		client, err = storage.NewClient(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &gcsStore{
		client:    client,
		bucket:    client.Bucket(config.Bucket),
		chunkSize: config.ChunkSize,
	}, nil
}

func (s *gcsStore) Write(ctx context.Context, object string, data []byte) error {
	w := s.bucket.Object(object).NewWriter(ctx)
	w.ChunkSize = s.chunkSize
	w.ContentType = "text/plain; charset=utf-8"

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write error: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close error: %w", err)
	}
	return nil
}

func (s *gcsStore) Compose(ctx context.Context, object string, sources []string) error {
	handles := make([]*storage.ObjectHandle, len(sources))
	for i, src := range sources {
		handles[i] = s.bucket.Object(src)
	}

	composer := s.bucket.Object(object).ComposerFrom(handles...)
	composer.ContentType = "text/plain; charset=utf-8"
	if _, err := composer.Run(ctx); err != nil {
		return fmt.Errorf("compose failed: %w", err)
	}
	return nil
}

func (s *gcsStore) Size(ctx context.Context, object string) (int64, error) {
	attrs, err := s.bucket.Object(object).Attrs(ctx)
	if err != nil {
		return 0, fmt.Errorf("attrs error: %w", err)
	}
	return attrs.Size, nil
}

func (s *gcsStore) Delete(ctx context.Context, object string) error {
	return s.bucket.Object(object).Delete(ctx)
}

func (s *gcsStore) Close() error {
	return s.client.Close()
}
