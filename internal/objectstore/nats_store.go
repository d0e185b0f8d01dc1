// Package objectstore keeps render inputs and outputs in NATS JetStream object
// store buckets: scripts come in through one bucket and videos leave through another.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	errFmtGet = "failed to get object '%s' from bucket '%s': %w"
	errFmtPut = "failed to put object '%s' to bucket '%s': %w"
)

// NatsObjectStore implements core.ObjectStore on a single JetStream bucket.
type NatsObjectStore struct {
	bucket string
	store  nats.ObjectStore
}

// New creates the bucket, or binds to it when another process created it first.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsObjectStore, error) {
	store, createErr := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("video-service objects (%s)", bucketName),
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	})
	if createErr != nil {
		if !errors.Is(createErr, jetstream.ErrBucketExists) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, createErr)
		}

		var bindErr error

		store, bindErr = jetstreamContext.ObjectStore(bucketName)
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, bindErr)
		}
	}

	return &NatsObjectStore{bucket: bucketName, store: store}, nil
}

// Bucket returns the bucket name.
func (n *NatsObjectStore) Bucket() string {
	return n.bucket
}

// Download reads a whole object into memory. Scripts are small; videos are never
// downloaded by the service.
func (n *NatsObjectStore) Download(ctx context.Context, key string) ([]byte, error) {
	obj, getErr := n.store.Get(key, nats.Context(ctx))
	if getErr != nil {
		return nil, fmt.Errorf(errFmtGet, key, n.bucket, getErr)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}

// Upload stores data under key, replacing any previous object.
func (n *NatsObjectStore) Upload(ctx context.Context, key string, data []byte) error {
	return n.put(ctx, key, bytes.NewReader(data))
}

// UploadFile streams the file at path into the bucket without loading it into memory.
func (n *NatsObjectStore) UploadFile(ctx context.Context, key, path string) error {
	file, openErr := os.Open(path)
	if openErr != nil {
		return fmt.Errorf("failed to open %s for upload: %w", path, openErr)
	}
	defer file.Close()

	return n.put(ctx, key, file)
}

func (n *NatsObjectStore) put(ctx context.Context, key string, reader io.Reader) error {
	_, putErr := n.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: "",
		Headers:     nil,
		Metadata:    nil,
		Opts:        nil,
	}, reader, nats.Context(ctx))
	if putErr != nil {
		return fmt.Errorf(errFmtPut, key, n.bucket, putErr)
	}

	return nil
}
